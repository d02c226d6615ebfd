package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dnastack/ddap-admin/internal/domain/entities"
	"github.com/dnastack/ddap-admin/internal/infrastructure/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

// DamInfo describes a registered DAM to the console.
type DamInfo struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	UIURL     string `json:"uiUrl,omitempty"`
	Reachable bool   `json:"reachable"`
}

// DamConfigService reads whole configuration documents. It is the loader of
// the configuration cache.
type DamConfigService struct {
	registry  *dam.Registry
	transport dam.Transport
	notifier  ErrorNotifier
	logger    *logging.ChanneledLogger
	realm     string
}

// NewDamConfigService creates the document reader of realm.
func NewDamConfigService(registry *dam.Registry, transport dam.Transport, notifier ErrorNotifier, logger *logging.ChanneledLogger, realm string) *DamConfigService {
	if notifier == nil {
		notifier = NopNotifier()
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &DamConfigService{registry: registry, transport: transport, notifier: notifier, logger: logger, realm: realm}
}

// Load reads the configuration document of damID.
func (s *DamConfigService) Load(ctx context.Context, damID string) (entities.DamConfig, error) {
	const message = "Can't load configuration."
	start := time.Now()

	inst, err := s.registry.Get(damID)
	if err != nil {
		return nil, s.notifier.NotifyOnError(s.realm, message, &LoadError{DamID: damID, Message: message, Err: err})
	}

	body, err := s.transport.Get(ctx, inst.ConfigURL(s.realm), inst.Credentials())
	if err != nil {
		return nil, s.notifier.NotifyOnError(s.realm, message, &LoadError{DamID: damID, Message: message, Err: err})
	}

	cfg := entities.DamConfig{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &cfg); err != nil {
			err = fmt.Errorf("configuration document: %w", err)
			return nil, s.notifier.NotifyOnError(s.realm, message, &LoadError{DamID: damID, Message: message, Err: err})
		}
	}

	s.logger.WithRealmAndDam(logging.ChannelDAM, s.realm, damID).Debug("Configuration document read", "collections", len(cfg), "duration", time.Since(start))
	return cfg, nil
}

// Info reads the self description of damID.
func (s *DamConfigService) Info(ctx context.Context, damID string) (dam.Info, error) {
	inst, err := s.registry.Get(damID)
	if err != nil {
		return dam.Info{}, err
	}
	body, err := s.transport.Get(ctx, inst.InfoURL(), nil)
	if err != nil {
		return dam.Info{}, err
	}
	var info dam.Info
	if err := json.Unmarshal(body, &info); err != nil {
		return dam.Info{}, fmt.Errorf("DAM info: %w", err)
	}
	return info, nil
}

// Dams describes every registered DAM. Unreachable DAMs are listed under
// their id with Reachable false.
func (s *DamConfigService) Dams(ctx context.Context) []DamInfo {
	instances := s.registry.List()
	out := make([]DamInfo, len(instances))

	var g errgroup.Group
	for i, inst := range instances {
		g.Go(func() error {
			d := DamInfo{ID: inst.ID, Label: inst.ID, UIURL: inst.UIURL}
			info, err := s.Info(ctx, inst.ID)
			if err != nil {
				s.logger.WithRealmAndDam(logging.ChannelDAM, s.realm, inst.ID).Warn("DAM info unavailable", "error", err)
			} else {
				d.Reachable = true
				if label := info.Label(); label != "" {
					d.Label = label
				}
			}
			out[i] = d
			return nil
		})
	}
	_ = g.Wait()
	return out
}
