package services

import (
	"context"
	"time"

	"github.com/dnastack/ddap-admin/internal/domain/entities"
	"github.com/dnastack/ddap-admin/internal/domain/entities/dam"
	daminfra "github.com/dnastack/ddap-admin/internal/infrastructure/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

// OptionService reads and replaces the options object of a realm's DAM
// configuration.
type OptionService struct {
	registry  *daminfra.Registry
	transport daminfra.Transport
	notifier  ErrorNotifier
	logger    *logging.ChanneledLogger
	realm     string
}

// NewOptionService creates the options service of realm.
func NewOptionService(registry *daminfra.Registry, transport daminfra.Transport, notifier ErrorNotifier, logger *logging.ChanneledLogger, realm string) *OptionService {
	if notifier == nil {
		notifier = NopNotifier()
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &OptionService{registry: registry, transport: transport, notifier: notifier, logger: logger, realm: realm}
}

// Get returns the options of damID in backend order.
func (s *OptionService) Get(ctx context.Context, damID string) (entities.Collection, error) {
	const message = "Can't load settings."
	start := time.Now()

	inst, err := s.registry.Get(damID)
	if err != nil {
		return entities.Collection{}, s.notifier.NotifyOnError(s.realm, message, &LoadError{DamID: damID, Message: message, Err: err})
	}
	body, err := s.transport.Get(ctx, inst.ConfigURL(s.realm), inst.Credentials())
	if err != nil {
		return entities.Collection{}, s.notifier.NotifyOnError(s.realm, message, &LoadError{DamID: damID, Message: message, Err: err})
	}
	options, err := pluck(body, dam.CollectionOptions)
	if err != nil {
		return entities.Collection{}, s.notifier.NotifyOnError(s.realm, message, &LoadError{DamID: damID, Message: message, Err: err})
	}

	s.logger.WithRealmAndDam(logging.ChannelDAM, s.realm, damID).Debug("Options read", "count", options.Len(), "duration", time.Since(start))
	return options, nil
}

// Update replaces the options of damID.
func (s *OptionService) Update(ctx context.Context, damID string, options entities.Collection) error {
	const message = "Can't update settings."

	inst, err := s.registry.Get(damID)
	if err != nil {
		return s.notifier.NotifyOnError(s.realm, message, &WriteError{Name: dam.CollectionOptions, Message: message, Err: err})
	}
	body := entities.ConfigModification{}
	body.Item, err = options.MarshalJSON()
	if err != nil {
		return s.notifier.NotifyOnError(s.realm, message, &WriteError{Name: dam.CollectionOptions, Message: message, Err: err})
	}
	if _, err := s.transport.Put(ctx, inst.OptionsURL(s.realm), inst.Credentials(), body); err != nil {
		return s.notifier.NotifyOnError(s.realm, message, &WriteError{Name: dam.CollectionOptions, Message: message, Err: err})
	}

	s.logger.WithRealmAndDam(logging.ChannelDAM, s.realm, damID).Info("Options updated", "count", options.Len())
	return nil
}
