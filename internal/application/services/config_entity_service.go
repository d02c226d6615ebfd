package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/dnastack/ddap-admin/internal/domain/entities"
	"github.com/dnastack/ddap-admin/internal/infrastructure/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

// ConfigEntityService reads and writes one entity type of a realm's DAM
// configuration. It keeps no state between calls.
type ConfigEntityService struct {
	registry           *dam.Registry
	transport          dam.Transport
	notifier           ErrorNotifier
	logger             *logging.ChanneledLogger
	realm              string
	typeNameInPath     string
	typeNameInResponse string
}

// NewConfigEntityService binds an entity type of realm. typeNameInPath is the
// URL segment writes go to, typeNameInResponse the collection reads pluck.
func NewConfigEntityService(
	registry *dam.Registry,
	transport dam.Transport,
	notifier ErrorNotifier,
	logger *logging.ChanneledLogger,
	realm, typeNameInPath, typeNameInResponse string,
) *ConfigEntityService {
	if notifier == nil {
		notifier = NopNotifier()
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &ConfigEntityService{
		registry:           registry,
		transport:          transport,
		notifier:           notifier,
		logger:             logger,
		realm:              realm,
		typeNameInPath:     typeNameInPath,
		typeNameInResponse: typeNameInResponse,
	}
}

// TypeName is the collection this service reads.
func (s *ConfigEntityService) TypeName() string { return s.typeNameInResponse }

// Get reads the realm configuration and returns the entities of this type in
// backend order. A document without the collection yields an empty list.
func (s *ConfigEntityService) Get(ctx context.Context, damID string, params url.Values) ([]entities.RawEntity, error) {
	start := time.Now()
	message := fmt.Sprintf("Can't load %s.", s.typeNameInResponse)

	inst, err := s.registry.Get(damID)
	if err != nil {
		return nil, s.notifier.NotifyOnError(s.realm, message, &LoadError{DamID: damID, Message: message, Err: err})
	}

	query := inst.Credentials()
	for k, vs := range params {
		query[k] = append(query[k], vs...)
	}

	body, err := s.transport.Get(ctx, inst.ConfigURL(s.realm), query)
	if err != nil {
		return nil, s.notifier.NotifyOnError(s.realm, message, &LoadError{DamID: damID, Message: message, Err: err})
	}

	collection, err := pluck(body, s.typeNameInResponse)
	if err != nil {
		return nil, s.notifier.NotifyOnError(s.realm, message, &LoadError{DamID: damID, Message: message, Err: err})
	}

	list := entities.ArrayFromMap(collection)
	s.logger.WithRealmAndDam(logging.ChannelDAM, s.realm, damID).Debug("Configuration entities read", "type", s.typeNameInResponse, "count", len(list), "duration", time.Since(start))
	return list, nil
}

// Update writes change as the entity name.
func (s *ConfigEntityService) Update(ctx context.Context, damID, name string, change entities.ConfigModification) error {
	message := fmt.Sprintf("Can't update %s.", s.typeNameInResponse)

	inst, err := s.registry.Get(damID)
	if err != nil {
		return s.notifier.NotifyOnError(s.realm, message, &WriteError{Name: name, Message: message, Err: err})
	}

	if _, err := s.transport.Put(ctx, inst.ConfigEntityURL(s.realm, s.typeNameInPath, name), inst.Credentials(), change); err != nil {
		return s.notifier.NotifyOnError(s.realm, message, &WriteError{Name: name, Message: message, Err: err})
	}

	s.logger.WithRealmAndDam(logging.ChannelDAM, s.realm, damID).Info("Configuration entity updated", "type", s.typeNameInPath, "name", name, "dryRun", change.DryRun())
	return nil
}

// Remove deletes the entity name.
func (s *ConfigEntityService) Remove(ctx context.Context, damID, name string) error {
	message := fmt.Sprintf("Can't delete %s.", s.typeNameInResponse)

	inst, err := s.registry.Get(damID)
	if err != nil {
		return s.notifier.NotifyOnError(s.realm, message, &WriteError{Name: name, Message: message, Err: err})
	}

	if err := s.transport.Delete(ctx, inst.ConfigEntityURL(s.realm, s.typeNameInPath, name), inst.Credentials()); err != nil {
		return s.notifier.NotifyOnError(s.realm, message, &WriteError{Name: name, Message: message, Err: err})
	}

	s.logger.WithRealmAndDam(logging.ChannelDAM, s.realm, damID).Info("Configuration entity removed", "type", s.typeNameInPath, "name", name)
	return nil
}

// pluck returns the collection stored under field of a configuration document.
func pluck(body json.RawMessage, field string) (entities.Collection, error) {
	if len(body) == 0 {
		return entities.Collection{}, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return entities.Collection{}, fmt.Errorf("configuration document: %w", err)
	}
	var c entities.Collection
	raw, ok := doc[field]
	if !ok {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return entities.Collection{}, fmt.Errorf("configuration %s: %w", field, err)
	}
	return c, nil
}
