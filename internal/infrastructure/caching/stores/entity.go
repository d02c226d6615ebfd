package stores

import (
	"context"
	"time"

	"github.com/dnastack/ddap-admin/internal/domain/entities"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/stream"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/types"
)

// EntityWriter persists entity changes to the DAM.
type EntityWriter interface {
	Update(ctx context.Context, damID, name string, change entities.ConfigModification) error
	Remove(ctx context.Context, damID, name string) error
}

// Detail is the detail projection of one entity. Found is false when the
// entity is not in the cached document.
type Detail[T any] struct {
	Entity entities.EntityModel[T] `json:"entity"`
	Found  bool                    `json:"found"`
}

// EntityStoreOption configures a DamConfigEntityStore.
type EntityStoreOption func(*entityStoreConfig)

type entityStoreConfig struct {
	refreshAfterWrite bool
}

// WithRefreshAfterWrite re-reads the whole document after every acknowledged
// write instead of merging the written payload. For collections whose
// entities carry server-computed fields.
func WithRefreshAfterWrite() EntityStoreOption {
	return func(c *entityStoreConfig) { c.refreshAfterWrite = true }
}

// DamConfigEntityStore is a typed view of one collection of the shared
// DamConfigStore, plus the write path for that collection.
type DamConfigEntityStore[T any] struct {
	collection string
	store      *DamConfigStore
	writer     EntityWriter
	config     entityStoreConfig
}

// NewDamConfigEntityStore binds collection of store to writer.
func NewDamConfigEntityStore[T any](collection string, store *DamConfigStore, writer EntityWriter, opts ...EntityStoreOption) *DamConfigEntityStore[T] {
	es := &DamConfigEntityStore[T]{
		collection: collection,
		store:      store,
		writer:     writer,
	}
	for _, opt := range opts {
		opt(&es.config)
	}
	return es
}

// Collection returns the collection name this store projects.
func (es *DamConfigEntityStore[T]) Collection() string { return es.collection }

// Init requests the document of damID from the shared store.
func (es *DamConfigEntityStore[T]) Init(damID string) {
	es.store.Init(damID)
}

// Await initializes damID and waits for its entry to settle.
func (es *DamConfigEntityStore[T]) Await(ctx context.Context, damID string) error {
	return es.store.Await(ctx, damID)
}

// ListFor streams the entities of damID in collection order, recomputed on
// every commit. An absent document or collection yields an empty list.
func (es *DamConfigEntityStore[T]) ListFor(damID string, opts ...stream.SubscribeOption) *stream.Subscription[[]entities.EntityModel[T]] {
	return stream.Map(es.store.State(opts...), func(state types.DamConfigState) []entities.EntityModel[T] {
		return es.project(state, damID)
	})
}

// DetailFor streams the entity name of damID. A missing entity is reported
// with Found false.
func (es *DamConfigEntityStore[T]) DetailFor(damID, name string, opts ...stream.SubscribeOption) *stream.Subscription[Detail[T]] {
	return stream.Map(es.store.State(opts...), func(state types.DamConfigState) Detail[T] {
		return es.detail(state, damID, name)
	})
}

// List projects the current snapshot.
func (es *DamConfigEntityStore[T]) List(damID string) []entities.EntityModel[T] {
	return es.project(es.store.Snapshot(), damID)
}

// Get projects one entity of the current snapshot.
func (es *DamConfigEntityStore[T]) Get(damID, name string) (entities.EntityModel[T], bool) {
	d := es.detail(es.store.Snapshot(), damID, name)
	return d.Entity, d.Found
}

// Save writes change to the DAM. Once the write is acknowledged the cache is
// updated; dry runs and failed writes leave it untouched.
func (es *DamConfigEntityStore[T]) Save(ctx context.Context, damID, name string, change entities.ConfigModification) error {
	start := time.Now()
	if err := es.writer.Update(ctx, damID, name, change); err != nil {
		return err
	}
	if change.DryRun() {
		es.store.logger.Cache().Debug("Cache operation", "operation", "save", "realm", es.store.realm, "damId", damID, "collection", es.collection, "name", name, "dryRun", true, "duration", time.Since(start))
		return nil
	}

	if es.config.refreshAfterWrite {
		es.store.Invalidate(damID)
	} else {
		es.store.MergeEntity(damID, es.collection, name, change.Item)
	}
	return nil
}

// Remove deletes name from the DAM, then from the cache.
func (es *DamConfigEntityStore[T]) Remove(ctx context.Context, damID, name string) error {
	if err := es.writer.Remove(ctx, damID, name); err != nil {
		return err
	}
	if es.config.refreshAfterWrite {
		es.store.Invalidate(damID)
	} else {
		es.store.RemoveEntity(damID, es.collection, name)
	}
	return nil
}

func (es *DamConfigEntityStore[T]) project(state types.DamConfigState, damID string) []entities.EntityModel[T] {
	raw := entities.ArrayFromMap(state.Collection(damID, es.collection))
	out := make([]entities.EntityModel[T], 0, len(raw))
	for _, r := range raw {
		m, err := entities.Decode[T](r)
		if err != nil {
			es.store.logger.Cache().Warn("Skipping undecodable entity", "realm", es.store.realm, "damId", damID, "collection", es.collection, "name", r.Name, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out
}

func (es *DamConfigEntityStore[T]) detail(state types.DamConfigState, damID, name string) Detail[T] {
	raw, ok := state.Collection(damID, es.collection).Get(name)
	if !ok {
		return Detail[T]{}
	}
	m, err := entities.Decode[T](entities.RawEntity{Name: name, Dto: raw})
	if err != nil {
		es.store.logger.Cache().Warn("Entity does not decode", "realm", es.store.realm, "damId", damID, "collection", es.collection, "name", name, "error", err)
		return Detail[T]{}
	}
	return Detail[T]{Entity: m, Found: true}
}
