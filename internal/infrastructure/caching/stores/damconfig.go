// Package stores provides the DAM configuration cache and its typed projections.
package stores

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dnastack/ddap-admin/internal/domain/entities"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/stream"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/types"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

// ErrStoreClosed is returned by Await once the store has been closed.
var ErrStoreClosed = errors.New("damconfig store closed")

// Loader reads the full configuration document of one DAM.
type Loader interface {
	Load(ctx context.Context, damID string) (entities.DamConfig, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, damID string) (entities.DamConfig, error)

func (f LoaderFunc) Load(ctx context.Context, damID string) (entities.DamConfig, error) {
	return f(ctx, damID)
}

// LoadObserver is told about every read the store issues and how it ended.
type LoadObserver interface {
	LoadIssued(realm, damID, reason string)
	LoadFinished(realm, damID string, outcome LoadOutcome, d time.Duration)
}

// LoadOutcome is how an issued read ended.
type LoadOutcome string

const (
	OutcomeCommitted  LoadOutcome = "committed"
	OutcomeFailed     LoadOutcome = "failed"
	OutcomeSuperseded LoadOutcome = "superseded"
)

type nopObserver struct{}

func (nopObserver) LoadIssued(string, string, string) {}

func (nopObserver) LoadFinished(string, string, LoadOutcome, time.Duration) {}

// StoreOption configures a DamConfigStore.
type StoreOption func(*DamConfigStore)

// WithLoadObserver reports load activity to o.
func WithLoadObserver(o LoadObserver) StoreOption {
	return func(s *DamConfigStore) {
		if o != nil {
			s.observer = o
		}
	}
}

type cacheEntry struct {
	status     types.EntryStatus
	generation uint64
	loadID     string
	loadedAt   time.Time
	err        error
	// settled is closed when the newest issued load commits or fails
	settled chan struct{}
}

// DamConfigStore caches configuration documents per damId. Each damId is
// loaded at most once until invalidated, concurrent Init calls share one
// read, and every commit is published as a new immutable snapshot.
type DamConfigStore struct {
	realm    string
	loader   Loader
	logger   *logging.ChanneledLogger
	observer LoadObserver

	mu      sync.Mutex
	entries map[string]*cacheEntry
	state   types.DamConfigState
	subject *stream.Subject[types.DamConfigState]
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDamConfigStore creates an empty store for realm.
func NewDamConfigStore(realm string, loader Loader, logger *logging.ChanneledLogger, opts ...StoreOption) *DamConfigStore {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	logger.Cache().Info("Initializing DAM configuration cache store", "realm", realm)

	ctx, cancel := context.WithCancel(context.Background())
	initial := types.DamConfigState{}
	s := &DamConfigStore{
		realm:    realm,
		loader:   loader,
		logger:   logger,
		observer: nopObserver{},
		entries:  make(map[string]*cacheEntry),
		state:    initial,
		subject:  stream.NewSubject(initial),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Realm returns the realm the store serves.
func (s *DamConfigStore) Realm() string { return s.realm }

// Init requests the document of damID. It returns immediately; only a
// never-requested or failed entry triggers a read.
func (s *DamConfigStore) Init(damID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked(damID)
}

func (s *DamConfigStore) initLocked(damID string) *cacheEntry {
	e := s.entry(damID)
	switch e.status {
	case types.StatusNotRequested, types.StatusFailed:
		s.issueLocked(damID, e, "init")
	default:
		s.logger.Cache().Debug("Cache operation", "operation", "init", "realm", s.realm, "damId", damID, "hit", true, "status", e.status.String())
	}
	return e
}

// Invalidate forces a fresh read of damID. Only the most recently issued
// read for a damId is committed.
func (s *DamConfigStore) Invalidate(damID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueLocked(damID, s.entry(damID), "invalidate")
}

// MergeEntity upserts one entity in the cached document of damID. Nothing
// else in the snapshot changes. A damId without a document is left alone.
func (s *DamConfigStore) MergeEntity(damID, collection, name string, payload json.RawMessage) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg, ok := s.state[damID]; ok {
		s.commitLocked(s.state.With(damID, cfg.WithEntity(collection, name, payload)))
	}
	s.supersedeLocked(damID, "merge")

	s.logger.Cache().Debug("Cache operation", "operation", "merge", "realm", s.realm, "damId", damID, "collection", collection, "name", name, "duration", time.Since(start))
}

// RemoveEntity deletes one entity from the cached document of damID.
func (s *DamConfigStore) RemoveEntity(damID, collection, name string) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg, ok := s.state[damID]; ok {
		if _, present := cfg.Collection(collection).Get(name); present {
			s.commitLocked(s.state.With(damID, cfg.WithoutEntity(collection, name)))
		}
	}
	s.supersedeLocked(damID, "remove")

	s.logger.Cache().Debug("Cache operation", "operation", "remove", "realm", s.realm, "damId", damID, "collection", collection, "name", name, "duration", time.Since(start))
}

// State subscribes to the snapshot stream. The latest snapshot is delivered
// first, then every later commit.
func (s *DamConfigStore) State(opts ...stream.SubscribeOption) *stream.Subscription[types.DamConfigState] {
	return s.subject.Subscribe(opts...)
}

// Snapshot returns the latest committed snapshot.
func (s *DamConfigStore) Snapshot() types.DamConfigState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status reports the cache entry of damID.
func (s *DamConfigStore) Status(damID string) types.EntryState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := types.EntryState{DamID: damID}
	e, ok := s.entries[damID]
	if !ok {
		return st
	}
	st.Status = e.status
	st.Generation = e.generation
	st.LoadID = e.loadID
	st.LoadedAt = e.loadedAt
	st.Err = e.err
	if e.err != nil {
		st.Error = e.err.Error()
	}
	return st
}

// Statuses reports every entry that has been requested, ordered by damId.
func (s *DamConfigStore) Statuses() []types.EntryState {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	out := make([]types.EntryState, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Status(id))
	}
	return out
}

// SubscriberCount returns the number of live state subscriptions.
func (s *DamConfigStore) SubscriberCount() int {
	return s.subject.SubscriberCount()
}

// Await initializes damID and blocks until its entry settles. It returns
// nil once Loaded and the load error once Failed.
func (s *DamConfigStore) Await(ctx context.Context, damID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	s.initLocked(damID)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrStoreClosed
		}
		e := s.entry(damID)
		switch e.status {
		case types.StatusLoaded:
			s.mu.Unlock()
			return nil
		case types.StatusFailed:
			err := e.err
			s.mu.Unlock()
			return err
		}
		settled := e.settled
		s.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return ErrStoreClosed
		}
	}
}

// Close cancels in-flight reads and completes every subscription.
func (s *DamConfigStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.subject.Close()
	s.logger.Cache().Info("DAM configuration cache store closed", "realm", s.realm)
}

// entry returns the entry of damID, creating it. Caller holds s.mu.
func (s *DamConfigStore) entry(damID string) *cacheEntry {
	e, ok := s.entries[damID]
	if !ok {
		e = &cacheEntry{status: types.StatusNotRequested}
		s.entries[damID] = e
	}
	return e
}

// supersedeLocked re-issues an in-flight read, whose response may predate a
// write that has just been acknowledged.
func (s *DamConfigStore) supersedeLocked(damID, reason string) {
	if e, ok := s.entries[damID]; ok && e.status == types.StatusLoading {
		s.issueLocked(damID, e, reason)
	}
}

// issueLocked starts a new generation of reads for damID. Caller holds s.mu.
func (s *DamConfigStore) issueLocked(damID string, e *cacheEntry, reason string) {
	if s.closed {
		return
	}
	e.generation++
	e.loadID = ulid.Make().String()
	e.err = nil
	if e.status != types.StatusLoading || e.settled == nil {
		e.settled = make(chan struct{})
	}
	e.status = types.StatusLoading

	gen, loadID := e.generation, e.loadID
	s.logger.Cache().Debug("Cache operation", "operation", "load_issued", "realm", s.realm, "damId", damID, "reason", reason, "generation", gen, "loadId", loadID)

	s.observer.LoadIssued(s.realm, damID, reason)
	s.wg.Add(1)
	go s.load(damID, gen, loadID)
}

func (s *DamConfigStore) load(damID string, gen uint64, loadID string) {
	defer s.wg.Done()
	start := time.Now()

	cfg, err := s.loader.Load(s.ctx, damID)

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[damID]
	if s.closed || e == nil || e.generation != gen {
		s.observer.LoadFinished(s.realm, damID, OutcomeSuperseded, time.Since(start))
		s.logger.Cache().Debug("Cache operation", "operation", "load_superseded", "realm", s.realm, "damId", damID, "generation", gen, "loadId", loadID, "duration", time.Since(start))
		return
	}

	if err != nil {
		e.status = types.StatusFailed
		e.err = err
		close(e.settled)
		s.observer.LoadFinished(s.realm, damID, OutcomeFailed, time.Since(start))
		s.logger.Cache().Warn("DAM configuration load failed", "realm", s.realm, "damId", damID, "generation", gen, "loadId", loadID, "error", err, "duration", time.Since(start))
		return
	}

	if cfg == nil {
		cfg = entities.DamConfig{}
	}
	e.status = types.StatusLoaded
	e.loadedAt = time.Now().UTC()
	s.commitLocked(s.state.With(damID, cfg))
	close(e.settled)
	s.observer.LoadFinished(s.realm, damID, OutcomeCommitted, time.Since(start))

	s.logger.LogCacheOperation("load_committed", s.realm, damID, gen, time.Since(start))
}

// commitLocked publishes next as the current snapshot. Publishing under s.mu
// keeps subscribers in commit order.
func (s *DamConfigStore) commitLocked(next types.DamConfigState) {
	s.state = next
	s.subject.Next(next)
}
