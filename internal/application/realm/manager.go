// Package realm manages the per-realm configuration caches, creating them on
// first use and closing them when they go idle.
package realm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dnastack/ddap-admin/internal/application/services"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/stores"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/types"
	"github.com/dnastack/ddap-admin/internal/infrastructure/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

var (
	ErrInvalidRealm  = errors.New("invalid realm")
	ErrTooManyRealms = errors.New("too many active realms")
)

var realmPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,39}$`)

// ValidName reports whether name can be used as a realm.
func ValidName(name string) bool {
	return realmPattern.MatchString(name)
}

// Recorder receives realm lifecycle metrics.
type Recorder interface {
	SetActiveRealms(n int)
	RecordEviction(reason string)
}

type nopRecorder struct{}

func (nopRecorder) SetActiveRealms(int)   {}
func (nopRecorder) RecordEviction(string) {}

// Dependencies are shared by every realm.
type Dependencies struct {
	Registry  *dam.Registry
	Transport dam.Transport
	Notifier  services.ErrorNotifier
	Observer  stores.LoadObserver
	Recorder  Recorder
	Logger    *logging.ChanneledLogger
	MaxRealms int
}

// Status is the cache status of one realm.
type Status struct {
	Realm        string             `json:"realm"`
	Dams         []types.EntryState `json:"dams"`
	Subscribers  int                `json:"subscribers"`
	InFlight     int                `json:"inFlight"`
	LastAccessed time.Time          `json:"lastAccessed"`
}

// Manager creates realm contexts on demand.
type Manager struct {
	deps     Dependencies
	mu       sync.Mutex
	contexts map[string]*Context
	closed   bool
}

// NewManager creates a manager with no realms.
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = logging.NewDiscardLogger()
	}
	if deps.Notifier == nil {
		deps.Notifier = services.NopNotifier()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	deps.Logger.Realm().Info("Initializing realm manager", "dams", deps.Registry.IDs(), "maxRealms", deps.MaxRealms)
	return &Manager{
		deps:     deps,
		contexts: make(map[string]*Context),
	}
}

// Registry returns the DAM registry shared by every realm.
func (m *Manager) Registry() *dam.Registry { return m.deps.Registry }

// Get returns the context of realm, creating it on first use.
func (m *Manager) Get(realm string) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(realm)
}

// Acquire is Get for the duration of one request. The realm is not evicted
// for capacity until release is called.
func (m *Manager) Acquire(realm string) (*Context, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, err := m.getLocked(realm)
	if err != nil {
		return nil, nil, err
	}
	ctx.inflight.Add(1)
	var once sync.Once
	release := func() {
		once.Do(func() {
			ctx.Touch()
			ctx.inflight.Add(-1)
		})
	}
	return ctx, release, nil
}

func (m *Manager) getLocked(realm string) (*Context, error) {
	if !ValidName(realm) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRealm, realm)
	}
	if m.closed {
		return nil, stores.ErrStoreClosed
	}

	if ctx, ok := m.contexts[realm]; ok {
		ctx.Touch()
		return ctx, nil
	}

	if m.deps.MaxRealms > 0 && len(m.contexts) >= m.deps.MaxRealms {
		if !m.evictLeastRecentLocked() {
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRealms, m.deps.MaxRealms)
		}
	}

	ctx := m.createContext(realm)
	m.contexts[realm] = ctx
	m.deps.Recorder.SetActiveRealms(len(m.contexts))
	return ctx, nil
}

// Lookup returns the context of realm without creating it.
func (m *Manager) Lookup(realm string) (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.contexts[realm]
	return ctx, ok
}

// Realms lists the realms with a live context, sorted.
func (m *Manager) Realms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.contexts))
	for name := range m.contexts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Evict closes the context of realm. Later requests start from an empty cache.
func (m *Manager) Evict(realm, reason string) bool {
	m.mu.Lock()
	ctx, ok := m.contexts[realm]
	if ok {
		delete(m.contexts, realm)
		m.deps.Recorder.SetActiveRealms(len(m.contexts))
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	ctx.Close()
	m.deps.Recorder.RecordEviction(reason)
	m.deps.Logger.Realm().Info("Realm cache evicted", "realm", realm, "reason", reason)
	return true
}

// EvictIdle closes every realm that is idle for longer than timeout and
// returns their names.
func (m *Manager) EvictIdle(timeout time.Duration) []string {
	now := time.Now()
	m.mu.Lock()
	var idle []string
	for name, ctx := range m.contexts {
		if ctx.Idle(timeout, now) {
			idle = append(idle, name)
		}
	}
	m.mu.Unlock()

	sort.Strings(idle)
	evicted := idle[:0]
	for _, name := range idle {
		if m.Evict(name, "idle") {
			evicted = append(evicted, name)
		}
	}
	return evicted
}

// CacheStatus reports the cache entries of realm. A realm without a context
// reports no entries.
func (m *Manager) CacheStatus(realm string) (any, error) {
	return m.Status(realm)
}

// Status is CacheStatus with a concrete type.
func (m *Manager) Status(realm string) (Status, error) {
	if !ValidName(realm) {
		return Status{}, fmt.Errorf("%w: %q", ErrInvalidRealm, realm)
	}
	st := Status{Realm: realm, Dams: []types.EntryState{}}
	ctx, ok := m.Lookup(realm)
	if !ok {
		return st, nil
	}
	st.Dams = ctx.Store.Statuses()
	st.Subscribers = ctx.Store.SubscriberCount()
	st.InFlight = ctx.InFlight()
	st.LastAccessed = ctx.LastAccessed().UTC()
	return st, nil
}

// Close closes every realm.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	contexts := m.contexts
	m.contexts = make(map[string]*Context)
	m.mu.Unlock()

	for _, ctx := range contexts {
		ctx.Close()
	}
	m.deps.Recorder.SetActiveRealms(0)
	m.deps.Logger.Shutdown().Info("Realm caches closed", "count", len(contexts))
}

// evictLeastRecentLocked closes the least recently used realm that has no
// watchers and no request in flight. Caller holds m.mu.
func (m *Manager) evictLeastRecentLocked() bool {
	var victim string
	var oldest time.Time
	for name, ctx := range m.contexts {
		if ctx.Busy() {
			continue
		}
		if victim == "" || ctx.LastAccessed().Before(oldest) {
			victim, oldest = name, ctx.LastAccessed()
		}
	}
	if victim == "" {
		return false
	}

	ctx := m.contexts[victim]
	delete(m.contexts, victim)
	go ctx.Close()
	m.deps.Recorder.RecordEviction("capacity")
	m.deps.Logger.Realm().Info("Realm cache evicted", "realm", victim, "reason", "capacity")
	return true
}

func (m *Manager) createContext(realm string) *Context {
	start := time.Now()
	logger := m.deps.Logger

	dams := services.NewDamConfigService(m.deps.Registry, m.deps.Transport, m.deps.Notifier, logger, realm)
	var opts []stores.StoreOption
	if m.deps.Observer != nil {
		opts = append(opts, stores.WithLoadObserver(m.deps.Observer))
	}
	store := stores.NewDamConfigStore(realm, dams, logger, opts...)

	ctx := &Context{
		Realm:       realm,
		Store:       store,
		Options:     services.NewOptionService(m.deps.Registry, m.deps.Transport, m.deps.Notifier, logger, realm),
		Dams:        dams,
		collections: make(map[string]*stores.DamConfigEntityStore[json.RawMessage], len(collectionSpecs)),
		writers:     make(map[string]*services.ConfigEntityService, len(collectionSpecs)),
	}
	for _, spec := range collectionSpecs {
		writer := services.NewConfigEntityService(m.deps.Registry, m.deps.Transport, m.deps.Notifier, logger, realm, spec.typeNameInPath, spec.name)
		ctx.writers[spec.name] = writer
		ctx.collections[spec.name] = stores.NewDamConfigEntityStore[json.RawMessage](spec.name, store, writer, spec.entityOptions()...)
	}
	ctx.Touch()

	logger.Realm().Info("Realm cache created", "realm", realm, "collections", ctx.CollectionNames(), "duration", time.Since(start))
	return ctx
}
