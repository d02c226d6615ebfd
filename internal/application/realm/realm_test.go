package realm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnastack/ddap-admin/internal/domain/entities"
	damentities "github.com/dnastack/ddap-admin/internal/domain/entities/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/stores"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/types"
	"github.com/dnastack/ddap-admin/internal/infrastructure/dam"
)

// memoryDam answers config reads from an in-memory document per realm and
// records writes.
type memoryDam struct {
	mu     sync.Mutex
	docs   map[string]string
	reads  int
	writes []string
}

func (m *memoryDam) Get(_ context.Context, rawURL string, _ url.Values) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	doc, ok := m.docs[rawURL]
	if !ok {
		return nil, &dam.StatusError{Method: http.MethodGet, URL: rawURL, StatusCode: http.StatusNotFound}
	}
	return json.RawMessage(doc), nil
}

func (m *memoryDam) Put(_ context.Context, rawURL string, _ url.Values, _ any) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, http.MethodPut+" "+rawURL)
	return json.RawMessage(`{}`), nil
}

func (m *memoryDam) Delete(_ context.Context, rawURL string, _ url.Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, http.MethodDelete+" "+rawURL)
	return nil
}

func (m *memoryDam) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

type countingRecorder struct {
	mu        sync.Mutex
	active    int
	evictions []string
}

func (r *countingRecorder) SetActiveRealms(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = n
}

func (r *countingRecorder) RecordEviction(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions = append(r.evictions, reason)
}

const base = "http://dam.local"

func newManager(t *testing.T, backend *memoryDam, maxRealms int) (*Manager, *countingRecorder) {
	t.Helper()
	reg, err := dam.NewRegistry(dam.Instance{ID: "dam1", BaseURL: base, ClientID: "c", ClientSecret: "s"})
	require.NoError(t, err)
	recorder := &countingRecorder{}
	m := NewManager(Dependencies{Registry: reg, Transport: backend, Recorder: recorder, MaxRealms: maxRealms})
	t.Cleanup(m.Close)
	return m, recorder
}

func TestManager_GetValidatesAndReuses(t *testing.T) {
	m, recorder := newManager(t, &memoryDam{}, 0)

	_, err := m.Get("bad realm")
	assert.ErrorIs(t, err, ErrInvalidRealm)
	_, err = m.Get("")
	assert.ErrorIs(t, err, ErrInvalidRealm)

	first, err := m.Get("master")
	require.NoError(t, err)
	second, err := m.Get("master")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, []string{"master"}, m.Realms())
	assert.Equal(t, 1, recorder.active)

	assert.Equal(t, []string{"clients", "resources", "trustedSources", "views", "workflows"}, first.CollectionNames())
	_, ok := first.Collection("options")
	assert.False(t, ok)
}

func TestContext_LoadSaveAndRemove(t *testing.T) {
	backend := &memoryDam{docs: map[string]string{
		base + "/dam/v1alpha/master/config": `{"resources":{"res-a":{"ui":{"label":"A"}}},"trustedSources":{"elixir":{"sources":["https://idp"]}}}`,
	}}
	m, _ := newManager(t, backend, 0)
	ctx, err := m.Get("master")
	require.NoError(t, err)

	resources, ok := ctx.Collection("resources")
	require.True(t, ok)
	require.NoError(t, resources.Await(context.Background(), "dam1"))
	assert.Equal(t, 1, backend.readCount())

	typed, found := stores.NewDamConfigEntityStore[damentities.Resource](damentities.CollectionResources, ctx.Store, nil).Get("dam1", "res-a")
	require.True(t, found)
	assert.Equal(t, "A", typed.Dto.UI["label"])
	sources := stores.NewDamConfigEntityStore[damentities.TrustedSource](damentities.CollectionTrustedSources, ctx.Store, nil).List("dam1")
	require.Len(t, sources, 1)
	assert.Equal(t, []string{"https://idp"}, sources[0].Dto.Sources)

	change, err := entities.NewConfigModification(map[string]any{"ui": map[string]string{"label": "B"}}, nil)
	require.NoError(t, err)
	require.NoError(t, resources.Save(context.Background(), "dam1", "res-b", change))
	require.NoError(t, resources.Remove(context.Background(), "dam1", "res-a"))

	assert.Equal(t, []string{
		"PUT " + base + "/dam/v1alpha/master/config/resources/res-b",
		"DELETE " + base + "/dam/v1alpha/master/config/resources/res-a",
	}, backend.writes)
	assert.Equal(t, []string{"res-b"}, ctx.Store.Snapshot().Collection("dam1", "resources").Names())
	assert.Equal(t, 1, backend.readCount())
}

func TestContext_WorkflowSaveRereads(t *testing.T) {
	backend := &memoryDam{docs: map[string]string{
		base + "/dam/v1alpha/master/config": `{"workflows":{}}`,
	}}
	m, _ := newManager(t, backend, 0)
	ctx, err := m.Get("master")
	require.NoError(t, err)

	workflows, _ := ctx.Collection("workflows")
	require.NoError(t, workflows.Await(context.Background(), "dam1"))

	change, err := entities.NewConfigModification(map[string]any{"wdl": "task t {}"}, nil)
	require.NoError(t, err)
	require.NoError(t, workflows.Save(context.Background(), "dam1", "wf", change))

	require.Eventually(t, func() bool {
		return backend.readCount() == 2 && ctx.Store.Status("dam1").Status == types.StatusLoaded
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, workflows.List("dam1"))
}

func TestManager_EvictIdleSparesWatchedRealms(t *testing.T) {
	m, recorder := newManager(t, &memoryDam{}, 0)
	watched, err := m.Get("watched")
	require.NoError(t, err)
	_, err = m.Get("quiet")
	require.NoError(t, err)

	sub := watched.Store.State()
	defer sub.Close()

	evicted := m.EvictIdle(0)
	assert.Equal(t, []string{"quiet"}, evicted)
	assert.Equal(t, []string{"watched"}, m.Realms())
	assert.Equal(t, []string{"idle"}, recorder.evictions)

	_, ok := m.Lookup("quiet")
	assert.False(t, ok)
	assert.Empty(t, m.EvictIdle(time.Hour))
}

func TestManager_Capacity(t *testing.T) {
	m, recorder := newManager(t, &memoryDam{}, 2)

	a, err := m.Get("a")
	require.NoError(t, err)
	subA := a.Store.State()
	defer subA.Close()
	_, err = m.Get("b")
	require.NoError(t, err)

	_, err = m.Get("c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, m.Realms())
	assert.Equal(t, []string{"capacity"}, recorder.evictions)

	c, _ := m.Lookup("c")
	subC := c.Store.State()
	defer subC.Close()

	_, err = m.Get("d")
	assert.ErrorIs(t, err, ErrTooManyRealms)
}

func TestManager_CapacitySparesRealmsServingRequests(t *testing.T) {
	m, recorder := newManager(t, &memoryDam{}, 1)

	busy, release, err := m.Acquire("busy")
	require.NoError(t, err)
	assert.Equal(t, 1, busy.InFlight())

	_, err = m.Get("other")
	assert.ErrorIs(t, err, ErrTooManyRealms)
	assert.Empty(t, m.EvictIdle(0))

	st, err := m.Status("busy")
	require.NoError(t, err)
	assert.Equal(t, 1, st.InFlight)

	release()
	release()
	assert.Equal(t, 0, busy.InFlight())

	_, err = m.Get("other")
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, m.Realms())
	assert.Equal(t, []string{"capacity"}, recorder.evictions)

	_, _, err = m.Acquire("bad realm")
	assert.ErrorIs(t, err, ErrInvalidRealm)
}

func TestManager_CacheStatus(t *testing.T) {
	backend := &memoryDam{docs: map[string]string{}}
	m, _ := newManager(t, backend, 0)

	st, err := m.Status("master")
	require.NoError(t, err)
	assert.Empty(t, st.Dams)

	ctx, err := m.Get("master")
	require.NoError(t, err)
	loadErr := ctx.Store.Await(context.Background(), "dam1")
	require.Error(t, loadErr)

	raw, err := m.CacheStatus("master")
	require.NoError(t, err)
	st = raw.(Status)
	require.Len(t, st.Dams, 1)
	assert.Equal(t, "dam1", st.Dams[0].DamID)
	assert.Equal(t, types.StatusFailed, st.Dams[0].Status)
	assert.NotEmpty(t, st.Dams[0].Error)

	_, err = m.CacheStatus("no such realm")
	assert.True(t, errors.Is(err, ErrInvalidRealm))
}

func TestCleanupWorker_RunOnce(t *testing.T) {
	backend := &memoryDam{docs: map[string]string{
		base + "/dam/v1alpha/master/config": `{"resources":{"r":{}}}`,
	}}
	m, _ := newManager(t, backend, 0)
	ctx, err := m.Get("master")
	require.NoError(t, err)
	require.NoError(t, ctx.Store.Await(context.Background(), "dam1"))

	var out bytes.Buffer
	w := NewCleanupWorker(m, CleanupConfig{Interval: time.Hour, IdleTimeout: 0, VerboseReporting: true, Output: &out})

	evicted := w.RunOnce()

	assert.Equal(t, []string{"master"}, evicted)
	report := out.String()
	assert.Contains(t, report, "PERIODIC REALM CLEANUP")
	assert.Contains(t, report, "Realm: ")
	assert.Contains(t, report, "dam1: ")
	assert.Contains(t, report, "LOADED")
	assert.True(t, strings.Contains(report, "1 idle realms closed"))
}

func TestCleanupWorker_StartStops(t *testing.T) {
	m, _ := newManager(t, &memoryDam{}, 0)
	_, err := m.Get("master")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewCleanupWorker(m, CleanupConfig{Interval: 5 * time.Millisecond, IdleTimeout: 0}).Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(m.Realms()) == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
