package stores

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnastack/ddap-admin/internal/domain/entities"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/types"
)

type loadResult struct {
	cfg entities.DamConfig
	err error
}

type loadCall struct {
	damID string
	reply chan loadResult
}

// gatedLoader hands every Load call to the test, which decides when and how
// it completes.
type gatedLoader struct {
	calls chan loadCall
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{calls: make(chan loadCall, 16)}
}

func (l *gatedLoader) Load(ctx context.Context, damID string) (entities.DamConfig, error) {
	call := loadCall{damID: damID, reply: make(chan loadResult, 1)}
	l.calls <- call
	select {
	case r := <-call.reply:
		return r.cfg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *gatedLoader) next(t *testing.T) loadCall {
	t.Helper()
	select {
	case call := <-l.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("expected a load call")
		return loadCall{}
	}
}

func (l *gatedLoader) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case call := <-l.calls:
		t.Fatalf("unexpected load call for %s", call.damID)
	case <-time.After(50 * time.Millisecond):
	}
}

func mustConfig(t *testing.T, doc string) entities.DamConfig {
	t.Helper()
	var cfg entities.DamConfig
	require.NoError(t, json.Unmarshal([]byte(doc), &cfg))
	return cfg
}

func waitStatus(t *testing.T, s *DamConfigStore, damID string, want types.EntryStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Status(damID).Status == want
	}, 2*time.Second, 5*time.Millisecond, "damId %s never reached %s", damID, want)
}

func newTestStore(t *testing.T) (*DamConfigStore, *gatedLoader) {
	t.Helper()
	loader := newGatedLoader()
	s := NewDamConfigStore("master", loader, nil)
	t.Cleanup(s.Close)
	return s, loader
}

func TestDamConfigStore_InitDeduplicates(t *testing.T) {
	s, loader := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Init("dam1")
		}()
	}
	wg.Wait()

	call := loader.next(t)
	assert.Equal(t, "dam1", call.damID)
	loader.assertIdle(t)
	assert.Equal(t, types.StatusLoading, s.Status("dam1").Status)

	call.reply <- loadResult{cfg: mustConfig(t, `{"resources":{}}`)}
	waitStatus(t, s, "dam1", types.StatusLoaded)

	s.Init("dam1")
	loader.assertIdle(t)
}

func TestDamConfigStore_DifferentDamsLoadIndependently(t *testing.T) {
	s, loader := newTestStore(t)

	s.Init("dam1")
	s.Init("dam2")
	first, second := loader.next(t), loader.next(t)
	assert.ElementsMatch(t, []string{"dam1", "dam2"}, []string{first.damID, second.damID})

	first.reply <- loadResult{cfg: entities.DamConfig{}}
	waitStatus(t, s, first.damID, types.StatusLoaded)
	assert.Equal(t, types.StatusLoading, s.Status(second.damID).Status)
}

func TestDamConfigStore_StateReplaysLatest(t *testing.T) {
	s, loader := newTestStore(t)

	s.Init("dam1")
	loader.next(t).reply <- loadResult{cfg: mustConfig(t, `{"resources":{"res-a":{"ui":{"label":"A"}}}}`)}
	waitStatus(t, s, "dam1", types.StatusLoaded)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	late := s.State()
	defer late.Close()
	snapshot, err := late.Receive(ctx)
	require.NoError(t, err)

	_, ok := snapshot.Collection("dam1", "resources").Get("res-a")
	assert.True(t, ok)
}

func TestDamConfigStore_ResourceScenario(t *testing.T) {
	s, loader := newTestStore(t)
	resources := NewDamConfigEntityStore[json.RawMessage]("resources", s, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	list := resources.ListFor("dam1")
	defer list.Close()

	initial, err := list.Receive(ctx)
	require.NoError(t, err)
	assert.Empty(t, initial)
	assert.NotNil(t, initial)

	resources.Init("dam1")
	loader.next(t).reply <- loadResult{cfg: mustConfig(t, `{"resources":{"res-a":{"ui":{"label":"A"}}}}`)}

	loaded, err := list.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "res-a", loaded[0].Name)
	assert.JSONEq(t, `{"ui":{"label":"A"}}`, string(loaded[0].Dto))

	detail := resources.DetailFor("dam1", "res-a")
	defer detail.Close()
	d, err := detail.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, d.Found)
	assert.Equal(t, "res-a", d.Entity.Name)

	missing := resources.DetailFor("dam1", "res-z")
	defer missing.Close()
	m, err := missing.Receive(ctx)
	require.NoError(t, err)
	assert.False(t, m.Found)
}

func TestDamConfigStore_MergeIsLocal(t *testing.T) {
	s, loader := newTestStore(t)

	s.Init("dam1")
	s.Init("dam2")
	for i := 0; i < 2; i++ {
		call := loader.next(t)
		call.reply <- loadResult{cfg: mustConfig(t, `{
			"resources": {"res-a": {"x": 1}, "res-b": {"x": 2}},
			"clients": {"c1": {"clientId": "abc"}}
		}`)}
	}
	waitStatus(t, s, "dam1", types.StatusLoaded)
	waitStatus(t, s, "dam2", types.StatusLoaded)

	before := s.Snapshot()
	s.MergeEntity("dam1", "resources", "res-c", json.RawMessage(`{"x":3}`))
	after := s.Snapshot()

	assert.Equal(t, []string{"res-a", "res-b", "res-c"}, after.Collection("dam1", "resources").Names())
	assert.Equal(t, []string{"res-a", "res-b"}, before.Collection("dam1", "resources").Names(), "published snapshot mutated")
	assert.Equal(t, before["dam2"], after["dam2"])
	assert.Equal(t, before["dam1"]["clients"], after["dam1"]["clients"])

	raw, _ := after.Collection("dam1", "resources").Get("res-a")
	assert.JSONEq(t, `{"x":1}`, string(raw))

	s.MergeEntity("dam1", "resources", "res-a", json.RawMessage(`{"x":10}`))
	assert.Equal(t, []string{"res-a", "res-b", "res-c"}, s.Snapshot().Collection("dam1", "resources").Names())

	s.RemoveEntity("dam1", "resources", "res-b")
	assert.Equal(t, []string{"res-a", "res-c"}, s.Snapshot().Collection("dam1", "resources").Names())
	assert.Equal(t, before["dam2"], s.Snapshot()["dam2"])

	loader.assertIdle(t)
}

func TestDamConfigStore_StateDeliversEveryCommit(t *testing.T) {
	s, loader := newTestStore(t)

	s.Init("dam1")
	loader.next(t).reply <- loadResult{cfg: mustConfig(t, `{"resources":{}}`)}
	waitStatus(t, s, "dam1", types.StatusLoaded)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := s.State()
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	for _, name := range []string{"r1", "r2", "r3"} {
		s.MergeEntity("dam1", "resources", name, json.RawMessage(`{}`))
	}

	var seen [][]string
	for i := 0; i < 3; i++ {
		state, err := sub.Receive(ctx)
		require.NoError(t, err)
		seen = append(seen, state.Collection("dam1", "resources").Names())
	}
	assert.Equal(t, [][]string{{"r1"}, {"r1", "r2"}, {"r1", "r2", "r3"}}, seen)
}

func TestDamConfigStore_MergeWithoutDocumentIsNoop(t *testing.T) {
	s, loader := newTestStore(t)

	sub := s.State()
	defer sub.Close()
	<-sub.C()

	s.MergeEntity("dam9", "resources", "res-a", json.RawMessage(`{}`))
	s.RemoveEntity("dam9", "resources", "res-a")

	assert.Empty(t, s.Snapshot())
	select {
	case v := <-sub.C():
		t.Fatalf("unexpected emission %v", v)
	case <-time.After(50 * time.Millisecond):
	}
	loader.assertIdle(t)
}

func TestDamConfigStore_InvalidateLastIssuedWins(t *testing.T) {
	s, loader := newTestStore(t)

	s.Init("dam1")
	stale := loader.next(t)
	s.Invalidate("dam1")
	fresh := loader.next(t)
	assert.Equal(t, uint64(2), s.Status("dam1").Generation)

	fresh.reply <- loadResult{cfg: mustConfig(t, `{"resources":{"new":{}}}`)}
	waitStatus(t, s, "dam1", types.StatusLoaded)

	stale.reply <- loadResult{cfg: mustConfig(t, `{"resources":{"old":{}}}`)}
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []string{"new"}, s.Snapshot().Collection("dam1", "resources").Names())
}

func TestDamConfigStore_StaleFailureIgnored(t *testing.T) {
	s, loader := newTestStore(t)

	s.Init("dam1")
	stale := loader.next(t)
	s.Invalidate("dam1")
	fresh := loader.next(t)

	stale.reply <- loadResult{err: errors.New("boom")}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, types.StatusLoading, s.Status("dam1").Status)

	fresh.reply <- loadResult{cfg: entities.DamConfig{}}
	waitStatus(t, s, "dam1", types.StatusLoaded)
}

func TestDamConfigStore_MergeSupersedesInFlightLoad(t *testing.T) {
	s, loader := newTestStore(t)

	s.Init("dam1")
	loader.next(t).reply <- loadResult{cfg: mustConfig(t, `{"resources":{"res-a":{}}}`)}
	waitStatus(t, s, "dam1", types.StatusLoaded)

	s.Invalidate("dam1")
	inFlight := loader.next(t)

	s.MergeEntity("dam1", "resources", "res-b", json.RawMessage(`{}`))
	reissued := loader.next(t)

	inFlight.reply <- loadResult{cfg: mustConfig(t, `{"resources":{"res-a":{}}}`)}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"res-a", "res-b"}, s.Snapshot().Collection("dam1", "resources").Names())

	reissued.reply <- loadResult{cfg: mustConfig(t, `{"resources":{"res-a":{},"res-b":{}}}`)}
	waitStatus(t, s, "dam1", types.StatusLoaded)
	assert.Equal(t, []string{"res-a", "res-b"}, s.Snapshot().Collection("dam1", "resources").Names())
}

func TestDamConfigStore_FailedIsRetryable(t *testing.T) {
	s, loader := newTestStore(t)

	s.Init("dam1")
	loader.next(t).reply <- loadResult{err: errors.New("unreachable")}
	waitStatus(t, s, "dam1", types.StatusFailed)

	st := s.Status("dam1")
	assert.Equal(t, "unreachable", st.Error)
	assert.Empty(t, s.Snapshot())

	s.Init("dam1")
	loader.next(t).reply <- loadResult{cfg: mustConfig(t, `{"resources":{"res-a":{}}}`)}
	waitStatus(t, s, "dam1", types.StatusLoaded)
	assert.Equal(t, []string{"res-a"}, s.Snapshot().Collection("dam1", "resources").Names())
}

func TestDamConfigStore_FailedRefreshKeepsDocument(t *testing.T) {
	s, loader := newTestStore(t)

	s.Init("dam1")
	loader.next(t).reply <- loadResult{cfg: mustConfig(t, `{"resources":{"res-a":{}}}`)}
	waitStatus(t, s, "dam1", types.StatusLoaded)

	s.Invalidate("dam1")
	loader.next(t).reply <- loadResult{err: errors.New("timeout")}
	waitStatus(t, s, "dam1", types.StatusFailed)

	assert.Equal(t, []string{"res-a"}, s.Snapshot().Collection("dam1", "resources").Names())
}

func TestDamConfigStore_Await(t *testing.T) {
	s, loader := newTestStore(t)

	done := make(chan error, 1)
	go func() { done <- s.Await(context.Background(), "dam1") }()

	call := loader.next(t)
	call.reply <- loadResult{cfg: entities.DamConfig{}}
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return")
	}

	loadErr := errors.New("denied")
	go func() { done <- s.Await(context.Background(), "dam2") }()
	loader.next(t).reply <- loadResult{err: loadErr}
	select {
	case err := <-done:
		assert.ErrorIs(t, err, loadErr)
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return")
	}
}

func TestDamConfigStore_AwaitHonoursContext(t *testing.T) {
	s, loader := newTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Await(ctx, "dam1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	loader.next(t)
	assert.Equal(t, types.StatusLoading, s.Status("dam1").Status)
}

func TestDamConfigStore_Close(t *testing.T) {
	loader := newGatedLoader()
	s := NewDamConfigStore("master", loader, nil)

	sub := s.State()
	<-sub.C()

	s.Init("dam1")
	loader.next(t)
	s.Close()

	_, open := <-sub.C()
	assert.False(t, open)
	assert.ErrorIs(t, s.Await(context.Background(), "dam1"), ErrStoreClosed)

	s.Invalidate("dam1")
	loader.assertIdle(t)
	s.Close()
}

func TestDamConfigStore_UnsubscribeLeavesCache(t *testing.T) {
	s, loader := newTestStore(t)

	s.Init("dam1")
	loader.next(t).reply <- loadResult{cfg: mustConfig(t, `{"views":{"v1":{}}}`)}
	waitStatus(t, s, "dam1", types.StatusLoaded)

	for i := 0; i < 3; i++ {
		sub := s.State()
		sub.Close()
	}

	s.Init("dam1")
	loader.assertIdle(t)
	assert.Equal(t, []string{"v1"}, s.Snapshot().Collection("dam1", "views").Names())
}

type recordingObserver struct {
	mu       sync.Mutex
	issued   []string
	outcomes []LoadOutcome
}

func (o *recordingObserver) LoadIssued(_, damID, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.issued = append(o.issued, damID+":"+reason)
}

func (o *recordingObserver) LoadFinished(_, _ string, outcome LoadOutcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) finished() []LoadOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]LoadOutcome(nil), o.outcomes...)
}

func TestDamConfigStore_ObserverSeesEveryOutcome(t *testing.T) {
	observer := &recordingObserver{}
	loader := newGatedLoader()
	s := NewDamConfigStore("master", loader, nil, WithLoadObserver(observer))
	t.Cleanup(s.Close)

	s.Init("dam1")
	stale := loader.next(t)
	s.Invalidate("dam1")
	fresh := loader.next(t)

	stale.reply <- loadResult{cfg: mustConfig(t, `{}`)}
	require.Eventually(t, func() bool { return len(observer.finished()) == 1 }, 2*time.Second, 5*time.Millisecond)
	fresh.reply <- loadResult{err: errors.New("boom")}
	waitStatus(t, s, "dam1", types.StatusFailed)

	s.Init("dam1")
	loader.next(t).reply <- loadResult{cfg: mustConfig(t, `{}`)}
	waitStatus(t, s, "dam1", types.StatusLoaded)

	require.Eventually(t, func() bool { return len(observer.finished()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []LoadOutcome{OutcomeSuperseded, OutcomeFailed, OutcomeCommitted}, observer.finished())
	observer.mu.Lock()
	assert.Equal(t, []string{"dam1:init", "dam1:invalidate", "dam1:init"}, observer.issued)
	observer.mu.Unlock()
}

func TestDamConfigStore_Statuses(t *testing.T) {
	s, loader := newTestStore(t)
	assert.Empty(t, s.Statuses())

	s.Init("dam2")
	s.Init("dam1")
	first := loader.next(t)
	second := loader.next(t)
	for _, call := range []loadCall{first, second} {
		call.reply <- loadResult{cfg: mustConfig(t, `{}`)}
	}
	waitStatus(t, s, "dam1", types.StatusLoaded)
	waitStatus(t, s, "dam2", types.StatusLoaded)

	statuses := s.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "dam1", statuses[0].DamID)
	assert.Equal(t, "dam2", statuses[1].DamID)
	assert.NotEmpty(t, statuses[0].LoadID)

	sub := s.State()
	assert.Equal(t, 1, s.SubscriberCount())
	sub.Close()
	assert.Equal(t, 0, s.SubscriberCount())
}
