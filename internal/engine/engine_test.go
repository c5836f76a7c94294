package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reqsync/internal/cache"
	"github.com/roach88/reqsync/internal/model"
	fixtures "github.com/roach88/reqsync/internal/testutil"
)

// recorder collects alerts delivered through both engine hooks.
type recorder struct {
	mu       sync.Mutex
	changes  []ChangeEvent
	messages []string
}

func (r *recorder) onChange(c ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) Notify(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) Changes() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChangeEvent(nil), r.changes...)
}

func (r *recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

type harness struct {
	engine  *Engine
	cache   *cache.Cache
	remote  *fixtures.FakeRemote
	alerts  *recorder
	metrics *Metrics
}

func setupTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// setupTestEngine runs an engine with the ticker disabled unless opts
// enable it.
func setupTestEngine(t *testing.T, rem *fixtures.FakeRemote, opts ...EngineOption) *harness {
	t.Helper()
	h := &harness{
		cache:   setupTestCache(t),
		remote:  rem,
		alerts:  &recorder{},
		metrics: NewMetrics(nil),
	}
	base := []EngineOption{
		WithPollInterval(0),
		WithNotifier(h.alerts),
		WithChangeListener(h.alerts.onChange),
		WithMetrics(h.metrics),
		WithIDGenerator(NewFixedGenerator("id-1", "id-2", "id-3")),
		WithNow(func() time.Time { return fixtures.Epoch.Add(24 * time.Hour) }),
	}
	h.engine = New(h.cache, rem, append(base, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.engine.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.engine.Done()
	})
	return h
}

func reqFixture(id string) model.Requisition {
	return model.Requisition{ID: id, RequisitionNumber: "R-1", Type: model.TypeFactory}
}

func ids(s model.Snapshot) []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = r.ID
	}
	return out
}

func TestEngine_InitialStateIsIdle(t *testing.T) {
	e := New(cache.NewMemory(), fixtures.NewFakeRemote(nil))

	assert.Equal(t, StateIdle, e.State())
	assert.Empty(t, e.Snapshot())
	assert.Equal(t, "R-1000", e.NextNumber())
	_, ok := e.Session()
	assert.False(t, ok)
}

func TestEngine_StartSession_PaintsCacheThenLoadsRemote(t *testing.T) {
	ctx := context.Background()
	rem := fixtures.NewFakeRemote(fixtures.Requisitions(3))

	var mu sync.Mutex
	var views []View
	h := setupTestEngine(t, rem, WithViewListener(func(v View) {
		mu.Lock()
		defer mu.Unlock()
		views = append(views, v)
	}))
	h.cache.WriteSnapshot(ctx, fixtures.Requisitions(2))

	require.NoError(t, h.engine.StartSession(ctx, fixtures.Manager()))

	mu.Lock()
	require.GreaterOrEqual(t, len(views), 2)
	first := views[0]
	mu.Unlock()
	assert.Equal(t, StateInitialLoad, first.State)
	assert.Len(t, first.Snapshot, 2, "cached snapshot is published before the fetch")
	assert.Equal(t, 2, first.Baseline)

	assert.Equal(t, StatePolling, h.engine.State())
	assert.Equal(t, []string{"req-0003", "req-0002", "req-0001"}, ids(h.engine.Snapshot()), "newest first")
	assert.Equal(t, 3, h.engine.Baseline())
	assert.Empty(t, h.alerts.Changes(), "initial load never alerts")

	cached, ok := h.cache.ReadSnapshot(ctx)
	require.True(t, ok)
	assert.Equal(t, ids(h.engine.Snapshot()), ids(cached))
}

func TestEngine_PollSequences(t *testing.T) {
	tests := []struct {
		name         string
		initial      int
		next         int
		wantDelta    []int
		wantBaseline int
	}{
		{"unchanged count", 5, 5, nil, 5},
		{"growth alerts once with delta", 5, 7, []int{2}, 7},
		{"cold start never alerts", 0, 3, nil, 3},
		{"shrink is silent", 5, 4, nil, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			rem := fixtures.NewFakeRemote(fixtures.Requisitions(tt.initial))
			h := setupTestEngine(t, rem)

			require.NoError(t, h.engine.StartSession(ctx, fixtures.Manager()))
			require.Equal(t, tt.initial, h.engine.Baseline())

			rem.SetCount(tt.next)
			require.NoError(t, h.engine.PollNow(ctx))

			var deltas []int
			for _, c := range h.alerts.Changes() {
				deltas = append(deltas, c.Delta)
			}
			assert.Equal(t, tt.wantDelta, deltas)
			assert.Equal(t, tt.wantBaseline, h.engine.Baseline())
			assert.Len(t, h.engine.Snapshot(), tt.wantBaseline)
		})
	}
}

func TestEngine_AlertReachesNotifier(t *testing.T) {
	ctx := context.Background()
	rem := fixtures.NewFakeRemote(fixtures.Requisitions(5))
	h := setupTestEngine(t, rem)
	require.NoError(t, h.engine.StartSession(ctx, fixtures.Operator()))

	rem.SetCount(7)
	require.NoError(t, h.engine.PollNow(ctx))
	require.NoError(t, h.engine.PollNow(ctx))

	assert.Equal(t, []string{"2 new requisition(s) found."}, h.alerts.Messages(), "exactly one alert per change")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Alerts))
	assert.Equal(t, 7.0, testutil.ToFloat64(h.metrics.Baseline))
}

func TestEngine_FetchFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	rem := fixtures.NewFakeRemote(fixtures.Requisitions(5))
	h := setupTestEngine(t, rem)
	require.NoError(t, h.engine.StartSession(ctx, fixtures.Manager()))

	boom := errors.New("connection reset")
	rem.SetCount(9)
	rem.FailNextFetch(boom)

	err := h.engine.PollNow(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, h.engine.Baseline())
	assert.Len(t, h.engine.Snapshot(), 5)
	assert.Equal(t, StatePolling, h.engine.State())
	assert.Empty(t, h.alerts.Changes())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Fetches.WithLabelValues("poll", "error")))

	// The next poll compares against the untouched baseline.
	require.NoError(t, h.engine.PollNow(ctx))
	require.Len(t, h.alerts.Changes(), 1)
	assert.Equal(t, 4, h.alerts.Changes()[0].Delta)
}

func TestEngine_InitialLoadFailureIsAbsorbed(t *testing.T) {
	ctx := context.Background()
	rem := fixtures.NewFakeRemote(fixtures.Requisitions(4))
	rem.FailNextFetch(errors.New("offline"))
	h := setupTestEngine(t, rem)
	h.cache.WriteSnapshot(ctx, fixtures.Requisitions(2))

	require.NoError(t, h.engine.StartSession(ctx, fixtures.Manager()))
	assert.Equal(t, StateInitialLoad, h.engine.State())
	assert.Len(t, h.engine.Snapshot(), 2, "cached view stays")

	require.NoError(t, h.engine.PollNow(ctx))
	assert.Equal(t, StatePolling, h.engine.State())
	require.Len(t, h.alerts.Changes(), 1)
	assert.Equal(t, 2, h.alerts.Changes()[0].Delta)
}

func TestEngine_RefreshNeverAlerts(t *testing.T) {
	ctx := context.Background()
	rem := fixtures.NewFakeRemote(fixtures.Requisitions(2))
	h := setupTestEngine(t, rem)
	require.NoError(t, h.engine.StartSession(ctx, fixtures.Manager()))

	rem.SetCount(6)
	require.NoError(t, h.engine.Refresh(ctx))

	assert.Empty(t, h.alerts.Changes())
	assert.Equal(t, 6, h.engine.Baseline())
}

func TestEngine_EmptyRemoteListIsIgnored(t *testing.T) {
	ctx := context.Background()
	rem := fixtures.NewFakeRemote(fixtures.Requisitions(3))
	h := setupTestEngine(t, rem)
	require.NoError(t, h.engine.StartSession(ctx, fixtures.Manager()))

	rem.SetSnapshot(nil)
	require.NoError(t, h.engine.PollNow(ctx))

	assert.Len(t, h.engine.Snapshot(), 3)
	assert.Equal(t, 3, h.engine.Baseline())
	cached, _ := h.cache.ReadSnapshot(ctx)
	assert.Len(t, cached, 3)
}

func TestEngine_StaleResultAfterStopIsDropped(t *testing.T) {
	ctx := context.Background()
	rem := fixtures.NewFakeRemote(fixtures.Requisitions(2))
	h := setupTestEngine(t, rem)
	require.NoError(t, h.engine.StartSession(ctx, fixtures.Manager()))

	release := rem.Hold()
	rem.SetCount(8)
	pollErr := make(chan error, 1)
	go func() { pollErr <- h.engine.PollNow(ctx) }()
	require.Eventually(t, func() bool { return rem.Fetches() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, h.engine.StopSession(ctx))
	release()

	assert.ErrorIs(t, <-pollErr, ErrNoSession)
	assert.Equal(t, StateStopped, h.engine.State())
	assert.Len(t, h.engine.Snapshot(), 2, "late result must not land")
	assert.Empty(t, h.alerts.Changes())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StaleResults))

	cached, _ := h.cache.ReadSnapshot(ctx)
	assert.Len(t, cached, 2)
}

func TestEngine_StaleResultCannotReachNewSession(t *testing.T) {
	ctx := context.Background()
	rem := fixtures.NewFakeRemote(fixtures.Requisitions(2))
	h := setupTestEngine(t, rem)
	require.NoError(t, h.engine.StartSession(ctx, fixtures.Manager()))

	release := rem.Hold()
	rem.SetCount(3)
	pollErr := make(chan error, 1)
	go func() { pollErr <- h.engine.PollNow(ctx) }()
	require.Eventually(t, func() bool { return rem.Fetches() == 2 }, time.Second, time.Millisecond)

	startErr := make(chan error, 1)
	go func() { startErr <- h.engine.StartSession(ctx, fixtures.Fitter("rui", "Rui")) }()
	require.Eventually(t, func() bool { return rem.Fetches() == 3 }, time.Second, time.Millisecond)
	release()

	require.NoError(t, <-startErr)
	assert.ErrorIs(t, <-pollErr, ErrNoSession)

	user, ok := h.engine.Session()
	require.True(t, ok)
	assert.Equal(t, "rui", user.Username)
	assert.Equal(t, 3, h.engine.Baseline())
	assert.Empty(t, h.alerts.Changes())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StaleResults))
}

func TestEngine_RequiresSession(t *testing.T) {
	ctx := context.Background()
	h := setupTestEngine(t, fixtures.NewFakeRemote(fixtures.Requisitions(1)))

	assert.ErrorIs(t, h.engine.PollNow(ctx), ErrNoSession)
	assert.ErrorIs(t, h.engine.Refresh(ctx), ErrNoSession)
	assert.ErrorIs(t, h.engine.StopSession(ctx), ErrNoSession)
	assert.ErrorIs(t, h.engine.StartSession(ctx, model.User{}), ErrNoSession)
}

func TestEngine_StoppedEngineRejectsCalls(t *testing.T) {
	ctx := context.Background()
	e := New(cache.NewMemory(), fixtures.NewFakeRemote(nil), WithPollInterval(0))
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	e.Stop()
	require.NoError(t, <-done)

	assert.ErrorIs(t, e.StartSession(ctx, fixtures.Manager()), ErrStopped)
	assert.ErrorIs(t, e.Run(ctx), ErrAlreadyRunning)
}

func TestEngine_TickerPolls(t *testing.T) {
	ctx := context.Background()
	rem := fixtures.NewFakeRemote(fixtures.Requisitions(5))
	h := setupTestEngine(t, rem, WithPollInterval(5*time.Millisecond))
	require.NoError(t, h.engine.StartSession(ctx, fixtures.Manager()))

	rem.SetCount(6)
	require.Eventually(t, func() bool { return len(h.alerts.Changes()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.engine.Baseline() == 6 }, time.Second, time.Millisecond)

	require.NoError(t, h.engine.StopSession(ctx))
	n := rem.Fetches()
	polls := func() float64 {
		return testutil.ToFloat64(h.metrics.Fetches.WithLabelValues("poll", "ok")) +
			testutil.ToFloat64(h.metrics.Fetches.WithLabelValues("poll", "empty")) +
			testutil.ToFloat64(h.metrics.Fetches.WithLabelValues("poll", "error"))
	}
	applied := polls()
	time.Sleep(30 * time.Millisecond)

	// A tick that fired just before the stop may still reach the remote,
	// but its result is dropped and no new tick follows.
	assert.LessOrEqual(t, rem.Fetches(), n+1)
	assert.Equal(t, applied, polls(), "no poll results applied after stop")
	assert.Equal(t, 1, len(h.alerts.Changes()))
}

func TestEngine_TicksSkipWhileFetchOutstanding(t *testing.T) {
	ctx := context.Background()
	rem := fixtures.NewFakeRemote(fixtures.Requisitions(1))
	h := setupTestEngine(t, rem, WithPollInterval(2*time.Millisecond))

	release := rem.Hold()
	started := make(chan error, 1)
	go func() { started <- h.engine.StartSession(ctx, fixtures.Manager()) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.SkippedTicks) >= 3
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1, rem.Fetches(), "ticks must not pile up behind the initial load")

	release()
	require.NoError(t, <-started)
	assert.Equal(t, StatePolling, h.engine.State())
}
