package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/reqsync/internal/model"
	"github.com/roach88/reqsync/internal/remote"
)

// DefaultPollInterval is the fixed background poll period.
const DefaultPollInterval = 15 * time.Second

// Store persists the snapshot between runs. Writes must not fail loudly;
// an unreadable entry reads as absent.
type Store interface {
	ReadSnapshot(ctx context.Context) (model.Snapshot, bool)
	WriteSnapshot(ctx context.Context, s model.Snapshot)
}

// Remote is the authoritative copy of the requisitions.
type Remote interface {
	FetchRequisitions(ctx context.Context) (model.Snapshot, error)
	SaveRequisition(ctx context.Context, r model.Requisition) (remote.SaveResult, error)
	DeleteRequisition(ctx context.Context, id string) error
}

// Notifier raises the user-facing alert for a change.
type Notifier interface {
	Notify(msg string)
}

// Engine is the single-writer sync engine.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - every other method: safe from any goroutine
//
// Methods that change state block until Run has processed them, so they
// return ErrStopped (or the context's error) if Run is not serving.
type Engine struct {
	store    Store
	remote   Remote
	notifier Notifier
	onChange func(ChangeEvent)
	onView   func(View)
	ids      IDGenerator
	now      func() time.Time
	interval time.Duration
	logger   *slog.Logger
	metrics  *Metrics

	queue     *eventQueue
	published atomic.Pointer[View]
	running   atomic.Bool
	done      chan struct{}
	workers   sync.WaitGroup
	writes    pendingWrites

	// Owned by the Run goroutine.
	runCtx   context.Context
	view     View
	tag      int64
	inFlight int
	ticker   *time.Ticker
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithNotifier sets the alert sink for detected changes.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

// WithChangeListener registers fn to receive every ChangeEvent. It runs on
// the loop goroutine and must not call back into the engine.
func WithChangeListener(fn func(ChangeEvent)) EngineOption {
	return func(e *Engine) { e.onChange = fn }
}

// WithViewListener registers fn to receive every published View. It runs on
// the loop goroutine and must not call back into the engine.
func WithViewListener(fn func(View)) EngineOption {
	return func(e *Engine) { e.onView = fn }
}

// WithIDGenerator sets the generator for new requisition ids.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

// WithNow sets the clock used to stamp new and updated records.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithPollInterval overrides the poll period. Zero disables the ticker;
// polls then happen only through PollNow.
func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.interval = d }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the engine's collectors.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine over the given cache and remote.
func New(store Store, rem Remote, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		remote:   rem,
		ids:      UUIDv7Generator{},
		now:      time.Now,
		interval: DefaultPollInterval,
		logger:   slog.Default(),
		queue:    newEventQueue(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	e.published.Store(&View{State: StateIdle})
	return e
}

// Run starts the single-writer event loop. It blocks until ctx is
// cancelled or Stop is called.
//
// Event failures are logged and the loop continues; nothing here is fatal.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.runCtx = ctx
	defer e.shutdown(cancel)

	e.logger.Info("engine starting", "poll_interval", e.interval)

	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			e.process(ev)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			return ctx.Err()

		case <-e.tick():
			e.onTick()

		case <-e.queue.Wait():
			// The signal channel is closed by Close, so this also fires on
			// shutdown.
			if e.queue.Drained() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop shuts the engine down. Run returns once the queue is closed.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Done is closed when Run has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) shutdown(cancel context.CancelFunc) {
	e.stopTicker()
	e.queue.Close()
	for _, ev := range e.queue.Drain() {
		send(ev.reply, reply{err: ErrStopped})
	}
	if e.view.State.Active() {
		e.view.State = StateStopped
		e.publish()
	}
	cancel()
	e.workers.Wait()
	close(e.done)
}

// submit hands ev to the loop and waits for its reply.
func (e *Engine) submit(ctx context.Context, ev event) (reply, error) {
	ev.reply = make(chan reply, 1)
	if !e.queue.Enqueue(ev) {
		return reply{}, ErrStopped
	}
	select {
	case r := <-ev.reply:
		return r, r.err
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-e.done:
		select {
		case r := <-ev.reply:
			return r, r.err
		default:
			return reply{}, ErrStopped
		}
	}
}

// process routes an event to its handler.
// Called only from the Run goroutine.
func (e *Engine) process(ev event) {
	switch ev.kind {
	case eventStart:
		e.startSession(ev)
	case eventStop:
		e.stopSession(ev)
	case eventFetch:
		e.requestFetch(ev)
	case eventFetched:
		e.applyFetch(ev)
	case eventUpsert:
		e.applyUpsert(ev)
	case eventDelete:
		e.applyDelete(ev)
	default:
		e.logger.Error("unknown event", "kind", int(ev.kind))
		send(ev.reply, reply{err: fmt.Errorf("unknown event kind %d", ev.kind)})
	}
}

// publish makes the loop's view visible to readers.
func (e *Engine) publish() {
	v := e.view
	e.published.Store(&v)
	e.metrics.SnapshotSize.Set(float64(len(v.Snapshot)))
	e.metrics.Baseline.Set(float64(v.Baseline))
	if e.onView != nil {
		e.onView(v)
	}
}

// StartSession begins polling for user. It paints from the cache, then
// returns once the initial fetch has completed. A failed initial fetch is
// logged and absorbed: the cached view stays and polling continues.
//
// Starting a session while another is active ends the old one first.
func (e *Engine) StartSession(ctx context.Context, user model.User) error {
	if user.IsZero() {
		return fmt.Errorf("start session: %w", ErrNoSession)
	}
	_, err := e.submit(ctx, event{kind: eventStart, user: user})
	switch {
	case err == nil, errors.Is(err, ErrStopped), errors.Is(err, ErrNoSession), ctx.Err() != nil:
		return err
	default:
		// Initial load failed; the loop has logged it.
		return nil
	}
}

// Flush waits until background remote writes started so far have finished,
// or ctx ends.
func (e *Engine) Flush(ctx context.Context) error {
	select {
	case <-e.writes.idle():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopSession stops polling. A fetch still in flight is not aborted, but its
// result is discarded.
func (e *Engine) StopSession(ctx context.Context) error {
	_, err := e.submit(ctx, event{kind: eventStop})
	return err
}

// Refresh performs an explicit load: it fetches and replaces the snapshot
// without raising an alert. On failure the current view is kept and the
// error is returned for the caller to report.
func (e *Engine) Refresh(ctx context.Context) error {
	_, err := e.submit(ctx, event{kind: eventFetch})
	return err
}

// PollNow performs one background poll immediately and waits for it.
func (e *Engine) PollNow(ctx context.Context) error {
	_, err := e.submit(ctx, event{kind: eventFetch, background: true})
	return err
}

func (e *Engine) startSession(ev event) {
	if e.view.State.Active() {
		e.logger.Info("replacing active session", "user", e.view.Session.Username)
		e.endSession()
	}

	e.tag++
	e.inFlight = 0
	e.view = View{State: StateInitialLoad, Session: ev.user, Tag: e.tag}
	if cached, ok := e.store.ReadSnapshot(e.runCtx); ok {
		cached = cached.Clone()
		cached.SortNewestFirst()
		e.view.Snapshot = cached
		e.view.Baseline = len(cached)
	}
	e.publish()

	e.logger.Info("session started",
		"user", ev.user.Username,
		"role", ev.user.Role,
		"tag", e.tag,
		"cached", len(e.view.Snapshot),
	)

	e.startTicker()
	e.fetch(false, ev.reply)
}

func (e *Engine) stopSession(ev event) {
	if !e.view.State.Active() {
		send(ev.reply, reply{err: ErrNoSession})
		return
	}
	e.endSession()
	send(ev.reply, reply{snapshot: e.view.Snapshot})
}

// endSession stops the ticker and invalidates outstanding fetches.
func (e *Engine) endSession() {
	e.stopTicker()
	user := e.view.Session.Username
	e.tag++
	e.inFlight = 0
	e.view.State = StateStopped
	e.view.Session = model.User{}
	e.view.Tag = e.tag
	e.publish()
	e.logger.Info("session stopped", "user", user)
}

func (e *Engine) requestFetch(ev event) {
	if !e.view.State.Active() {
		send(ev.reply, reply{err: ErrNoSession})
		return
	}
	e.fetch(ev.background, ev.reply)
}

// fetch starts a remote fetch for the current session off the loop.
func (e *Engine) fetch(background bool, ch chan reply) {
	e.inFlight++
	tag := e.tag
	ctx := e.runCtx

	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		s, err := e.remote.FetchRequisitions(ctx)
		posted := e.queue.Enqueue(event{
			kind:       eventFetched,
			tag:        tag,
			background: background,
			snapshot:   s,
			err:        err,
			reply:      ch,
		})
		if !posted {
			send(ch, reply{err: ErrStopped})
		}
	}()
}

func (e *Engine) applyFetch(ev event) {
	if ev.tag != e.tag || !e.view.State.Active() {
		e.metrics.StaleResults.Inc()
		e.logger.Debug("dropping stale fetch result", "tag", ev.tag, "current", e.tag)
		send(ev.reply, reply{err: ErrNoSession})
		return
	}
	e.inFlight--

	kind := "load"
	if ev.background {
		kind = "poll"
	}

	if ev.err != nil {
		e.metrics.Fetches.WithLabelValues(kind, "error").Inc()
		e.logger.Warn("fetch failed, keeping current snapshot",
			"kind", kind,
			"cached", len(e.view.Snapshot),
			"error", ev.err,
		)
		send(ev.reply, reply{err: ev.err})
		return
	}

	if len(ev.snapshot) == 0 {
		// The API answers an empty list while the sheet is unavailable, so an
		// empty result never replaces a populated snapshot.
		e.metrics.Fetches.WithLabelValues(kind, "empty").Inc()
		e.logger.Debug("remote returned no requisitions, keeping current snapshot", "kind", kind)
		e.view.State = StatePolling
		e.publish()
		send(ev.reply, reply{snapshot: e.view.Snapshot})
		return
	}

	s := ev.snapshot.Clone()
	s.SortNewestFirst()
	if err := s.Validate(); err != nil {
		e.logger.Warn("remote snapshot violates invariants", "error", err)
	}

	prev := e.view.Baseline
	var change *ChangeEvent
	if ev.background && len(s) > prev && prev > 0 {
		change = &ChangeEvent{Delta: len(s) - prev, Count: len(s)}
	}

	e.store.WriteSnapshot(e.runCtx, s)
	e.view.Snapshot = s
	e.view.Baseline = len(s)
	e.view.State = StatePolling
	e.publish()
	e.metrics.Fetches.WithLabelValues(kind, "ok").Inc()

	e.logger.Debug("snapshot updated", "kind", kind, "count", len(s), "previous", prev)

	if change != nil {
		e.alert(*change)
	}
	send(ev.reply, reply{snapshot: s})
}

func (e *Engine) alert(c ChangeEvent) {
	e.metrics.Alerts.Inc()
	e.logger.Info("new requisitions detected", "delta", c.Delta, "count", c.Count)
	if e.onChange != nil {
		e.onChange(c)
	}
	if e.notifier != nil {
		e.notifier.Notify(c.Message())
	}
}

func (e *Engine) onTick() {
	if !e.view.State.Active() {
		return
	}
	if e.inFlight > 0 {
		e.metrics.SkippedTicks.Inc()
		e.logger.Debug("poll skipped, fetch outstanding", "in_flight", e.inFlight)
		return
	}
	e.fetch(true, nil)
}

func (e *Engine) tick() <-chan time.Time {
	if e.ticker == nil {
		return nil
	}
	return e.ticker.C
}

func (e *Engine) startTicker() {
	e.stopTicker()
	if e.interval > 0 {
		e.ticker = time.NewTicker(e.interval)
	}
}

func (e *Engine) stopTicker() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

// View returns the most recently published state.
func (e *Engine) View() View {
	return *e.published.Load()
}

// Snapshot returns a copy of the full snapshot.
func (e *Engine) Snapshot() model.Snapshot {
	return e.View().Snapshot.Clone()
}

// Visible returns the records the session user may see.
func (e *Engine) Visible() model.Snapshot {
	return e.View().Visible()
}

// Baseline returns the current change baseline.
func (e *Engine) Baseline() int {
	return e.View().Baseline
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	return e.View().State
}

// Session returns the active session's user.
func (e *Engine) Session() (model.User, bool) {
	v := e.View()
	return v.Session, v.State.Active()
}

// NextNumber returns the number the next new requisition would receive.
func (e *Engine) NextNumber() string {
	return e.View().NextNumber()
}
