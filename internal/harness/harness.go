package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/reqsync/internal/cache"
	"github.com/roach88/reqsync/internal/engine"
	"github.com/roach88/reqsync/internal/model"
	"github.com/roach88/reqsync/internal/notify"
	"github.com/roach88/reqsync/internal/remote"
	"github.com/roach88/reqsync/internal/testutil"
)

// deleteWait bounds how long a delete step waits for the background remote
// delete to be attempted.
const deleteWait = 2 * time.Second

// Harness is the test execution engine for one scenario.
type Harness struct {
	scenario *Scenario
	user     model.User
	engine   *engine.Engine
	remote   *testutil.FakeRemote
	cache    *cache.Cache
	clock    *testutil.ManualClock
	toast    *notify.Toast
	channel  *notify.Channel
	logger   *slog.Logger

	mu     sync.Mutex
	result *Result
	seq    int64
}

// Option configures a run.
type Option func(*Harness)

// WithLogger routes engine logs to l. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs with a fresh in-memory cache and fake API.
//
// Execution flow:
// 1. Seed the fake API and the cache
// 2. Start the engine loop
// 3. Execute steps, checking each step's expectation
// 4. Evaluate assertions against the trace and the final state
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	user, err := scenario.User.Model()
	if err != nil {
		return nil, fmt.Errorf("scenario user: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		user:     user,
		remote:   testutil.NewFakeRemote(testutil.Requisitions(scenario.Remote)),
		clock:    testutil.NewManualClock(testutil.Epoch.Add(24 * time.Hour)),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		result:   NewResult(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.cache = cache.NewMemory(cache.WithLogger(h.logger))
	if scenario.Cache > 0 {
		h.cache.WriteSnapshot(ctx, testutil.Requisitions(scenario.Cache))
	}

	h.toast = notify.NewToast(
		notify.WithAfterFunc(func(d time.Duration, f func()) notify.Timer {
			return h.clock.AfterFunc(d, f)
		}),
		notify.WithRenderer(h.onToast),
	)
	h.channel = notify.NewChannel(&recordingHost{h: h, grant: scenario.Notifications != "denied"}, h.logger)
	dispatcher := notify.NewDispatcher(h.toast,
		notify.WithChannel(h.channel),
		notify.WithLogger(h.logger),
	)

	ids := make([]string, 0, len(scenario.Steps))
	for i := range scenario.Steps {
		ids = append(ids, fmt.Sprintf("new-%02d", i+1))
	}

	h.engine = engine.New(h.cache, h.remote,
		engine.WithPollInterval(0),
		engine.WithNow(h.clock.Now),
		engine.WithIDGenerator(engine.NewFixedGenerator(ids...)),
		engine.WithNotifier(dispatcher),
		engine.WithChangeListener(h.onChange),
		engine.WithLogger(h.logger),
	)

	runCtx, cancel := context.WithCancel(ctx)
	go func() { _ = h.engine.Run(runCtx) }()
	defer func() {
		cancel()
		<-h.engine.Done()
	}()

	for i, step := range scenario.Steps {
		h.runStep(runCtx, i, step)
	}

	h.result.State = h.finalState()
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) runStep(ctx context.Context, index int, step Step) {
	h.record(TraceEvent{Type: EventInvoke, Step: step.Do, Args: stepArgs(step)})

	if step.Remote != nil {
		h.remote.SetCount(*step.Remote)
	}
	var scripted error
	if step.Fail != "" {
		scripted = &remote.Error{Kind: remote.KindNetwork, Op: remoteOp(step.Do), Message: step.Fail}
	}

	res, err := h.execute(ctx, step, scripted)
	if res == nil {
		res = map[string]any{}
	}
	if err != nil {
		res["error"] = err.Error()
	}
	v := h.engine.View()
	res["state"] = v.State.String()
	res["count"] = len(v.Snapshot)
	res["baseline"] = v.Baseline
	h.record(TraceEvent{Type: EventComplete, Step: step.Do, Result: res})

	switch {
	case step.Expect == nil && err != nil:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", index, step.Do, err))
	case step.Expect != nil && err == nil:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q, got success", index, step.Do, step.Expect.Error))
	case step.Expect != nil && !strings.Contains(err.Error(), step.Expect.Error):
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q, got %q", index, step.Do, step.Expect.Error, err))
	}
}

func (h *Harness) execute(ctx context.Context, step Step, scripted error) (map[string]any, error) {
	switch step.Do {
	case StepStart:
		h.channel.Request(ctx, notify.LifecycleSessionStart)
		return nil, h.engine.StartSession(ctx, h.user)

	case StepStop:
		return nil, h.engine.StopSession(ctx)

	case StepPoll, StepRefresh:
		if scripted != nil {
			h.remote.FailNextFetch(scripted)
		}
		if step.Do == StepPoll {
			return nil, h.engine.PollNow(ctx)
		}
		return nil, h.engine.Refresh(ctx)

	case StepCreate:
		if scripted != nil {
			h.remote.FailSaves(scripted)
			defer h.remote.FailSaves(nil)
		}
		out, err := h.engine.Save(ctx, newRequisition(step))
		if err != nil {
			return nil, err
		}
		res := map[string]any{"id": out.Record.ID, "number": out.Record.RequisitionNumber}
		if out.RemoteErr != nil {
			res["remote_error"] = out.RemoteErr.Error()
		}
		return res, nil

	case StepDelete:
		if scripted != nil {
			h.remote.FailDeletes(scripted)
			defer h.remote.FailDeletes(nil)
		}
		if _, err := h.engine.ApplyDelete(ctx, step.ID); err != nil {
			return nil, err
		}
		return nil, h.awaitDelete(ctx, step.ID)

	case StepAdvance:
		d, err := time.ParseDuration(step.Wait)
		if err != nil {
			return nil, err
		}
		h.clock.Advance(d)
		return nil, nil

	case StepClick:
		var refreshErr error
		h.toast.SetClickAction(func() { refreshErr = h.engine.Refresh(ctx) })
		if !h.toast.Click() {
			return nil, errors.New("no toast visible")
		}
		return nil, refreshErr
	}
	return nil, fmt.Errorf("unknown step %q", step.Do)
}

// awaitDelete waits until the engine's background remote delete for id has
// been attempted, so later steps see the remote without the record.
func (h *Harness) awaitDelete(ctx context.Context, id string) error {
	timer := time.NewTimer(deleteWait)
	defer timer.Stop()
	for {
		select {
		case got := <-h.remote.Deleted():
			if got == id {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("remote delete of %s not attempted", id)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Harness) onChange(c engine.ChangeEvent) {
	h.record(TraceEvent{Type: EventAlert, Result: map[string]any{
		"delta":   c.Delta,
		"count":   c.Count,
		"message": c.Message(),
	}})
}

func (h *Harness) onToast(s notify.ToastState) {
	h.record(TraceEvent{Type: EventToast, Result: map[string]any{
		"visible": s.Visible,
		"message": s.Message,
	}})
}

func (h *Harness) record(e TraceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	e.Seq = h.seq
	h.result.Trace = append(h.result.Trace, e)
}

func (h *Harness) finalState() map[string]any {
	v := h.engine.View()
	t := h.toast.State()
	return map[string]any{
		"state":         v.State.String(),
		"count":         len(v.Snapshot),
		"visible":       len(v.Visible()),
		"baseline":      v.Baseline,
		"next_number":   v.NextNumber(),
		"remote_count":  h.remote.Count(),
		"toast_visible": t.Visible,
		"toast_message": t.Message,
		"permission":    h.channel.Permission().String(),
	}
}

type recordingHost struct {
	h     *Harness
	grant bool
}

func (r *recordingHost) RequestPermission(context.Context) (bool, error) {
	return r.grant, nil
}

func (r *recordingHost) Show(title, body string) error {
	r.h.record(TraceEvent{Type: EventNotification, Result: map[string]any{
		"title": title,
		"body":  body,
	}})
	return nil
}

func newRequisition(step Step) model.Requisition {
	t := model.TypeFactory
	if step.Type != "" {
		t, _ = model.ParseRequisitionType(step.Type)
	}
	r := model.Requisition{
		Type:       t,
		ClientName: step.Client,
		Fitter:     step.Fitter,
		Services: []model.ServiceItem{
			{Description: "scenario service", Quantity: model.QuantityOf(1)},
		},
	}
	return r
}

func stepArgs(step Step) map[string]any {
	args := map[string]any{}
	if step.Remote != nil {
		args["remote"] = *step.Remote
	}
	if step.Fail != "" {
		args["fail"] = step.Fail
	}
	if step.Client != "" {
		args["client"] = step.Client
	}
	if step.Fitter != "" {
		args["fitter"] = step.Fitter
	}
	if step.Type != "" {
		args["type"] = step.Type
	}
	if step.ID != "" {
		args["id"] = step.ID
	}
	if step.Wait != "" {
		args["wait"] = step.Wait
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

func remoteOp(step string) string {
	switch step {
	case StepCreate:
		return "saveRequisition"
	case StepDelete:
		return "delete"
	}
	return "getRequisitions"
}
