package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reqsync/internal/testutil"
)

func manualToast(clock *testutil.ManualClock, opts ...ToastOption) *Toast {
	after := func(d time.Duration, f func()) Timer { return clock.AfterFunc(d, f) }
	return NewToast(append([]ToastOption{WithAfterFunc(after)}, opts...)...)
}

func TestToast_AutoDismissAfterWindow(t *testing.T) {
	clock := testutil.NewManualClock(testutil.Epoch)
	toast := manualToast(clock)

	toast.Show("2 new requisition(s) found.")
	assert.Equal(t, ToastState{Message: "2 new requisition(s) found.", Visible: true}, toast.State())

	clock.Advance(ToastDuration - time.Millisecond)
	assert.True(t, toast.State().Visible)

	clock.Advance(time.Millisecond)
	assert.False(t, toast.State().Visible)
}

func TestToast_ShowWhileVisibleReplacesAndRestarts(t *testing.T) {
	clock := testutil.NewManualClock(testutil.Epoch)
	toast := manualToast(clock)

	toast.Show("first")
	clock.Advance(8 * time.Second)
	toast.Show("second")

	assert.Equal(t, "second", toast.State().Message)
	assert.Equal(t, 1, clock.Pending(), "exactly one toast timer")

	clock.Advance(8 * time.Second)
	assert.True(t, toast.State().Visible, "window restarted at the second show")

	clock.Advance(2 * time.Second)
	assert.False(t, toast.State().Visible)
}

func TestToast_ClickRunsActionThenDismisses(t *testing.T) {
	clock := testutil.NewManualClock(testutil.Epoch)
	var seen ToastState
	var toast *Toast
	toast = manualToast(clock, WithClickAction(func() { seen = toast.State() }))

	assert.False(t, toast.Click(), "nothing to click")

	toast.Show("msg")
	assert.True(t, toast.Click())
	assert.True(t, seen.Visible, "action runs before the toast is dismissed")
	assert.False(t, toast.State().Visible)
	assert.Equal(t, 0, clock.Pending())
}

func TestToast_ClickKeepsMessageShownDuringAction(t *testing.T) {
	clock := testutil.NewManualClock(testutil.Epoch)
	var toast *Toast
	toast = manualToast(clock, WithClickAction(func() {
		toast.Show("3 new requisition(s) found.")
	}))

	toast.Show("2 new requisition(s) found.")
	require.True(t, toast.Click())

	assert.Equal(t, ToastState{Message: "3 new requisition(s) found.", Visible: true}, toast.State())
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(ToastDuration)
	assert.False(t, toast.State().Visible)
}

func TestToast_DismissSkipsAction(t *testing.T) {
	clock := testutil.NewManualClock(testutil.Epoch)
	clicked := false
	toast := manualToast(clock, WithClickAction(func() { clicked = true }))

	toast.Show("msg")
	toast.Dismiss()

	assert.False(t, clicked)
	assert.False(t, toast.State().Visible)
}

func TestToast_RendererSeesEveryChange(t *testing.T) {
	clock := testutil.NewManualClock(testutil.Epoch)
	var states []ToastState
	toast := manualToast(clock, WithRenderer(func(s ToastState) { states = append(states, s) }))

	toast.Show("a")
	toast.Show("b")
	clock.Advance(ToastDuration)

	assert.Equal(t, []ToastState{
		{Message: "a", Visible: true},
		{Message: "b", Visible: true},
		{},
	}, states)
}

func TestToast_RealTimer(t *testing.T) {
	toast := NewToast(WithDuration(5 * time.Millisecond))
	toast.Show("quick")
	require.Eventually(t, func() bool { return !toast.State().Visible }, time.Second, time.Millisecond)
}

// fakeHost scripts permission answers and records shown notifications.
type fakeHost struct {
	mu       sync.Mutex
	answers  []bool
	err      error
	showErr  error
	requests int
	shown    []string
}

func (h *fakeHost) RequestPermission(context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests++
	if h.err != nil {
		return false, h.err
	}
	granted := h.answers[0]
	h.answers = h.answers[1:]
	return granted, nil
}

func (h *fakeHost) Show(title, body string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.showErr != nil {
		return h.showErr
	}
	h.shown = append(h.shown, title+": "+body)
	return nil
}

func TestChannel_DenialIsNeverRetried(t *testing.T) {
	ctx := context.Background()
	host := &fakeHost{answers: []bool{false, true}}
	ch := NewChannel(host, nil)

	assert.Equal(t, PermissionDenied, ch.Request(ctx, LifecycleSessionStart))
	assert.Equal(t, PermissionDenied, ch.Request(ctx, LifecycleLogin))
	assert.Equal(t, 1, host.requests)

	assert.ErrorIs(t, ch.Send("t", "b"), ErrPermissionDenied)
	assert.Empty(t, host.shown)
}

func TestChannel_GrantIsRemembered(t *testing.T) {
	ctx := context.Background()
	host := &fakeHost{answers: []bool{true}}
	ch := NewChannel(host, nil)

	assert.ErrorIs(t, ch.Send("t", "before"), ErrPermissionDenied, "unknown does not deliver")

	assert.Equal(t, PermissionGranted, ch.Request(ctx, LifecycleSessionStart))
	assert.Equal(t, PermissionGranted, ch.Request(ctx, LifecycleLogin))
	assert.Equal(t, 1, host.requests)

	require.NoError(t, ch.Send("t", "after"))
	assert.Equal(t, []string{"t: after"}, host.shown)
}

func TestChannel_RequestErrorLeavesUnknown(t *testing.T) {
	ctx := context.Background()
	host := &fakeHost{err: errors.New("dbus unavailable")}
	ch := NewChannel(host, nil)

	assert.Equal(t, PermissionUnknown, ch.Request(ctx, LifecycleSessionStart))

	host.err = nil
	host.answers = []bool{true}
	assert.Equal(t, PermissionGranted, ch.Request(ctx, LifecycleLogin), "unknown may be asked again")
}

type fakeSound struct {
	err   error
	plays int
	order *[]string
}

func (s *fakeSound) Play() error {
	s.plays++
	*s.order = append(*s.order, "sound")
	return s.err
}

func TestDispatcher_FansOutInOrder(t *testing.T) {
	var order []string
	clock := testutil.NewManualClock(testutil.Epoch)
	toast := manualToast(clock, WithRenderer(func(s ToastState) {
		if s.Visible {
			order = append(order, "toast")
		}
	}))
	host := &fakeHost{answers: []bool{true}}
	ch := NewChannel(host, nil)
	ch.Request(context.Background(), LifecycleSessionStart)
	sound := &fakeSound{order: &order}

	d := NewDispatcher(toast, WithSound(sound), WithChannel(ch), WithTitle("Reqs"))
	d.Notify("3 new requisition(s) found.")

	assert.Equal(t, []string{"sound", "toast"}, order)
	assert.Equal(t, []string{"Reqs: 3 new requisition(s) found."}, host.shown)
	assert.Same(t, toast, d.Toast())
}

func TestDispatcher_ChannelsFailIndependently(t *testing.T) {
	var order []string
	clock := testutil.NewManualClock(testutil.Epoch)
	toast := manualToast(clock)
	host := &fakeHost{answers: []bool{true}, showErr: errors.New("no notification daemon")}
	ch := NewChannel(host, nil)
	ch.Request(context.Background(), LifecycleLogin)
	sound := &fakeSound{err: errors.New("no audio device"), order: &order}

	d := NewDispatcher(toast, WithSound(sound), WithChannel(ch))
	assert.NotPanics(t, func() { d.Notify("1 new requisition(s) found.") })

	assert.Equal(t, 1, sound.plays)
	assert.True(t, toast.State().Visible, "toast shows despite sound and os failures")
}

func TestDispatcher_DeniedPermissionStillShowsToast(t *testing.T) {
	clock := testutil.NewManualClock(testutil.Epoch)
	toast := manualToast(clock)
	host := &fakeHost{answers: []bool{false}}
	ch := NewChannel(host, nil)
	ch.Request(context.Background(), LifecycleSessionStart)

	NewDispatcher(toast, WithChannel(ch)).Notify("msg")

	assert.True(t, toast.State().Visible)
	assert.Empty(t, host.shown)
}

func TestPermission_String(t *testing.T) {
	assert.Equal(t, "unknown", PermissionUnknown.String())
	assert.Equal(t, "granted", PermissionGranted.String())
	assert.Equal(t, "denied", PermissionDenied.String())
}
