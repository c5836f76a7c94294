package notify

import (
	"sync"
	"time"
)

// ToastDuration is how long a toast stays visible without interaction.
const ToastDuration = 10 * time.Second

// Timer is a pending dismissal.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ToastState is what a renderer draws.
type ToastState struct {
	Message string
	Visible bool
}

// Toast is the single in-app alert slot.
type Toast struct {
	mu       sync.Mutex
	after    AfterFunc
	duration time.Duration
	render   func(ToastState)
	onClick  func()

	message string
	visible bool
	gen     uint64
	timer   Timer
}

// ToastOption configures a Toast.
type ToastOption func(*Toast)

// WithAfterFunc replaces the timer source.
func WithAfterFunc(f AfterFunc) ToastOption {
	return func(t *Toast) { t.after = f }
}

// WithDuration overrides ToastDuration.
func WithDuration(d time.Duration) ToastOption {
	return func(t *Toast) { t.duration = d }
}

// WithRenderer registers fn to draw every state change. It is called
// without the toast's lock held.
func WithRenderer(fn func(ToastState)) ToastOption {
	return func(t *Toast) { t.render = fn }
}

// WithClickAction sets the action run when the user clicks the toast.
func WithClickAction(fn func()) ToastOption {
	return func(t *Toast) { t.onClick = fn }
}

// NewToast returns a hidden toast.
func NewToast(opts ...ToastOption) *Toast {
	t := &Toast{after: stdAfterFunc, duration: ToastDuration}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetClickAction replaces the click action.
func (t *Toast) SetClickAction(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClick = fn
}

// Show displays msg, replacing any visible message and restarting the
// dismissal window.
func (t *Toast) Show(msg string) {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.message = msg
	t.visible = true
	t.timer = t.after(t.duration, func() { t.expire(gen) })
	state := t.stateLocked()
	t.mu.Unlock()

	t.draw(state)
}

// expire hides the toast if it still shows the message of generation gen.
// A late callback from a replaced timer does nothing.
func (t *Toast) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.visible {
		t.mu.Unlock()
		return
	}
	t.hideLocked()
	state := t.stateLocked()
	t.mu.Unlock()

	t.draw(state)
}

// Dismiss hides the toast without running the click action.
func (t *Toast) Dismiss() {
	t.mu.Lock()
	if !t.visible {
		t.mu.Unlock()
		return
	}
	t.hideLocked()
	state := t.stateLocked()
	t.mu.Unlock()

	t.draw(state)
}

// Click runs the click action, then dismisses the clicked message. A message
// shown while the action ran stays visible. It reports false when no toast
// was visible.
func (t *Toast) Click() bool {
	t.mu.Lock()
	if !t.visible {
		t.mu.Unlock()
		return false
	}
	action := t.onClick
	gen := t.gen
	t.mu.Unlock()

	if action != nil {
		action()
	}
	t.expire(gen)
	return true
}

// State returns what is currently shown.
func (t *Toast) State() ToastState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Toast) hideLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.visible = false
}

func (t *Toast) stateLocked() ToastState {
	if !t.visible {
		return ToastState{}
	}
	return ToastState{Message: t.message, Visible: true}
}

func (t *Toast) draw(s ToastState) {
	if t.render != nil {
		t.render(s)
	}
}
