package testutil

import (
	"sort"
	"sync"
	"time"
)

// ManualClock is a fake time source whose timers fire only when the test
// advances it.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
// Timer callbacks run on the goroutine that calls Advance, after the lock is
// released.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int64
	timers []*ManualTimer
}

// ManualTimer is a pending callback registered with AfterFunc.
type ManualTimer struct {
	clock *ManualClock
	at    time.Time
	seq   int64
	fn    func()
	done  bool
}

// NewManualClock creates a clock at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules fn to run once the clock has advanced by d.
func (c *ManualClock) AfterFunc(d time.Duration, fn func()) *ManualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &ManualTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Stop cancels the timer. It reports whether the call prevented the
// callback from running.
func (t *ManualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Pending returns how many timers have neither fired nor been stopped.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d and runs every timer that has come
// due, in deadline order.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*ManualTimer
	live := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.done:
		case !t.at.After(c.now):
			t.done = true
			due = append(due, t)
		default:
			live = append(live, t)
		}
	}
	c.timers = live
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	for _, t := range due {
		t.fn()
	}
}
