package engine

import (
	"fmt"

	"github.com/roach88/reqsync/internal/access"
	"github.com/roach88/reqsync/internal/model"
	"github.com/roach88/reqsync/internal/numbering"
)

// State is the engine's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateInitialLoad
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialLoad:
		return "initial_load"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether a session is running in s.
func (s State) Active() bool {
	return s == StateInitialLoad || s == StatePolling
}

// View is a published, read-only copy of the engine's state. Its Snapshot
// must not be modified.
type View struct {
	State    State
	Session  model.User
	Tag      int64
	Snapshot model.Snapshot
	Baseline int
}

// Visible is the part of the snapshot the session user may see.
func (v View) Visible() model.Snapshot {
	return access.VisibleFor(v.Session, v.Snapshot)
}

// NextNumber is the number a record created now would receive.
func (v View) NextNumber() string {
	return numbering.Next(v.Snapshot)
}

// ChangeEvent reports net growth observed by a background poll.
type ChangeEvent struct {
	Delta int
	Count int
}

// Message is the alert text shown to the user.
func (c ChangeEvent) Message() string {
	return fmt.Sprintf("%d new requisition(s) found.", c.Delta)
}
