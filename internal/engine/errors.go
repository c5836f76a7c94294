package engine

import "errors"

var (
	// ErrNoSession is returned by operations that need an active session.
	ErrNoSession = errors.New("no active session")

	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("engine stopped")

	// ErrForbidden is returned when the session's role may not perform the
	// operation.
	ErrForbidden = errors.New("operation not permitted for role")

	// ErrNotFound is returned when no requisition has the given id.
	ErrNotFound = errors.New("requisition not found")

	// ErrAlreadyRunning is returned by a second concurrent call to Run.
	ErrAlreadyRunning = errors.New("engine already running")
)
