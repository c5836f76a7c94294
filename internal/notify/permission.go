package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Permission is the OS notification permission state.
type Permission int

const (
	PermissionUnknown Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionUnknown:
		return "unknown"
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return fmt.Sprintf("permission(%d)", int(p))
	}
}

// Lifecycle names the points at which permission may be requested.
type Lifecycle string

const (
	LifecycleSessionStart Lifecycle = "session_start"
	LifecycleLogin        Lifecycle = "login"
)

// ErrPermissionDenied is returned by Send when the host has not granted
// permission.
var ErrPermissionDenied = errors.New("notification permission not granted")

// Host is the operating system's notification facility.
type Host interface {
	// RequestPermission asks the user or OS. An error leaves the
	// permission unknown so it can be asked again later.
	RequestPermission(ctx context.Context) (bool, error)
	Show(title, body string) error
}

// Channel delivers OS notifications and tracks permission.
// It is safe for concurrent use.
type Channel struct {
	mu     sync.Mutex
	host   Host
	perm   Permission
	logger *slog.Logger
}

// NewChannel creates a channel over host with permission unknown.
func NewChannel(host Host, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{host: host, logger: logger}
}

// Permission returns the current permission state.
func (c *Channel) Permission() Permission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perm
}

// Request asks the host for permission if it is still unknown, and returns
// the resulting state. Once granted or denied, the host is not asked again.
func (c *Channel) Request(ctx context.Context, at Lifecycle) Permission {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.perm != PermissionUnknown {
		c.logger.Debug("notification permission already settled", "at", at, "permission", c.perm)
		return c.perm
	}

	granted, err := c.host.RequestPermission(ctx)
	if err != nil {
		c.logger.Warn("notification permission request failed", "at", at, "error", err)
		return c.perm
	}
	if granted {
		c.perm = PermissionGranted
	} else {
		c.perm = PermissionDenied
	}
	c.logger.Info("notification permission", "at", at, "permission", c.perm)
	return c.perm
}

// Send shows an OS notification if permission was granted.
func (c *Channel) Send(title, body string) error {
	if c.Permission() != PermissionGranted {
		return ErrPermissionDenied
	}
	if err := c.host.Show(title, body); err != nil {
		return fmt.Errorf("show notification: %w", err)
	}
	return nil
}
