package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/reqsync/internal/model"
)

// Keys of the two persisted entries.
const (
	KeySession  = "session"
	KeySnapshot = "requisitions"
)

// Store is the LocalCacheStore contract. Reads report absence instead of
// failing and writes never fail the caller.
type Store interface {
	ReadSnapshot(ctx context.Context) (model.Snapshot, bool)
	WriteSnapshot(ctx context.Context, s model.Snapshot)
	ReadSession(ctx context.Context) (model.User, bool)
	WriteSession(ctx context.Context, u model.User)
	ClearSession(ctx context.Context)
}

var _ Store = (*Cache)(nil)

// backend is the raw key-value layer under a Cache.
type backend interface {
	get(ctx context.Context, key string) ([]byte, bool, error)
	set(ctx context.Context, key string, value []byte) error
	del(ctx context.Context, key string) error
	close() error
}

// Cache is the durable store for the snapshot and session.
// It is safe for concurrent use if its backend is.
type Cache struct {
	b      backend
	driver string
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used to report absorbed failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

func newCache(b backend, driver string, opts ...Option) *Cache {
	c := &Cache{b: b, driver: driver, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Driver names the backend ("sqlite", "redis" or "memory").
func (c *Cache) Driver() string {
	return c.driver
}

// ReadSnapshot returns the cached snapshot. Missing, unreadable or non-list
// entries report ok=false.
func (c *Cache) ReadSnapshot(ctx context.Context) (model.Snapshot, bool) {
	var s model.Snapshot
	if !c.read(ctx, KeySnapshot, &s) || s == nil {
		return nil, false
	}
	return s, true
}

// WriteSnapshot stores s. Failures are logged only.
func (c *Cache) WriteSnapshot(ctx context.Context, s model.Snapshot) {
	if s == nil {
		s = model.Snapshot{}
	}
	c.write(ctx, KeySnapshot, s)
}

// ReadSession returns the cached identity.
func (c *Cache) ReadSession(ctx context.Context) (model.User, bool) {
	var u model.User
	if !c.read(ctx, KeySession, &u) || u.IsZero() {
		return model.User{}, false
	}
	return u, true
}

// WriteSession stores u. Failures are logged only.
func (c *Cache) WriteSession(ctx context.Context, u model.User) {
	c.write(ctx, KeySession, u)
}

// ClearSession forgets the cached identity. Failures are logged only.
func (c *Cache) ClearSession(ctx context.Context) {
	if err := c.b.del(ctx, KeySession); err != nil {
		c.logger.Warn("cache clear failed", "driver", c.driver, "key", KeySession, "error", err)
	}
}

// Close releases the backend.
func (c *Cache) Close() error {
	if err := c.b.close(); err != nil {
		return fmt.Errorf("close %s cache: %w", c.driver, err)
	}
	return nil
}

func (c *Cache) read(ctx context.Context, key string, dest any) bool {
	data, ok, err := c.b.get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "driver", c.driver, "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("cache entry unreadable, treating as absent", "driver", c.driver, "key", key, "error", err)
		return false
	}
	return true
}

func (c *Cache) write(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache encode failed", "driver", c.driver, "key", key, "error", err)
		return
	}
	if err := c.b.set(ctx, key, data); err != nil {
		c.logger.Warn("cache write failed", "driver", c.driver, "key", key, "error", err)
		return
	}
	c.logger.Debug("cache written", "driver", c.driver, "key", key, "bytes", len(data))
}
