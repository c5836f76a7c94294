package cache

import "fmt"

// Config selects and configures a backend.
type Config struct {
	Driver      string // "sqlite" | "redis" | "memory"
	Path        string // sqlite database file
	RedisAddr   string
	RedisPrefix string
}

// Open builds the cache described by cfg.
func Open(cfg Config, opts ...Option) (*Cache, error) {
	switch cfg.Driver {
	case "", "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite cache requires a path")
		}
		return OpenSQLite(cfg.Path, opts...)
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis cache requires an address")
		}
		prefix := cfg.RedisPrefix
		if prefix == "" {
			prefix = DefaultRedisPrefix
		}
		return DialRedis(cfg.RedisAddr, prefix, opts...), nil
	case "memory":
		return NewMemory(opts...), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
