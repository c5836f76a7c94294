// Package config loads settings from an embedded CUE schema, an optional
// user file, an optional .env file and REQSYNC_* environment variables, in
// increasing order of precedence.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/joho/godotenv"
)

//go:embed schema.cue
var schemaCUE string

// DefaultFileName is looked up in the working directory when no path is given.
const DefaultFileName = "reqsync.cue"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REQSYNC_"

// Config is the decoded configuration.
type Config struct {
	APIURL      string `json:"api_url"`
	Cache       Cache  `json:"cache"`
	Notify      Notify `json:"notify"`
	MetricsAddr string `json:"metrics_addr"`
	HTTPTimeout string `json:"http_timeout"`
	LogFormat   string `json:"log_format"`
}

// Cache selects and locates the local cache.
type Cache struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	RedisAddr   string `json:"redis_addr"`
	RedisPrefix string `json:"redis_prefix"`
}

// Notify configures the alert channels.
type Notify struct {
	Desktop bool   `json:"desktop"`
	Sound   bool   `json:"sound"`
	Title   string `json:"title"`
}

// Timeout returns the parsed HTTP timeout. Zero means none.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil {
		return 0
	}
	return d
}

// Options controls where Load looks.
type Options struct {
	// Path is the user config file. Empty means DefaultFileName if present.
	// An explicit path must exist.
	Path string

	// EnvFile is a dotenv file. Empty means ".env" if present.
	EnvFile string

	// LookupEnv reads the process environment. Nil uses os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// LoadError reports a configuration problem with its source position when
// one is known.
type LoadError struct {
	Source  string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// Default returns the schema defaults, ignoring files and environment.
func Default() (*Config, error) {
	return load(Options{LookupEnv: noEnv}, false)
}

// Load builds the configuration.
func Load(opts Options) (*Config, error) {
	return load(opts, true)
}

func noEnv(string) (string, bool) { return "", false }

func load(opts Options, readFiles bool) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, cueError("schema", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def
	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		path = DefaultFileName
	}
	var data []byte
	err := error(os.ErrNotExist)
	if readFiles {
		data, err = os.ReadFile(path)
	}
	switch {
	case err == nil:
		user := ctx.CompileBytes(data, cue.Filename(path))
		if err := user.Err(); err != nil {
			return nil, cueError(path, err)
		}
		value = def.Unify(user)
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, &LoadError{Source: path, Message: err.Error()}
	}

	cfg, err := decode(value, path)
	if err != nil {
		return nil, err
	}

	lookup := noEnv
	if readFiles {
		if lookup, err = envLookup(opts); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	// Environment values go through the schema too.
	cfg, err = decode(def.Unify(ctx.Encode(cfg)), "environment")
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Driver == "sqlite" && cfg.Cache.Path == "" {
		cfg.Cache.Path = defaultCachePath()
	}
	return cfg, nil
}

func decode(v cue.Value, source string) (*Config, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(source, err)
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, cueError(source, err)
	}
	return &cfg, nil
}

func cueError(source string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Source: source, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Source: source, Message: first.Error()}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		le.Pos = pos[0]
	}
	return le
}

// envLookup layers the process environment over the dotenv file.
func envLookup(opts Options) (func(string) (string, bool), error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	file, explicit := opts.EnvFile, opts.EnvFile != ""
	if !explicit {
		file = ".env"
	}
	dotenv, err := godotenv.Read(file)
	if err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{Source: file, Message: err.Error()}
		}
		dotenv = nil
	}

	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"API_URL", &cfg.APIURL},
		{"CACHE_DRIVER", &cfg.Cache.Driver},
		{"CACHE_PATH", &cfg.Cache.Path},
		{"REDIS_ADDR", &cfg.Cache.RedisAddr},
		{"REDIS_PREFIX", &cfg.Cache.RedisPrefix},
		{"NOTIFY_TITLE", &cfg.Notify.Title},
		{"METRICS_ADDR", &cfg.MetricsAddr},
		{"HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"LOG_FORMAT", &cfg.LogFormat},
	}
	for _, s := range strs {
		if v, ok := lookup(EnvPrefix + s.key); ok {
			*s.dst = v
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"NOTIFY_DESKTOP", &cfg.Notify.Desktop},
		{"NOTIFY_SOUND", &cfg.Notify.Sound},
	}
	for _, b := range bools {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return &LoadError{Source: EnvPrefix + b.key, Message: fmt.Sprintf("invalid boolean %q", v)}
		}
		*b.dst = parsed
	}
	return nil
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "reqsync", "cache.db")
}
