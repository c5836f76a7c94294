package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/reqsync/internal/accounts"
	"github.com/roach88/reqsync/internal/cache"
	"github.com/roach88/reqsync/internal/config"
	"github.com/roach88/reqsync/internal/engine"
	"github.com/roach88/reqsync/internal/model"
	"github.com/roach88/reqsync/internal/notify"
	"github.com/roach88/reqsync/internal/photo"
	"github.com/roach88/reqsync/internal/remote"
)

// Remote is every API call the commands make.
type Remote interface {
	engine.Remote
	accounts.Remote
	photo.Fetcher
}

// Env holds what the commands share. Fields left nil are built from the
// configuration on first use, so tests can inject fakes for any of them.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
	Cache  *cache.Cache
	Remote Remote

	// Host and Sound back the watch command's alert channels.
	Host  notify.Host
	Sound notify.Sound

	IDs          engine.IDGenerator
	Now          func() time.Time
	PollInterval time.Duration

	ownsCache bool
}

// setup resolves the configuration, logger and cache.
func (o *RootOptions) setup(cmd *cobra.Command) (*Env, error) {
	if o.Env == nil {
		o.Env = &Env{}
	}
	env := o.Env
	f := o.formatter(cmd)

	if env.Config == nil {
		cfg, err := config.Load(config.Options{Path: o.ConfigPath})
		if err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load configuration", err)
		}
		env.Config = cfg
	}
	if o.MetricsAddr != "" {
		env.Config.MetricsAddr = o.MetricsAddr
	}
	if env.Logger == nil {
		env.Logger = newLogger(cmd.ErrOrStderr(), env.Config.LogFormat, o.Verbose)
	}
	if env.Cache == nil {
		c, err := openCache(env.Config.Cache, env.Logger)
		if err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to open cache", err)
		}
		env.Cache = c
		env.ownsCache = true
	}
	if env.IDs == nil {
		env.IDs = engine.UUIDv7Generator{}
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.PollInterval == 0 {
		env.PollInterval = engine.DefaultPollInterval
	}
	if env.Host == nil {
		env.Host = notify.Desktop{Enabled: env.Config.Notify.Desktop}
	}
	if env.Sound == nil && env.Config.Notify.Sound {
		env.Sound = notify.Beep{}
	}
	return env, nil
}

// Close releases what setup opened.
func (o *RootOptions) Close() {
	if o.Env == nil || !o.Env.ownsCache {
		return
	}
	if err := o.Env.Cache.Close(); err != nil {
		o.Env.Logger.Error("error closing cache", "error", err)
	}
	o.Env.ownsCache = false
}

func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, hopts)
	} else {
		handler = slog.NewTextHandler(w, hopts)
	}
	return slog.New(handler)
}

func openCache(cfg config.Cache, logger *slog.Logger) (*cache.Cache, error) {
	if cfg.Driver == "sqlite" && cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	return cache.Open(cache.Config{
		Driver:      cfg.Driver,
		Path:        cfg.Path,
		RedisAddr:   cfg.RedisAddr,
		RedisPrefix: cfg.RedisPrefix,
	}, cache.WithLogger(logger))
}

// api returns the API client, building it from configuration if needed.
func (e *Env) api(f *OutputFormatter) (Remote, error) {
	if e.Remote != nil {
		return e.Remote, nil
	}
	if e.Config.APIURL == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig,
			"api_url is not configured; set it in "+config.DefaultFileName+" or "+config.EnvPrefix+"API_URL", nil)
	}
	c, err := remote.New(e.Config.APIURL,
		remote.WithTimeout(e.Config.Timeout()),
		remote.WithLogger(e.Logger),
	)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "invalid api_url", err)
	}
	e.Remote = c
	return c, nil
}

// accounts returns the account service. Session reads need no API.
func (e *Env) accounts(rem Remote) *accounts.Service {
	var r accounts.Remote
	if rem != nil {
		r = rem
	}
	return accounts.NewService(r, e.Cache, e.Logger)
}

// currentUser returns the stored session or reports that there is none.
func (e *Env) currentUser(ctx context.Context, f *OutputFormatter) (model.User, error) {
	u, err := e.accounts(nil).Current(ctx)
	if errors.Is(err, accounts.ErrNotLoggedIn) {
		return model.User{}, f.Fail(ExitCommandError, ErrCodeNoSession, "not logged in; run 'reqsync login <username>'", nil)
	}
	if err != nil {
		return model.User{}, f.Fail(ExitFailure, ErrCodeGeneric, "failed to read session", err)
	}
	return u, nil
}

// startEngine runs an engine for user and waits for its initial load. The
// returned stop function ends the loop and waits for it to exit.
func (e *Env) startEngine(ctx context.Context, f *OutputFormatter, user model.User, opts ...engine.EngineOption) (*engine.Engine, func(), error) {
	rem, err := e.api(f)
	if err != nil {
		return nil, nil, err
	}
	base := []engine.EngineOption{
		engine.WithLogger(e.Logger),
		engine.WithIDGenerator(e.IDs),
		engine.WithNow(e.Now),
		engine.WithPollInterval(0),
	}
	eng := engine.New(e.Cache, rem, append(base, opts...)...)

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := eng.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			e.Logger.Error("engine error", "error", err)
		}
	}()
	stop := func() {
		cancel()
		<-eng.Done()
	}

	if err := eng.StartSession(ctx, user); err != nil {
		stop()
		return nil, nil, f.Fail(ExitFailure, ErrCodeGeneric, "failed to start session", err)
	}
	return eng, stop, nil
}

// remoteFailure maps an API error to its exit and error codes.
func remoteFailure(f *OutputFormatter, message string, err error) *ExitError {
	switch {
	case accounts.IsValidationError(err):
		return f.Fail(ExitCommandError, ErrCodeInvalid, message, err)
	case errors.Is(err, accounts.ErrForbidden), errors.Is(err, accounts.ErrProtected), errors.Is(err, engine.ErrForbidden):
		return f.Fail(ExitCommandError, ErrCodeForbidden, message, err)
	case errors.Is(err, engine.ErrNotFound):
		return f.Fail(ExitCommandError, ErrCodeNotFound, message, err)
	case remote.IsRejected(err):
		return f.Fail(ExitCommandError, ErrCodeRemote, message, err)
	default:
		return f.Fail(ExitFailure, ErrCodeRemote, message, err)
	}
}
