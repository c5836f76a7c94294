package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/reqsync/internal/engine"
	"github.com/roach88/reqsync/internal/notify"
)

// alertView is one alert printed by watch.
type alertView struct {
	Event   string `json:"event"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

func (a alertView) Text() string {
	return fmt.Sprintf("[%s] %s\n", time.Now().Format("15:04:05"), a.Message)
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll for new requisitions and raise alerts",
		Long: `Start a session for the logged-in user and poll the API every 15 seconds.
When the list grows, an alert is printed, the alert sound plays and a
desktop notification is shown (if enabled in the configuration).

Press Enter while an alert is showing to open it: the list is reloaded and
printed, and the alert is dismissed.

With --metrics-addr the poll loop's Prometheus metrics are served on
/metrics.

Example:
  reqsync watch
  reqsync watch --metrics-addr 127.0.0.1:9464 --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, cmd)
		},
	}
	return cmd
}

func runWatch(opts *RootOptions, cmd *cobra.Command) error {
	env, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	f := opts.formatter(cmd)
	user, err := env.currentUser(cmd.Context(), f)
	if err != nil {
		return err
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			env.Logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var outMu sync.Mutex
	emit := func(v any) {
		outMu.Lock()
		defer outMu.Unlock()
		_ = f.Success(v)
	}

	toast := notify.NewToast(notify.WithRenderer(func(s notify.ToastState) {
		if s.Visible {
			emit(alertView{Event: "alert", Message: s.Message})
		}
	}))
	channel := notify.NewChannel(env.Host, env.Logger)
	channel.Request(ctx, notify.LifecycleSessionStart)

	dopts := []notify.DispatcherOption{
		notify.WithChannel(channel),
		notify.WithTitle(env.Config.Notify.Title),
		notify.WithLogger(env.Logger),
	}
	if env.Sound != nil {
		dopts = append(dopts, notify.WithSound(env.Sound))
	}
	dispatcher := notify.NewDispatcher(toast, dopts...)

	registry := prometheus.NewRegistry()
	metrics := engine.NewMetrics(registry)

	if addr := env.Config.MetricsAddr; addr != "" {
		ms, err := serveMetrics(ctx, addr, registry, env.Logger)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeConfig, "failed to start metrics server", err)
		}
		defer ms.shutdown()
		emit(alertView{Event: "metrics", Message: "metrics on http://" + ms.addr + "/metrics"})
	}

	eng, stop, err := env.startEngine(ctx, f, user,
		engine.WithNotifier(dispatcher),
		engine.WithMetrics(metrics),
		engine.WithPollInterval(env.PollInterval),
		engine.WithChangeListener(func(c engine.ChangeEvent) {
			env.Logger.Debug("change detected", "delta", c.Delta, "count", c.Count)
		}),
	)
	if err != nil {
		return err
	}
	defer stop()

	toast.SetClickAction(func() {
		if err := eng.Refresh(ctx); err != nil {
			env.Logger.Warn("refresh after alert failed, showing cached list", "error", err)
		}
		v := eng.View()
		visible := v.Visible()
		emit(listView{Count: len(visible), NextNumber: v.NextNumber(), Requisitions: visible})
	})
	go clickOnEnter(ctx, cmd.InOrStdin(), toast, env.Logger)

	view := eng.View()
	env.Logger.Info("watching", "user", user.Username, "interval", env.PollInterval, "permission", channel.Permission())
	emit(alertView{
		Event:   "started",
		Message: fmt.Sprintf("Watching as %s: %d requisition(s). Press Ctrl-C to stop.", user.Username, len(view.Visible())),
		Count:   len(view.Visible()),
	})

	<-ctx.Done()
	env.Logger.Info("watch stopped")
	return nil
}

// clickOnEnter clicks the toast for every line read from in, until in is
// exhausted or ctx ends.
func clickOnEnter(ctx context.Context, in io.Reader, toast *notify.Toast, logger *slog.Logger) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if !toast.Click() {
			logger.Debug("no alert to open")
		}
	}
}

// metricsServer is a running /metrics listener.
type metricsServer struct {
	srv  *http.Server
	addr string
}

func (m *metricsServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = m.srv.Shutdown(ctx)
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) (*metricsServer, error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return &metricsServer{srv: srv, addr: ln.Addr().String()}, nil
}
