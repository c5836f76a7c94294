package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/reqsync/internal/cache"
	"github.com/roach88/reqsync/internal/config"
	"github.com/roach88/reqsync/internal/engine"
	"github.com/roach88/reqsync/internal/model"
	"github.com/roach88/reqsync/internal/testutil"
)

// testEnv is an Env over a fake API and an in-memory cache.
type testEnv struct {
	*Env
	remote *testutil.FakeRemote
	host   *fakeHost
	sound  *fakeSound
}

func newTestEnv(t *testing.T, s model.Snapshot) *testEnv {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)

	rem := testutil.NewFakeRemote(s)
	rem.AddAccount(model.User{Username: model.ReservedUsername, Name: "Admin", Role: model.RoleManager}, "root")
	rem.AddAccount(testutil.Manager(), "gpw")
	rem.AddAccount(testutil.Fitter("rui", "Rui"), "rpw")

	host := &fakeHost{granted: true}
	sound := &fakeSound{}
	env := &Env{
		Config:       cfg,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Cache:        cache.NewMemory(),
		Remote:       rem,
		Host:         host,
		Sound:        sound,
		IDs:          engine.NewFixedGenerator("new-01", "new-02"),
		Now:          func() time.Time { return testutil.Epoch.Add(24 * time.Hour) },
		PollInterval: engine.DefaultPollInterval,
	}
	return &testEnv{Env: env, remote: rem, host: host, sound: sound}
}

// loginAs stores u as the session without going through the API.
func (e *testEnv) loginAs(u model.User) {
	e.Cache.WriteSession(context.Background(), u)
}

// run executes the CLI and returns stdout, stderr and the exit code.
func (e *testEnv) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), &RootOptions{Env: e.Env}, args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

type fakeHost struct {
	mu       sync.Mutex
	granted  bool
	requests int
	shown    []string
}

func (h *fakeHost) RequestPermission(context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests++
	return h.granted, nil
}

func (h *fakeHost) Requests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests
}

func (h *fakeHost) Show(title, body string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shown = append(h.shown, title+": "+body)
	return nil
}

func (h *fakeHost) Shown() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.shown...)
}

type fakeSound struct {
	mu    sync.Mutex
	plays int
}

func (s *fakeSound) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	return nil
}

func (s *fakeSound) Plays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

// syncBuffer is a bytes.Buffer safe for a writer and a concurrent reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
