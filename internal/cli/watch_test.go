package cli

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reqsync/internal/testutil"
)

var metricsURL = regexp.MustCompile(`metrics on (http://\S+/metrics)`)

func TestWatch_AlertsOnGrowth(t *testing.T) {
	env := newTestEnv(t, testutil.Requisitions(3))
	env.loginAs(testutil.Manager())
	env.PollInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout := &syncBuffer{}
	stderr := &syncBuffer{}
	done := make(chan int, 1)
	go func() {
		done <- execute(ctx, &RootOptions{Env: env.Env}, []string{"watch", "--metrics-addr", "127.0.0.1:0"}, stdout, stderr)
	}()

	require.Eventually(t, func() bool {
		return regexp.MustCompile(`Watching as gestora: 3 requisition\(s\)`).MatchString(stdout.String())
	}, 5*time.Second, 10*time.Millisecond, stdout.String())

	env.remote.SetCount(5)
	require.Eventually(t, func() bool {
		return regexp.MustCompile(`2 new requisition\(s\) found\.`).MatchString(stdout.String())
	}, 5*time.Second, 10*time.Millisecond, stdout.String())

	require.Eventually(t, func() bool { return len(env.host.Shown()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Requisitions: 2 new requisition(s) found."}, env.host.Shown())
	assert.Equal(t, 1, env.sound.Plays())

	m := metricsURL.FindStringSubmatch(stdout.String())
	require.Len(t, m, 2, stdout.String())
	resp, err := http.Get(m[1])
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "reqsync_alerts_total 1")
	assert.Contains(t, string(body), "reqsync_snapshot_size 5")

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, ExitSuccess, code, stderr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	cached, ok := env.Cache.ReadSnapshot(context.Background())
	require.True(t, ok)
	assert.Len(t, cached, 5)
}

func TestWatch_NoAlertsWhenDenied(t *testing.T) {
	env := newTestEnv(t, testutil.Requisitions(1))
	env.loginAs(testutil.Manager())
	env.PollInterval = 20 * time.Millisecond
	env.host.granted = false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout := &syncBuffer{}
	done := make(chan int, 1)
	go func() {
		done <- execute(ctx, &RootOptions{Env: env.Env}, []string{"watch"}, stdout, io.Discard)
	}()

	require.Eventually(t, func() bool {
		return regexp.MustCompile(`Watching as gestora`).MatchString(stdout.String())
	}, 5*time.Second, 10*time.Millisecond)

	env.remote.SetCount(2)
	require.Eventually(t, func() bool {
		return regexp.MustCompile(`1 new requisition\(s\) found\.`).MatchString(stdout.String())
	}, 5*time.Second, 10*time.Millisecond, stdout.String())

	assert.Empty(t, env.host.Shown(), "denied permission suppresses OS notifications only")
	assert.Equal(t, 1, env.sound.Plays())

	cancel()
	assert.Equal(t, ExitSuccess, <-done)
}

func TestWatch_NotLoggedIn(t *testing.T) {
	env := newTestEnv(t, nil)
	stdout, _, code := env.run(t, "watch")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout, "Error [E003]")
}

func TestWatch_EnterOpensAlertAndRefreshes(t *testing.T) {
	env := newTestEnv(t, testutil.Requisitions(3))
	env.loginAs(testutil.Manager())
	env.PollInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdin, keys := io.Pipe()
	defer keys.Close()

	stdout := &syncBuffer{}
	done := make(chan int, 1)
	go func() {
		done <- execute(ctx, &RootOptions{Env: env.Env, In: stdin}, []string{"watch"}, stdout, io.Discard)
	}()

	require.Eventually(t, func() bool {
		return regexp.MustCompile(`Watching as gestora`).MatchString(stdout.String())
	}, 5*time.Second, 10*time.Millisecond)

	env.remote.SetCount(4)
	require.Eventually(t, func() bool {
		return regexp.MustCompile(`1 new requisition\(s\) found\.`).MatchString(stdout.String())
	}, 5*time.Second, 10*time.Millisecond, stdout.String())

	before := env.remote.Fetches()
	go func() { _, _ = keys.Write([]byte("\n")) }()

	require.Eventually(t, func() bool {
		return regexp.MustCompile(`NUMBER\s+TYPE[\s\S]*4 requisition\(s\)\. Next number: R-\d+`).MatchString(stdout.String())
	}, 5*time.Second, 10*time.Millisecond, stdout.String())
	assert.Greater(t, env.remote.Fetches(), before, "opening the alert reloads the list")

	cancel()
	assert.Equal(t, ExitSuccess, <-done)
}
