package cache

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reqsync/internal/model"
)

func setupTestCache(t *testing.T) (*Cache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, path
}

func sampleSnapshot() model.Snapshot {
	return model.Snapshot{
		{ID: "b", RequisitionNumber: "R-1001", Type: model.TypeProduction, CreatedAt: "2024-02-01T00:00:00Z"},
		{ID: "a", RequisitionNumber: "R-1000", Type: model.TypeFactory, CreatedAt: "2024-01-01T00:00:00Z"},
	}
}

func TestSQLite_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := setupTestCache(t)

	_, ok := c.ReadSnapshot(ctx)
	assert.False(t, ok, "fresh cache must be a miss")

	c.WriteSnapshot(ctx, sampleSnapshot())

	got, ok := c.ReadSnapshot(ctx)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "R-1000", got[1].RequisitionNumber)
}

func TestSQLite_EmptySnapshotIsPresent(t *testing.T) {
	ctx := context.Background()
	c, _ := setupTestCache(t)

	c.WriteSnapshot(ctx, nil)

	got, ok := c.ReadSnapshot(ctx)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestSQLite_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	c, _ := setupTestCache(t)
	u := model.User{Username: "ana", Name: "Ana", Role: model.RoleManager}

	c.WriteSession(ctx, u)
	got, ok := c.ReadSession(ctx)
	require.True(t, ok)
	assert.Equal(t, u, got)

	c.ClearSession(ctx)
	_, ok = c.ReadSession(ctx)
	assert.False(t, ok)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	c, path := setupTestCache(t)
	c.WriteSnapshot(ctx, sampleSnapshot())
	require.NoError(t, c.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok := reopened.ReadSnapshot(ctx)
	require.True(t, ok)
	assert.Len(t, got, 2)
}

func TestSQLite_RefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenSQLite(path)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestCache_CorruptEntriesReadAsAbsent(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		raw  string
	}{
		{"truncated json", `[{"id":"a",`},
		{"object instead of list", `{"id":"a"}`},
		{"null", `null`},
		{"not json", `definitely not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewMemory()
			require.NoError(t, c.b.set(ctx, KeySnapshot, []byte(tt.raw)))

			assert.NotPanics(t, func() {
				got, ok := c.ReadSnapshot(ctx)
				assert.False(t, ok)
				assert.Nil(t, got)
			})
		})
	}
}

func TestCache_CorruptSessionReadsAsAbsent(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	require.NoError(t, c.b.set(ctx, KeySession, []byte(`{"username":`)))

	_, ok := c.ReadSession(ctx)
	assert.False(t, ok)
}

type failingBackend struct{}

var errBackend = errors.New("disk on fire")

func (failingBackend) get(context.Context, string) ([]byte, bool, error) { return nil, false, errBackend }
func (failingBackend) set(context.Context, string, []byte) error        { return errBackend }
func (failingBackend) del(context.Context, string) error                { return errBackend }
func (failingBackend) close() error                                     { return nil }

func TestCache_BackendFailuresAreAbsorbed(t *testing.T) {
	ctx := context.Background()
	c := newCache(failingBackend{}, "failing")

	assert.NotPanics(t, func() {
		c.WriteSnapshot(ctx, sampleSnapshot())
		c.WriteSession(ctx, model.User{Username: "ana"})
		c.ClearSession(ctx)
	})

	_, ok := c.ReadSnapshot(ctx)
	assert.False(t, ok)
	_, ok = c.ReadSession(ctx)
	assert.False(t, ok)
}

func TestRedis_UnreachableServerDegradesToMiss(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := DialRedis("127.0.0.1:1", DefaultRedisPrefix)
	defer c.Close()

	assert.NotPanics(t, func() { c.WriteSnapshot(ctx, sampleSnapshot()) })
	_, ok := c.ReadSnapshot(ctx)
	assert.False(t, ok)
}

func TestOpen_SelectsDriver(t *testing.T) {
	c, err := Open(Config{Driver: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Driver())

	c, err = Open(Config{Path: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.Driver())
	require.NoError(t, c.Close())

	c, err = Open(Config{Driver: "redis", RedisAddr: "127.0.0.1:1"})
	require.NoError(t, err)
	assert.Equal(t, "redis", c.Driver())
	require.NoError(t, c.Close())

	_, err = Open(Config{Driver: "sqlite"})
	assert.Error(t, err)
	_, err = Open(Config{Driver: "etcd"})
	assert.ErrorContains(t, err, "unknown cache driver")
}
