package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Dir = filepath.Join(t.TempDir(), "cache")
	c, err := New(cfg, nil)
	require.NoError(t, err)
	return c
}

func TestKeyStability(t *testing.T) {
	a := Key("content", "phase1", map[string]string{"a": "1", "b": "2"})
	b := Key("content", "phase1", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Key("content", "phase2", map[string]string{"a": "1", "b": "2"}))
	assert.NotEqual(t, a, Key("other", "phase1", map[string]string{"a": "1", "b": "2"}))
	assert.NotEqual(t, a, Key("content", "phase1", map[string]string{"a": "1", "b": "3"}))
}

func TestRoundTrip(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "chapter text", "phase1", nil)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "chapter text", "phase1", "model response", nil))

	got, ok := c.Get(ctx, "chapter text", "phase1", nil)
	require.True(t, ok)
	assert.Equal(t, "model response", got)

	// Different params miss.
	_, ok = c.Get(ctx, "chapter text", "phase1", map[string]string{"model": "x"})
	assert.False(t, ok)
}

func TestExpiryRemovesFile(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "content", "phase1", "payload", nil))

	// Move the clock past the phase1 TTL.
	c.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	_, ok := c.Get(ctx, "content", "phase1", nil)
	assert.False(t, ok)

	path := c.entryPath("phase1", Key("content", "phase1", nil))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestZeroTTLNeverExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = filepath.Join(t.TempDir(), "cache")
	cfg.TTLs = map[string]time.Duration{}
	c, err := New(cfg, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "content", "phase1", "payload", nil))
	c.now = func() time.Time { return time.Now().Add(1000 * time.Hour) }

	got, ok := c.Get(ctx, "content", "phase1", nil)
	require.True(t, ok)
	assert.Equal(t, "payload", got)
}

func TestCorruptEntrySelfHeals(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "content", "phase1", "payload", nil))
	path := c.entryPath("phase1", Key("content", "phase1", nil))
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	_, ok := c.Get(ctx, "content", "phase1", nil)
	assert.False(t, ok)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDisabledCacheIsNoOp(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-created")
	c, err := New(Config{Enabled: false, Dir: dir}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "content", "phase1", "payload", nil))
	_, ok := c.Get(ctx, "content", "phase1", nil)
	assert.False(t, ok)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEntries)
}

func TestClearOps(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "phase1", "1", nil))
	require.NoError(t, c.Set(ctx, "b", "phase1", "2", nil))
	require.NoError(t, c.Set(ctx, "c", "phase2", "3", nil))

	t.Run("stats", func(t *testing.T) {
		stats, err := c.Stats()
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalEntries)
		assert.Equal(t, 2, stats.EntriesPerPhase["phase1"])
		assert.Equal(t, 1, stats.EntriesPerPhase["phase2"])
		assert.Greater(t, stats.TotalBytes, int64(0))
	})

	t.Run("stats with underscore in phase name", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "x", "phase_extra", "9", nil))
		stats, err := c.Stats()
		require.NoError(t, err)
		assert.Equal(t, 1, stats.EntriesPerPhase["phase_extra"])
		require.NoError(t, c.Clear("phase_extra"))
	})

	t.Run("clear one phase", func(t *testing.T) {
		require.NoError(t, c.Clear("phase1"))
		stats, err := c.Stats()
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalEntries)
		assert.Equal(t, 0, stats.EntriesPerPhase["phase1"])
	})

	t.Run("clear expired", func(t *testing.T) {
		c.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
		removed, err := c.ClearExpired()
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
	})

	t.Run("clear all", func(t *testing.T) {
		c.now = time.Now
		require.NoError(t, c.Set(ctx, "d", "phase1", "4", nil))
		require.NoError(t, c.ClearAll())
		stats, err := c.Stats()
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalEntries)
	})
}
