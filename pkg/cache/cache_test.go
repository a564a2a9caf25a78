package cache_test

import (
	"os"
	"popgrid/pkg/cache"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetMissingKey(t *testing.T) {
	c, err := cache.New(t.TempDir(), time.Hour)
	require.NoError(t, err)

	_, ok, err := c.Get("https://example.com/KEN/v1.0/M_0_4.asc")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutThenGet(t *testing.T) {
	c, err := cache.New(t.TempDir(), time.Hour)
	require.NoError(t, err)

	const key = "https://example.com/KEN/v1.0/M_0_4.asc"
	body := []byte("ncols 2\nnrows 1\n")

	path, err := c.Put(key, body)
	require.NoError(t, err)

	got, ok, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, path, got)

	stored, err := os.ReadFile(got)
	require.NoError(t, err)
	require.Equal(t, body, stored)
}

func TestKeysDoNotCollide(t *testing.T) {
	c, err := cache.New(t.TempDir(), time.Hour)
	require.NoError(t, err)

	a, err := c.Put("key-a", []byte("a"))
	require.NoError(t, err)
	b, err := c.Put("key-b", []byte("b"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	gotA, ok, err := c.Get("key-a")
	require.NoError(t, err)
	require.True(t, ok)
	bodyA, err := os.ReadFile(gotA)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), bodyA)
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.New(dir, time.Nanosecond)
	require.NoError(t, err)

	_, err = c.Put("stale", []byte("x"))
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get("stale")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c, err := cache.New(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = c.Put("pinned", []byte("x"))
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	_, ok, err := c.Get("pinned")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPruneRemovesExpiredEntries(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.New(dir, time.Nanosecond)
	require.NoError(t, err)

	_, err = c.Put("old-1", []byte("x"))
	require.NoError(t, err)
	_, err = c.Put("old-2", []byte("y"))
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	removed, err := c.Prune()
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
