package overlay

import (
	"context"
	"testing"

	"github.com/couchcryptid/storm-data-layers/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingFetcher struct {
	calls int
	data  []byte
}

func (m *countingFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	m.calls++
	return m.data, nil
}

// --- CachedFetcher tests ---

func TestCachedFetcher_CacheHit(t *testing.T) {
	inner := &countingFetcher{data: []byte("[]")}
	cached := NewCachedFetcher(inner, 10, observability.NewMetricsForTesting())

	d1, err := cached.Fetch(context.Background(), "tracks.czml")
	require.NoError(t, err)
	d2, err := cached.Fetch(context.Background(), "tracks.czml")
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
}

func TestCachedFetcher_Invalidate(t *testing.T) {
	inner := &countingFetcher{data: []byte("[]")}
	cached := NewCachedFetcher(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.Fetch(context.Background(), "tracks.czml")
	cached.Invalidate("tracks.czml")
	_, _ = cached.Fetch(context.Background(), "tracks.czml")

	assert.Equal(t, 2, inner.calls)
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", []byte("A"))
	c.put("b", []byte("B"))

	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("A"), v)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", []byte("A"))
	c.put("b", []byte("B"))
	c.put("c", []byte("C")) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	_, ok = c.get("b")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", []byte("A"))
	c.put("b", []byte("B"))
	c.get("a")
	c.put("c", []byte("C"))

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")
	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_Delete(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", []byte("A"))
	c.put("b", []byte("B"))

	c.delete("a")
	c.delete("missing")

	_, ok := c.get("a")
	assert.False(t, ok)
	v, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, []byte("B"), v)
}
