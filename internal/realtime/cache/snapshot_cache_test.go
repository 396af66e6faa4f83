package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/flof/backend/internal/brain"
	"github.com/wonny/flof/backend/internal/risk"
)

func newTestCache(now *time.Time) *SnapshotCache {
	c := NewSnapshotCache(15*time.Second, nil)
	c.now = func() time.Time { return *now }
	return c
}

func TestSnapshotCacheUpdate(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	c := newTestCache(&now)

	assert.True(t, c.Update(brain.EngineSnapshot{Instrument: "ES", LastNs: 200, LastPrice: 5000}))
	assert.False(t, c.Update(brain.EngineSnapshot{Instrument: "ES", LastNs: 100, LastPrice: 4000}), "older snapshot rejected")
	assert.True(t, c.Update(brain.EngineSnapshot{Instrument: "ES", LastNs: 200, LastPrice: 5001}), "same event time replaces")

	e, ok := c.Get("ES")
	require.True(t, ok)
	assert.Equal(t, 5001.0, e.Snapshot.LastPrice)
	assert.False(t, e.IsStale)

	_, ok = c.Get("NQ")
	assert.False(t, ok)
}

func TestSnapshotCacheStaleness(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	c := newTestCache(&now)

	c.Update(brain.EngineSnapshot{Instrument: "ES", LastNs: 1})
	now = now.Add(10 * time.Second)
	c.Update(brain.EngineSnapshot{Instrument: "NQ", LastNs: 1, Risk: risk.Snapshot{Flattened: true}})
	now = now.Add(10 * time.Second)

	e, ok := c.Get("ES")
	require.True(t, ok)
	assert.True(t, e.IsStale)

	stats := c.Stats()
	assert.Equal(t, CacheStats{TotalCount: 2, FreshCount: 1, StaleCount: 1, FlattenedCount: 1}, stats)

	assert.Equal(t, 1, c.CleanStale())
	assert.Equal(t, []string{"NQ"}, c.Instruments())
	assert.Equal(t, 1, c.Len())
}
