package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/wonny/flof/backend/internal/brain"
	"github.com/wonny/flof/backend/pkg/logger"
)

// Entry is a cached engine snapshot with its publish time
type Entry struct {
	Snapshot  brain.EngineSnapshot `json:"snapshot"`
	UpdatedAt time.Time            `json:"updated_at"`
	IsStale   bool                 `json:"is_stale"`
}

// SnapshotCache is an in-memory cache of the latest engine snapshot per instrument
// ⭐ SSOT: 엔진 스냅샷 캐싱은 이 구조체에서만 (API, 스케줄러가 공유)
type SnapshotCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration
	logger  *logger.Logger
	now     func() time.Time
}

// NewSnapshotCache creates a new snapshot cache
func NewSnapshotCache(ttl time.Duration, log *logger.Logger) *SnapshotCache {
	if log == nil {
		log = logger.NewNop()
	}
	return &SnapshotCache{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		logger:  log,
		now:     time.Now,
	}
}

// Update stores snap. Snapshots older (by event time) than the cached one are rejected.
func (c *SnapshotCache) Update(snap brain.EngineSnapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[snap.Instrument]; ok && snap.LastNs < existing.Snapshot.LastNs {
		c.logger.WithFields(map[string]interface{}{
			"instrument": snap.Instrument,
			"new_ns":     snap.LastNs,
			"old_ns":     existing.Snapshot.LastNs,
		}).Debug("Rejected older snapshot")
		return false
	}

	c.entries[snap.Instrument] = &Entry{Snapshot: snap, UpdatedAt: c.now()}
	return true
}

// Get returns a copy of the cached entry for instrument
func (c *SnapshotCache) Get(instrument string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[instrument]
	if !ok {
		return Entry{}, false
	}
	out := *e
	out.IsStale = c.now().Sub(e.UpdatedAt) > c.ttl
	return out, true
}

// Instruments returns cached instruments in order
func (c *SnapshotCache) Instruments() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of cached instruments
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CleanStale removes entries older than the TTL
func (c *SnapshotCache) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for k, e := range c.entries {
		if now.Sub(e.UpdatedAt) > c.ttl {
			delete(c.entries, k)
			count++
		}
	}

	if count > 0 {
		c.logger.WithField("count", count).Info("Cleaned stale snapshots from cache")
	}
	return count
}

// Stats returns cache statistics
func (c *SnapshotCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{TotalCount: len(c.entries)}
	now := c.now()
	for _, e := range c.entries {
		if now.Sub(e.UpdatedAt) > c.ttl {
			stats.StaleCount++
		}
		if e.Snapshot.Risk.Flattened {
			stats.FlattenedCount++
		}
	}
	stats.FreshCount = stats.TotalCount - stats.StaleCount
	return stats
}

// CacheStats represents cache statistics
type CacheStats struct {
	TotalCount     int `json:"total_count"`
	FreshCount     int `json:"fresh_count"`
	StaleCount     int `json:"stale_count"`
	FlattenedCount int `json:"flattened_count"`
}
