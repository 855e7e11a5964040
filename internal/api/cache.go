package api

import (
	"os"
	"strconv"
	"sync"

	"github.com/pagepulse/pagepulse/pkg/run"
)

// RunCache is a thread-safe LRU cache for run snapshots loaded from blob
// storage. Snapshots are immutable once archived, so entries never expire;
// they are only evicted for space or flushed wholesale after a rescore.
type RunCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*run.Snapshot
	order   []string // oldest first
}

// NewRunCache creates a cache with the given maximum number of entries.
// If maxSize <= 0, it defaults to 50.
func NewRunCache(maxSize int) *RunCache {
	if maxSize <= 0 {
		maxSize = 50
	}
	return &RunCache{
		maxSize: maxSize,
		entries: make(map[string]*run.Snapshot),
	}
}

// NewRunCacheFromEnv creates a cache sized by PAGEPULSE_RUN_CACHE_SIZE.
func NewRunCacheFromEnv() *RunCache {
	size := 50
	if v := os.Getenv("PAGEPULSE_RUN_CACHE_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			size = parsed
		}
	}
	return NewRunCache(size)
}

// Get retrieves a snapshot from the cache, or nil if not present.
func (c *RunCache) Get(runID string) *run.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.entries[runID]
	if !ok {
		return nil
	}

	// Move to end (most recently used)
	c.moveToEnd(runID)
	return snap
}

// Put adds a snapshot to the cache, evicting the oldest if full.
func (c *RunCache) Put(runID string, snap *run.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[runID]; ok {
		c.entries[runID] = snap
		c.moveToEnd(runID)
		return
	}

	// Evict oldest if at capacity
	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[runID] = snap
	c.order = append(c.order, runID)
}

// Clear drops every entry. Called after a rescore or product deletion so
// stale scores are never served.
func (c *RunCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*run.Snapshot)
	c.order = nil
}

func (c *RunCache) moveToEnd(runID string) {
	for i, k := range c.order {
		if k == runID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, runID)
			return
		}
	}
}
