package application

import (
	"sync"
	"time"
)

// progressCache memoizes quota progress evaluations per (workspace, member).
// Entries expire after a TTL and the whole workspace is dropped whenever a
// rollup commits, since a new checkpoint changes every evaluation window.
type progressCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]progressEntry
}

type progressEntry struct {
	views       []QuotaProgressView
	workspaceID string
	storedAt    time.Time
}

func newProgressCache(ttl time.Duration, now func() time.Time) *progressCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &progressCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]progressEntry),
	}
}

func (c *progressCache) get(workspaceID, memberID string) ([]QuotaProgressView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[workspaceID+"|"+memberID]
	if !ok || c.now().Sub(entry.storedAt) >= c.ttl {
		return nil, false
	}
	views := make([]QuotaProgressView, len(entry.views))
	copy(views, entry.views)
	return views, true
}

func (c *progressCache) put(workspaceID, memberID string, views []QuotaProgressView) {
	stored := make([]QuotaProgressView, len(views))
	copy(stored, views)
	c.mu.Lock()
	c.entries[workspaceID+"|"+memberID] = progressEntry{
		views:       stored,
		workspaceID: workspaceID,
		storedAt:    c.now(),
	}
	c.mu.Unlock()
}

func (c *progressCache) invalidateWorkspace(workspaceID string) {
	c.mu.Lock()
	for key, entry := range c.entries {
		if entry.workspaceID == workspaceID {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}
