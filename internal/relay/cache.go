package relay

import "time"

// =======================
// SNAPSHOT CACHE
// =======================

// CacheEntry is the latest snapshot seen for one host.
type CacheEntry struct {
	HostID      string         `json:"hostId"`
	Payload     map[string]any `json:"payload"`
	LastUpdated time.Time      `json:"lastUpdated"`
	SessionID   string         `json:"sessionId"` // producing session
}

// snapshotCache keeps only the most recent payload per host key.
// Not self-locking: every method runs under the relay mutex.
type snapshotCache struct {
	entries map[string]*CacheEntry
}

func newSnapshotCache() *snapshotCache {
	return &snapshotCache{entries: make(map[string]*CacheEntry)}
}

// Put replaces the entry wholesale. No merge: fields from the previous
// payload never survive into the new one.
func (c *snapshotCache) Put(hostKey string, payload map[string]any, sessionID string) {
	c.entries[hostKey] = &CacheEntry{
		HostID:      hostKey,
		Payload:     payload,
		LastUpdated: time.Now(),
		SessionID:   sessionID,
	}
}

func (c *snapshotCache) Get(hostKey string) (*CacheEntry, bool) {
	e, ok := c.entries[hostKey]
	return e, ok
}

func (c *snapshotCache) Evict(hostKey string) {
	delete(c.entries, hostKey)
}

func (c *snapshotCache) Len() int {
	return len(c.entries)
}
