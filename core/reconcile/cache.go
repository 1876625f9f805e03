package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
)

// ComparisonCache remembers, per entity, the fingerprint of the stored
// fields at the last synchronization that wrote or verified the row. An
// entity whose fingerprint is unchanged is not diffed against the database
// again until Reset.
type ComparisonCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]string
}

// NewComparisonCache creates an empty cache.
func NewComparisonCache() *ComparisonCache {
	return &ComparisonCache{entries: make(map[string]map[string]string)}
}

// Fingerprint hashes a field map independent of key order.
func Fingerprint(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(fields[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Matches reports whether the entity was last seen with this fingerprint.
func (c *ComparisonCache) Matches(entityType, vpID, fingerprint string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fp, ok := c.entries[entityType][vpID]
	return ok && fp == fingerprint
}

// Store records the fingerprint of an entity that matches the database.
func (c *ComparisonCache) Store(entityType, vpID, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.entries[entityType]
	if m == nil {
		m = make(map[string]string)
		c.entries[entityType] = m
	}
	m[vpID] = fingerprint
}

// Forget drops a single entity.
func (c *ComparisonCache) Forget(entityType, vpID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries[entityType], vpID)
}

// ResetType drops every entry of one entity type.
func (c *ComparisonCache) ResetType(entityType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, entityType)
}

// Reset drops everything.
func (c *ComparisonCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]map[string]string)
}
