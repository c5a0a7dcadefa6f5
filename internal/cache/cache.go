// Package cache holds built navigation graphs keyed by (tree, tenant).
//
// The Cache never talks to a tree source. Entries are created only by
// Populate with caller-supplied records, so lookups stay free of I/O and the
// cache's contents are fully determined by the calls made against it.
// Graph construction happens outside the lock; only the final swap is
// serialized, so two concurrent populates for one key race and the last
// write wins.
package cache

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/graph"
	"github.com/alfredjeanlab/navgraph/internal/model"
)

var (
	// ErrNotFound is returned by Get when no entry exists for the key.
	ErrNotFound = errors.New("cache: graph not found")

	// ErrInvalidKey is returned when the tree or tenant component is missing.
	ErrInvalidKey = errors.New("cache: tree id and tenant id are required")

	// ErrEmptyTree is returned by Populate when the records contain no nodes.
	ErrEmptyTree = errors.New("cache: tree has no nodes")
)

// Key identifies a cache entry. Graphs are never shared across tenants even
// when tree IDs collide.
type Key struct {
	TreeID   string `json:"tree_id"`
	TenantID string `json:"tenant_id"`
}

type entry struct {
	graph    *graph.Graph
	cachedAt time.Time
}

// Stats is a read-only snapshot of the cache for monitoring.
type Stats struct {
	Count          int        `json:"count"`
	Keys           []Key      `json:"keys"`
	OldestCachedAt *time.Time `json:"oldest_cached_at,omitempty"`
	NewestCachedAt *time.Time `json:"newest_cached_at,omitempty"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for cachedAt and Sweep.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache is a concurrency-safe map from Key to an immutable graph.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*entry
	now     func() time.Time
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func checkKey(treeID, tenantID string) error {
	if model.ValidateKey(treeID, tenantID) != nil {
		return ErrInvalidKey
	}
	return nil
}

// Get returns the cached graph for (treeID, tenantID). It never builds or
// loads anything.
func (c *Cache) Get(treeID, tenantID string) (*graph.Graph, error) {
	if err := checkKey(treeID, tenantID); err != nil {
		return nil, err
	}
	c.mu.RLock()
	e, ok := c.entries[Key{treeID, tenantID}]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e.graph, nil
}

// CachedAt returns when the entry for the key was populated.
func (c *Cache) CachedAt(treeID, tenantID string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[Key{treeID, tenantID}]
	if !ok {
		return time.Time{}, false
	}
	return e.cachedAt, true
}

// Entry is a cached graph and the time it was stored.
type Entry struct {
	Graph    *graph.Graph
	CachedAt time.Time
}

// Populate builds a graph from the records and stores it under the key,
// replacing any existing entry. When the records contain no nodes the tree is
// unusable: nothing is stored, any previous entry for the key is evicted and
// ErrEmptyTree is returned.
func (c *Cache) Populate(treeID, tenantID string, nodes []model.NodeRecord, edges []model.EdgeRecord) (*graph.Graph, error) {
	e, err := c.PopulateEntry(treeID, tenantID, nodes, edges)
	if err != nil {
		return nil, err
	}
	return e.Graph, nil
}

// PopulateEntry is Populate that also reports the CachedAt it stored, so
// callers need not look the entry up again.
func (c *Cache) PopulateEntry(treeID, tenantID string, nodes []model.NodeRecord, edges []model.EdgeRecord) (Entry, error) {
	if err := checkKey(treeID, tenantID); err != nil {
		return Entry{}, err
	}
	key := Key{treeID, tenantID}

	g := graph.Build(nodes, edges)
	if g.NodeCount() == 0 {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Entry{}, ErrEmptyTree
	}

	e := &entry{graph: g, cachedAt: c.now()}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return Entry{Graph: g, CachedAt: e.cachedAt}, nil
}

// Invalidate removes the entry for (treeID, tenantID). With an empty tenantID
// every entry for treeID is removed, whatever its tenant. It returns the
// number of entries removed.
func (c *Cache) Invalidate(treeID, tenantID string) (int, error) {
	if treeID == "" {
		return 0, ErrInvalidKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if tenantID != "" {
		key := Key{treeID, tenantID}
		if _, ok := c.entries[key]; !ok {
			return 0, nil
		}
		delete(c.entries, key)
		return 1, nil
	}

	removed := 0
	for key := range c.entries {
		if key.TreeID == treeID {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Sweep removes entries cached more than maxAge ago and returns how many were
// removed.
func (c *Cache) Sweep(maxAge time.Duration) int {
	cutoff := c.now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.cachedAt.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear removes every entry and returns how many there were.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[Key]*entry)
	return n
}

// Stats returns a snapshot of the cache. Keys are sorted by tree, then tenant.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Count: len(c.entries), Keys: make([]Key, 0, len(c.entries))}
	for key, e := range c.entries {
		s.Keys = append(s.Keys, key)
		if s.OldestCachedAt == nil || e.cachedAt.Before(*s.OldestCachedAt) {
			oldest := e.cachedAt
			s.OldestCachedAt = &oldest
		}
		if s.NewestCachedAt == nil || e.cachedAt.After(*s.NewestCachedAt) {
			newest := e.cachedAt
			s.NewestCachedAt = &newest
		}
	}
	sort.Slice(s.Keys, func(i, j int) bool {
		if s.Keys[i].TreeID != s.Keys[j].TreeID {
			return s.Keys[i].TreeID < s.Keys[j].TreeID
		}
		return s.Keys[i].TenantID < s.Keys[j].TenantID
	})
	return s
}
