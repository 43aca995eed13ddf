// Package cache provides short-TTL caching of complete query results.
//
// Two backends implement rag.ResultCache: Memory, a mutex-guarded map with
// lazy TTL expiry and bounded capacity, and Redis, for deployments where
// several engine instances share one cache.
//
// Cached responses are returned by pointer; callers must treat them as
// read-only.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/quorumhq/quorum/internal/rag"
)

// DefaultTTL is how long an entry stays fresh.
const DefaultTTL = 5 * time.Minute

// DefaultMaxEntries bounds the in-memory cache so it cannot grow without
// limit over the life of the process.
const DefaultMaxEntries = 1024

// Memory is an in-process result cache. Entries expire lazily: a read
// checks age against the TTL and treats stale entries as misses, deleting
// them in passing. Inserts beyond capacity evict the oldest entry; there is
// no background sweeper.
//
// Memory is safe for concurrent use.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	clock      func() time.Time
}

type memoryEntry struct {
	resp     *rag.QueryResponse
	storedAt time.Time
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithTTL overrides the default TTL.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxEntries overrides the default capacity bound.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) { m.maxEntries = n }
}

// WithClock injects a clock. Tests use this to control expiry.
func WithClock(clock func() time.Time) MemoryOption {
	return func(m *Memory) { m.clock = clock }
}

// NewMemory creates an in-memory result cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:    make(map[string]memoryEntry),
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached response for key, or false when absent or stale.
func (m *Memory) Get(_ context.Context, key string) (*rag.QueryResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.clock().Sub(e.storedAt) >= m.ttl {
		delete(m.entries, key)
		return nil, false
	}
	return e.resp, true
}

// Set stores a response, evicting the oldest entry at capacity.
func (m *Memory) Set(_ context.Context, key string, resp *rag.QueryResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range m.entries {
			if oldestKey == "" || e.storedAt.Before(oldest) {
				oldestKey = k
				oldest = e.storedAt
			}
		}
		delete(m.entries, oldestKey)
	}

	m.entries[key] = memoryEntry{resp: resp, storedAt: m.clock()}
}

// Len returns the number of stored entries, including stale ones that have
// not been read since expiring.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
