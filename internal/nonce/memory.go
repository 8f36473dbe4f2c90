package nonce

import (
	"context"
	"sync"
	"time"

	"checkin/internal/clock"
)

// MemoryStore is a process-local Store. Expired entries are treated as absent.
type MemoryStore struct {
	clock   clock.Clock
	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	value   string
	expires time.Time
}

// NewMemoryStore creates an empty store driven by clk.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{clock: clk, entries: make(map[string]entry)}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = entry{value: value, expires: m.clock.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Take implements Store.
func (m *MemoryStore) Take(_ context.Context, key string) (string, bool, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	delete(m.entries, key)
	if !now.Before(e.expires) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Sweep drops expired entries.
func (m *MemoryStore) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}
