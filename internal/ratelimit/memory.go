package ratelimit

import (
	"context"
	"sync"
	"time"

	"checkin/internal/clock"
)

// MemoryCounter keeps windows in process memory. Suitable for a single instance only.
type MemoryCounter struct {
	clock   clock.Clock
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int64
	expires time.Time
}

// NewMemoryCounter creates an empty counter driven by clk.
func NewMemoryCounter(clk clock.Clock) *MemoryCounter {
	return &MemoryCounter{clock: clk, windows: make(map[string]*window)}
}

// Hit implements Counter.
func (m *MemoryCounter) Hit(_ context.Context, key string, win time.Duration) (int64, time.Duration, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.expires) {
		w = &window{expires: now.Add(win)}
		m.windows[key] = w
	}
	w.count++
	return w.count, w.expires.Sub(now), nil
}

// Sweep drops expired windows and returns how many were removed.
func (m *MemoryCounter) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, w := range m.windows {
		if !now.Before(w.expires) {
			delete(m.windows, k)
			removed++
		}
	}
	return removed
}
