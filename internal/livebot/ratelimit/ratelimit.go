// Package ratelimit drops chat turns that arrive too quickly after the
// previous accepted turn from the same actor.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultInterval is the minimum gap between two accepted turns.
const DefaultInterval = 2 * time.Second

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// MinInterval admits at most one turn per actor per interval. It is safe
// for concurrent use.
type MinInterval struct {
	mu       sync.Mutex
	interval time.Duration
	clock    Clock
	last     map[string]time.Time
}

// NewMinInterval returns a limiter. A non-positive interval selects
// DefaultInterval; a nil clock selects SystemClock.
func NewMinInterval(interval time.Duration, clock Clock) *MinInterval {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &MinInterval{interval: interval, clock: clock, last: make(map[string]time.Time)}
}

// Allow reports whether actor may proceed and, if so, records the time.
// A refused turn does not move the window.
func (m *MinInterval) Allow(actor string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if prev, ok := m.last[actor]; ok && now.Sub(prev) < m.interval {
		return false
	}
	m.last[actor] = now
	return true
}

// Prune forgets actors idle for longer than olderThan and returns how many
// were removed.
func (m *MinInterval) Prune(olderThan time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-olderThan)
	n := 0
	for actor, t := range m.last {
		if t.Before(cutoff) {
			delete(m.last, actor)
			n++
		}
	}
	return n
}

// Len returns the number of tracked actors.
func (m *MinInterval) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.last)
}
