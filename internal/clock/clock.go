// Package clock provides the time and identifier sources shared by the store
// and registry. Production code uses System; tests inject a Manual clock so
// timestamps and idle reaping are deterministic.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Manual is a settable clock for tests. The zero value starts at the zero time;
// use NewManual to pick a starting instant.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a Manual clock positioned at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual instant.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new instant.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Set positions the clock at t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Sequence hands out strictly increasing identifiers starting at 1.
// It is safe for concurrent use.
type Sequence struct {
	last atomic.Int64
}

// Next returns the next identifier.
func (s *Sequence) Next() int64 { return s.last.Add(1) }

// Peek returns the identifier Next would return without consuming it.
func (s *Sequence) Peek() int64 { return s.last.Load() + 1 }

// Reset rewinds the sequence so the next identifier is 1 again.
func (s *Sequence) Reset() { s.last.Store(0) }
