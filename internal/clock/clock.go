// Package clock provides the monotonic nanosecond source used to stamp
// samples.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns monotonic time in nanoseconds. Values never decrease.
type Clock interface {
	Now() uint64
}

// Monotonic reads the system monotonic clock and remembers the wall time
// at which it was created so timestamps can be rendered for humans.
type Monotonic struct {
	wallAtStart time.Time
	monoAtStart uint64
}

// NewMonotonic returns a Clock backed by the system monotonic clock.
func NewMonotonic() *Monotonic {
	m := &Monotonic{}
	m.monoAtStart = monotonicNow()
	m.wallAtStart = time.Now()

	return m
}

// Now returns the current monotonic time in nanoseconds.
func (*Monotonic) Now() uint64 {
	return monotonicNow()
}

// Wall converts a monotonic timestamp taken from this clock into an
// approximate wall-clock time.
func (m *Monotonic) Wall(ts uint64) time.Time {
	return m.wallAtStart.Add(time.Duration(int64(ts) - int64(m.monoAtStart)))
}

// Manual is a Clock that only moves when told to.
type Manual struct {
	now atomic.Uint64
}

// NewManual returns a Manual clock starting at start.
func NewManual(start uint64) *Manual {
	m := &Manual{}
	m.now.Store(start)

	return m
}

func (m *Manual) Now() uint64 {
	return m.now.Load()
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) uint64 {
	return m.now.Add(uint64(d))
}
