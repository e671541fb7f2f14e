// Package clock supplies the trusted wall-clock time used for expiry and cooldown checks.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns unix seconds; readings never decrease.
type Clock interface {
	Now() int64
}

// System reads the host clock.
type System struct{}

func (System) Now() int64 { return time.Now().Unix() }

// Manual is a settable clock for tests and dry runs.
type Manual struct {
	now atomic.Int64
}

// NewManual returns a Manual clock set to start.
func NewManual(start int64) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

func (m *Manual) Now() int64 { return m.now.Load() }

// Set moves the clock to t. Moving backwards is ignored.
func (m *Manual) Set(t int64) {
	for {
		cur := m.now.Load()
		if t <= cur || m.now.CompareAndSwap(cur, t) {
			return
		}
	}
}

// Advance moves the clock forward by d seconds.
func (m *Manual) Advance(d int64) {
	if d > 0 {
		m.now.Add(d)
	}
}
