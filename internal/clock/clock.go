// Package clock provides an injectable time source satisfying
// github.com/jacobsa/timeutil.Clock, following gcsfuse's clock package
// (clock/real_clock.go, clock/fake_clock.go) adapted to that single-
// method interface -- channel.Config.Clock only ever calls Now(), so
// this package's FakeClock need not model After/timers the way
// gcsfuse's does.
package clock

import (
	"sync"
	"time"

	"github.com/jacobsa/timeutil"
)

// RealClock returns a timeutil.Clock backed by the real wall clock.
func RealClock() timeutil.Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// FakeClock is a settable clock for deterministic tests: Now returns
// whatever was last set with Set, defaulting to the zero time.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a FakeClock initialized to t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the clock's current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set advances (or rewinds) the fake clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the fake clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
