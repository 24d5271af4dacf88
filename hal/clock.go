package hal

import (
	"sync"
	"time"
)

// Clock provides the monotonic time and delay primitives the modem driver
// schedules its pulses, polls and timeouts with.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// FakeClock is a manually advanced Clock. Sleep returns immediately after
// moving time forward, so code under test runs its delays instantly.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
	hooks []func(now time.Time)
}

// NewFakeClock creates a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the clock by d.
func (c *FakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.slept += d
	c.mu.Unlock()
	c.Advance(d)
}

// Advance moves the clock forward and runs the registered hooks.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	hooks := append([]func(time.Time){}, c.hooks...)
	c.mu.Unlock()

	for _, h := range hooks {
		h(now)
	}
}

// Slept returns the total time spent in Sleep.
func (c *FakeClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

// OnAdvance registers a hook called with the new time after every advance.
func (c *FakeClock) OnAdvance(hook func(now time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}
