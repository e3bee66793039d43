package testing

import (
	"context"
	"sync"
	"time"

	"github.com/opd-ai/courier/interfaces"
)

// ManualClock is an interfaces.TimeProvider that only moves when told to.
// Timers fire and sleepers wake as Advance passes their deadlines.
//
// With auto-advance enabled, Sleep returns immediately after moving the clock
// forward by the requested duration, which suits tests of pacing and back-off
// that only care about the sequence of waits.
type ManualClock struct {
	mu          sync.Mutex
	now         time.Time
	timers      []*manualTimer
	sleepers    []*sleeper
	sleeps      []time.Duration
	autoAdvance bool
}

type manualTimer struct {
	clock    *ManualClock
	deadline time.Time
	f        func()
	stopped  bool
	fired    bool
}

type sleeper struct {
	deadline time.Time
	done     chan struct{}
}

// NewManualClock creates a clock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// SetAutoAdvance toggles auto-advance mode.
func (c *ManualClock) SetAutoAdvance(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoAdvance = on
}

// Now implements interfaces.TimeProvider.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since implements interfaces.TimeProvider.
func (c *ManualClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep blocks until the clock has advanced by d or ctx is done.
func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	if c.autoAdvance {
		c.mu.Unlock()
		c.Advance(d)
		return nil
	}
	s := &sleeper{deadline: c.now.Add(d), done: make(chan struct{})}
	c.sleepers = append(c.sleepers, s)
	c.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		for i, other := range c.sleepers {
			if other == s {
				c.sleepers = append(c.sleepers[:i], c.sleepers[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		return ctx.Err()
	}
}

// AfterFunc implements interfaces.TimeProvider. f runs on its own goroutine
// once Advance passes the deadline.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) interfaces.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Stop implements interfaces.Timer.
func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing due timers and waking due
// sleepers.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var due []func()
	remaining := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.deadline.After(now):
			t.fired = true
			due = append(due, t.f)
		default:
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining

	awake := c.sleepers[:0]
	var wake []*sleeper
	for _, s := range c.sleepers {
		if !s.deadline.After(now) {
			wake = append(wake, s)
			continue
		}
		awake = append(awake, s)
	}
	c.sleepers = awake
	c.mu.Unlock()

	for _, s := range wake {
		close(s.done)
	}
	for _, f := range due {
		go f()
	}
}

// PendingTimers returns the number of armed, unfired timers.
func (c *ManualClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Sleepers returns the number of goroutines blocked in Sleep.
func (c *ManualClock) Sleepers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleepers)
}

// Sleeps returns every duration passed to Sleep, in call order.
func (c *ManualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
