// Package clock keeps track of the competition time.
package clock

import (
	"sync"
	"time"
)

// Current is a point-in-time reading of the clock.
type Current struct {
	Paused  bool
	Elapsed time.Duration
}

// Snapshot exposes the raw clock state.
type Snapshot struct {
	StartTime   time.Time
	PauseTime   *time.Time
	TotalPaused time.Duration
}

// Clock is a pausable stopwatch shared by every request.
// The zero value is not usable, use New.
type Clock struct {
	mu  sync.Mutex
	now func() time.Time

	start       time.Time
	pausedAt    time.Time
	paused      bool
	totalPaused time.Duration
}

// New returns a clock started at now(). A nil now means time.Now.
func New(now func() time.Time, startPaused bool) *Clock {
	if now == nil {
		now = time.Now
	}
	c := &Clock{now: now, start: now()}
	if startPaused {
		c.paused = true
		c.pausedAt = c.start
	}
	return c
}

// Pause stops the clock. It reports whether the clock was running before the call.
func (c *Clock) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return false
	}
	c.paused = true
	c.pausedAt = c.now()
	return true
}

// Unpause resumes the clock. It reports whether the clock was paused before the call.
func (c *Clock) Unpause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return false
	}
	c.totalPaused += c.now().Sub(c.pausedAt)
	c.paused = false
	c.pausedAt = time.Time{}
	return true
}

func (c *Clock) Current() Current {
	c.mu.Lock()
	defer c.mu.Unlock()
	end := c.now()
	if c.paused {
		end = c.pausedAt
	}
	elapsed := end.Sub(c.start) - c.totalPaused
	if elapsed < 0 {
		elapsed = 0
	}
	return Current{Paused: c.paused, Elapsed: elapsed}
}

func (c *Clock) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// TimeLeft returns how much of limit remains, never less than zero.
func (c *Clock) TimeLeft(limit time.Duration) time.Duration {
	return max(limit-c.Current().Elapsed, 0)
}

func (c *Clock) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{StartTime: c.start, TotalPaused: c.totalPaused}
	if c.paused {
		t := c.pausedAt
		s.PauseTime = &t
	}
	return s
}
