// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mockable provides a clock that tests can pin and advance.
package mockable

import (
	"sync"
	"time"
)

// Clock reports wall time unless it has been pinned with Set.
// It is safe for concurrent use.
type Clock struct {
	mu     sync.RWMutex
	pinned bool
	now    time.Time
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = true
	c.now = t
}

// Advance moves a pinned clock forward by d. It pins an unpinned clock to
// the current time plus d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pinned {
		c.pinned = true
		c.now = time.Now()
	}
	c.now = c.now.Add(d)
}

// Sync releases a pinned clock back to wall time.
func (c *Clock) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = false
}

// Time returns the current time of the clock.
func (c *Clock) Time() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pinned {
		return c.now
	}
	return time.Now()
}

// Unix returns the clock time in whole seconds, clamped at zero.
func (c *Clock) Unix() uint64 {
	return uint64(max(c.Time().Unix(), 0))
}
