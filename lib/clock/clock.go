// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync/atomic"
	"time"
)

// Clock is the registry's time source.
type Clock interface {
	Now() time.Time
}

// Real returns the wall clock.
func Real() Clock { return wallClock{} }

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// FakeClock holds a fixed instant that only moves when told to. Safe
// for concurrent use.
type FakeClock struct {
	nanos    atomic.Int64
	location *time.Location
}

// Fake returns a FakeClock reading initial. Now reports times in
// initial's location.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{location: initial.Location()}
	c.nanos.Store(initial.UnixNano())
	return c
}

// Now returns the current fake instant.
func (c *FakeClock) Now() time.Time {
	return time.Unix(0, c.nanos.Load()).In(c.location)
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.nanos.Add(int64(d))
}

// Set jumps to t, backwards included.
func (c *FakeClock) Set(t time.Time) {
	c.nanos.Store(t.UnixNano())
}
