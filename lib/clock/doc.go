// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The registry stamps users, domains, samples and images with the time
// they were recorded. Production code passes Real(); tests pass Fake()
// so stored timestamps are deterministic:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	registry, _ := registry.New(registry.Config{Clock: c, ...})
//	c.Advance(time.Minute)
package clock
