// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// Fataler is the part of testing.TB the channel helpers need. Tests of
// the helpers substitute a recorder.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch, failing the test if
// none arrives within timeout or ch is closed first. context is either
// a plain description or a format string and its arguments.
//
//	reply := testutil.RequireReceive(t, replies, 5*time.Second, "reply to %s", verb)
func RequireReceive[T any](t Fataler, ch <-chan T, timeout time.Duration, context ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed before a value arrived: %s", describe(context))
		}
		return value
	case <-timer.C:
		t.Fatalf("no value after %v: %s", timeout, describe(context))
	}
	panic("unreachable")
}

// RequireClosed waits up to timeout for ch to close (or deliver), the
// way readiness and done channels signal.
//
//	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "listener bound")
func RequireClosed(t Fataler, ch <-chan struct{}, timeout time.Duration, context ...any) {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("channel still open after %v: %s", timeout, describe(context))
	}
}

func describe(context []any) string {
	switch {
	case len(context) == 0:
		return "(no context)"
	case len(context) == 1:
		return fmt.Sprint(context[0])
	}
	if format, ok := context[0].(string); ok {
		return fmt.Sprintf(format, context[1:]...)
	}
	return fmt.Sprint(context...)
}
