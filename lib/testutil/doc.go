// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for devicehub packages.
//
// [RequireReceive] and [RequireClosed] wait on a channel with a
// deadline, so a session or listener test whose server goroutine never
// answers fails with context instead of hanging the suite.
//
// [Logger] routes slog output through t.Log so server-side logs from a
// failing test appear next to its failure.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation: user ids, device ids and domain names that must not
// collide between subtests sharing one registry.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no devicehub-internal dependencies.
package testutil
