// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies connection errors. Sessions use
// [IsExpectedCloseError] to separate ordinary disconnects (EOF, reset,
// local close) from genuine I/O faults so the former log quietly while
// both take the same cleanup path.
package netutil
