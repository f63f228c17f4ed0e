// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the devicehub
// binaries. It centralizes the raw stderr writes that happen before the
// structured logger exists or after main has given up:
//
//   - Fatal error reporting when the logger may not be initialized.
//   - Usage errors, which exit with a distinct status.
package process
