// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which build of devicehub-server or
// devicehub-device is running.
//
// Release builds stamp [GitCommit], [GitDirty] and [BuildTime] through
// -ldflags -X. Without a stamp, the commit and time come from the VCS
// information the Go toolchain embeds in binaries built from a
// checkout, and fall back to "unknown" when there is none, as in test
// binaries. The server logs [Info] at startup; both binaries print
// [Full] for --version.
package version
