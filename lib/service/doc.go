// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the network servers the devicehub binaries
// compose in main():
//
//   - [StreamServer]: a TCP accept loop that hands each connection to a
//     [StreamFunc] on its own goroutine, recovers handler panics, and
//     on shutdown closes the listener and waits for handlers to
//     return.
//   - [HTTPServer]: a TCP HTTP server with graceful shutdown, used for
//     the Prometheus metrics endpoint.
//
// Both expose Ready and Addr so callers (and tests binding port 0) can
// learn the resolved address once the listener is bound. The package
// provides building blocks, not a runtime.
package service
