// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Devicehub-server is the device registry and telemetry server. It
// accepts device connections on a TCP port, runs the authentication,
// device binding and program integrity handshake on each, then serves
// the domain and telemetry commands until the device disconnects.
//
// # Usage
//
//	devicehub-server [port] [--config FILE] [--data DIR] [--listen HOST]
//	    [--allow-list FILE | --allow-all] [--metrics ADDR]
//	    [--import-legacy DIR --legacy-owner USER] [--version]
//
// The port defaults to 12345. Flags override the configuration file,
// which is optional; DEVICEHUB_CONFIG names it when --config is absent.
//
// # State
//
// Users, domains, permissions, memberships and the latest reading of
// each device live in a SQLite database under the data directory.
// Images are content-addressed blobs next to it. Everything survives a
// restart except the set of online devices. A second server pointed at
// the same data directory refuses to start.
//
// --import-legacy seeds an empty data directory from the plain-text
// users.txt and devices.txt layout, attributing every device and
// domain to --legacy-owner.
//
// # Metrics
//
// With --metrics (or metrics.listen), Prometheus metrics are served at
// /metrics on that address: active and total sessions, commands by verb
// and status, devices online, and failed store writes.
package main
