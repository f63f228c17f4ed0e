// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session runs the devicehub protocol for one device
// connection.
//
// A session is a small state machine driven by the connection's own
// goroutine:
//
//	connected → authenticating → device-binding → integrity-check → ready → closed
//
// Wire protocol, in order (every message is one [wire] item):
//
//	Device → Server: userId (string), secret (string)
//	Server → Device: OK-NEW-USER | OK-USER | WRONG-PWD (then close)
//	Device → Server: deviceId (string)
//	Server → Device: OK-DEVID | NOK-DEVID (device sends another id)
//	Device → Server: program name (string), program size (int)
//	Server → Device: OK-TESTED | NOK-TESTED (then close)
//	Device → Server: command (string)            ┐
//	Device → Server: image blob (EI only)        │ repeated until
//	Server → Device: status (string)             │ the device
//	Server → Device: payload blob (RT/RI on OK)  ┘ disconnects
//
// Command-level failures (bad arguments, missing permission, unknown
// domain) produce a status reply and leave the connection open.
// Handshake failures close it. Transport failures at any point end the
// session quietly.
//
// Whatever ends the session, the bound device slot is released on the
// way out, so a device that drops mid-command can reconnect
// immediately.
package session
