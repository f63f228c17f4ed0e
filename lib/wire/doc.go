// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the message framing used on device
// connections.
//
// Two kinds of message share one byte stream:
//
//   - Typed values (strings and integers), each a single definite-length
//     CBOR data item. Handshake fields, commands and status replies are
//     all CBOR text strings; the declared program size is a CBOR
//     integer.
//   - Blobs: an 8-byte big-endian signed length followed by exactly that
//     many raw bytes. Image uploads after EI, the telemetry block after
//     a successful RT and the image after a successful RI are blobs.
//
// A CBOR stream decoder buffers ahead of the item it returns, which
// would consume the raw blob bytes that follow a command. [Conn]
// therefore reads each CBOR item by parsing its header, reading exactly
// the bytes the header declares, and decoding that slice with
// codec.Unmarshal. The reader side never consumes bytes past the end of
// the current message.
//
// Errors from the underlying stream are returned unwrapped enough for
// errors.Is to see io.EOF and friends, so callers can classify
// disconnects with netutil.IsExpectedCloseError. Malformed input is
// reported as a *ProtocolError.
package wire
