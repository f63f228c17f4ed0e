// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by the
// devicehub server and its device clients.
//
// Every string and integer exchanged on a device connection is a single
// CBOR data item. CBOR is self-delimiting, so the stream needs no extra
// framing for these messages. The encoder uses Core Deterministic
// Encoding (RFC 8949 §4.2): the same logical value always produces the
// same bytes, which keeps protocol fixtures in tests stable.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Writing uses a stream encoder:
//
//	encoder := codec.NewEncoder(conn)
//
// There is no stream decoder. Device connections carry raw
// length-prefixed blobs between CBOR items, and a read-ahead decoder
// would swallow those bytes, so lib/wire sizes each item from its
// header and decodes it with [Unmarshal].
package codec
