// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobstore stores device image uploads as content-addressed
// files.
//
// A blob's [Ref] is the BLAKE3 keyed hash of its uncompressed bytes,
// so two devices uploading the same picture share one file and a
// reader can verify what it got back. Files live at
//
//	<root>/<first two hex digits>/<full hex ref>
//
// and start with a 9-byte header: one compression tag byte followed by
// the big-endian uint64 uncompressed size. The body is compressed with
// the store's configured algorithm (zstd or lz4), or stored as-is when
// compression would not shrink it (JPEG and PNG payloads usually
// land here).
//
// Writes go to a temporary file in the destination directory, are
// synced, and are renamed into place, so a crash leaves either the old
// state or a complete blob, never a torn one.
package blobstore
