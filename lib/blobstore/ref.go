// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Ref is a 32-byte BLAKE3 digest naming a blob.
type Ref [32]byte

// imageDomainKey separates blob refs from any other BLAKE3 use of the
// same bytes. The value is the ASCII domain name zero-padded to 32
// bytes; changing it invalidates every stored ref.
var imageDomainKey = [32]byte{
	'd', 'e', 'v', 'i', 'c', 'e', 'h', 'u', 'b', '.', 'b', 'l', 'o', 'b', '.',
	'i', 'm', 'a', 'g', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashBlob computes the ref of data.
func HashBlob(data []byte) Ref {
	hasher, err := blake3.NewKeyed(imageDomainKey[:])
	if err != nil {
		// Only returned for a key of the wrong length.
		panic("blobstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var ref Ref
	copy(ref[:], hasher.Sum(nil))
	return ref
}

// String returns the lowercase hex form stored in the database.
func (r Ref) String() string {
	return hex.EncodeToString(r[:])
}

// IsZero reports whether r is the zero ref.
func (r Ref) IsZero() bool {
	return r == Ref{}
}

// ParseRef parses the hex form produced by String.
func ParseRef(text string) (Ref, error) {
	var ref Ref
	if len(text) != hex.EncodedLen(len(ref)) {
		return ref, fmt.Errorf("blob ref %q: want %d hex digits", text, hex.EncodedLen(len(ref)))
	}
	if _, err := hex.Decode(ref[:], []byte(text)); err != nil {
		return ref, fmt.Errorf("blob ref %q: %w", text, err)
	}
	return ref, nil
}
