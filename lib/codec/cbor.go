// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Core Deterministic Encoding (RFC 8949 §4.2): smallest integer form,
// definite lengths only.
var encMode = must(cbor.CoreDetEncOptions().EncMode())

// Device messages are flat strings and integers, so the decoder allows
// almost no structure. Indefinite lengths are rejected because lib/wire
// sizes each item from its header before decoding it.
var decMode = must(cbor.DecOptions{
	IndefLength:      cbor.IndefLengthForbidden,
	DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	UTF8:             cbor.UTF8RejectInvalid,
	MaxNestedLevels:  4,
	MaxArrayElements: 16,
	MaxMapPairs:      16,
}.DecMode())

func must[M any](mode M, err error) M {
	if err != nil {
		panic("codec: CBOR mode initialization failed: " + err.Error())
	}
	return mode
}

// Marshal encodes v as one deterministic CBOR item.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes exactly one CBOR item from data into v. Trailing
// bytes are an error.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder writes CBOR items to a stream. Aliased so callers import
// only lib/codec.
type Encoder = cbor.Encoder

// NewEncoder returns a deterministic encoder writing to w. Each Encode
// call writes one complete item and nothing is buffered between calls.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}
