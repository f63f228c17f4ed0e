// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/bureau-foundation/devicehub/lib/codec"
)

// CBOR major types that may appear on a device connection.
const (
	majorUnsigned = 0
	majorNegative = 1
	majorBytes    = 2
	majorText     = 3
)

// DefaultMaxItemSize bounds a single CBOR string on the wire. Commands
// and identifiers are short; 64 KiB leaves room for long domain names
// without letting a client make the server buffer arbitrary text.
const DefaultMaxItemSize = 64 * 1024

// blobHeaderSize is the size of the int64 length prefix on a blob.
const blobHeaderSize = 8

// ErrBlobTooLarge is returned by ReadBlob when the declared length
// exceeds the caller's limit. The payload has been drained from the
// stream, so the connection is still aligned on the next message.
var ErrBlobTooLarge = errors.New("wire: blob exceeds size limit")

// ProtocolError reports input that is well-formed at the transport
// level but violates the message format: wrong CBOR type, oversized or
// indefinite-length items, negative blob lengths.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "wire: protocol error: " + e.Reason
}

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// IsProtocolError reports whether err is (or wraps) a *ProtocolError.
func IsProtocolError(err error) bool {
	var protocolError *ProtocolError
	return errors.As(err, &protocolError)
}

// Conn frames messages over a bidirectional byte stream. A Conn is not
// safe for concurrent use; one goroutine owns each connection.
type Conn struct {
	reader      *bufio.Reader
	writer      io.Writer
	encoder     *codec.Encoder
	maxItemSize int
}

// NewConn wraps stream. maxItemSize bounds CBOR strings; zero or
// negative selects DefaultMaxItemSize.
func NewConn(stream io.ReadWriter, maxItemSize int) *Conn {
	if maxItemSize <= 0 {
		maxItemSize = DefaultMaxItemSize
	}
	return &Conn{
		reader:      bufio.NewReader(stream),
		writer:      stream,
		encoder:     codec.NewEncoder(stream),
		maxItemSize: maxItemSize,
	}
}

// ReadString reads one CBOR text string.
func (c *Conn) ReadString() (string, error) {
	major, item, err := c.readItem()
	if err != nil {
		return "", err
	}
	if major != majorText {
		return "", protocolErrorf("expected text string, got CBOR major type %d", major)
	}
	var value string
	if err := codec.Unmarshal(item, &value); err != nil {
		return "", protocolErrorf("decoding text string: %v", err)
	}
	return value, nil
}

// ReadInt reads one CBOR integer.
func (c *Conn) ReadInt() (int64, error) {
	major, item, err := c.readItem()
	if err != nil {
		return 0, err
	}
	if major != majorUnsigned && major != majorNegative {
		return 0, protocolErrorf("expected integer, got CBOR major type %d", major)
	}
	var value int64
	if err := codec.Unmarshal(item, &value); err != nil {
		return 0, protocolErrorf("decoding integer: %v", err)
	}
	return value, nil
}

// ReadBlob reads one length-prefixed blob of at most maxSize bytes.
// An oversized blob is read and discarded before ErrBlobTooLarge is
// returned.
func (c *Conn) ReadBlob(maxSize int64) ([]byte, error) {
	var header [blobHeaderSize]byte
	if _, err := io.ReadFull(c.reader, header[:]); err != nil {
		return nil, err
	}
	length := int64(binary.BigEndian.Uint64(header[:]))
	if length < 0 {
		return nil, protocolErrorf("negative blob length %d", length)
	}
	if length > maxSize {
		if _, err := io.CopyN(io.Discard, c.reader, length); err != nil {
			return nil, err
		}
		return nil, ErrBlobTooLarge
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(c.reader, data); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteString writes value as one CBOR text string.
func (c *Conn) WriteString(value string) error {
	return c.encoder.Encode(value)
}

// WriteInt writes value as one CBOR integer.
func (c *Conn) WriteInt(value int64) error {
	return c.encoder.Encode(value)
}

// WriteBlob writes data with its int64 length prefix.
func (c *Conn) WriteBlob(data []byte) error {
	var header [blobHeaderSize]byte
	binary.BigEndian.PutUint64(header[:], uint64(len(data)))
	if _, err := c.writer.Write(header[:]); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err := c.writer.Write(data)
	return err
}

// readItem reads exactly one definite-length CBOR item of a supported
// major type and returns its major type and encoded bytes.
func (c *Conn) readItem() (byte, []byte, error) {
	initial, err := c.reader.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	major := initial >> 5
	info := initial & 0x1f

	item := []byte{initial}
	var argument uint64
	switch {
	case info < 24:
		argument = uint64(info)
	case info <= 27:
		width := 1 << (info - 24)
		extension := make([]byte, width)
		if _, err := io.ReadFull(c.reader, extension); err != nil {
			return 0, nil, unexpectedEOF(err)
		}
		item = append(item, extension...)
		for _, b := range extension {
			argument = argument<<8 | uint64(b)
		}
	case info == 31:
		return 0, nil, protocolErrorf("indefinite-length item (major type %d)", major)
	default:
		return 0, nil, protocolErrorf("reserved additional information %d", info)
	}

	switch major {
	case majorUnsigned, majorNegative:
		return major, item, nil
	case majorBytes, majorText:
		if argument > uint64(c.maxItemSize) || argument > math.MaxInt32 {
			return 0, nil, protocolErrorf("item length %d exceeds limit %d", argument, c.maxItemSize)
		}
		headerLength := len(item)
		item = append(item, make([]byte, int(argument))...)
		if _, err := io.ReadFull(c.reader, item[headerLength:]); err != nil {
			return 0, nil, unexpectedEOF(err)
		}
		return major, item, nil
	default:
		return 0, nil, protocolErrorf("unsupported CBOR major type %d", major)
	}
}

// unexpectedEOF converts a clean EOF in the middle of an item into
// io.ErrUnexpectedEOF so callers can tell a truncated message from a
// peer that closed between messages.
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
