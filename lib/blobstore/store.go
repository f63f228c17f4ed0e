// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
)

// headerSize is the compression tag byte plus the uint64 size.
const headerSize = 9

// ErrNotFound is returned by Get for a ref with no stored blob.
var ErrNotFound = errors.New("blobstore: blob not found")

// ErrCorrupt is returned by Get when a stored blob does not decode or
// does not hash to its ref.
var ErrCorrupt = errors.New("blobstore: blob is corrupt")

// Config holds the parameters for opening a blob store.
type Config struct {
	// Root is the directory blobs are stored under. Created if it
	// does not exist.
	Root string

	// Compression is the algorithm new blobs are compressed with.
	Compression Compression

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Store is a directory of content-addressed blobs. Store is safe for
// concurrent use: blobs are immutable once renamed into place, and two
// writers of the same ref write identical content.
type Store struct {
	root        string
	compression Compression
	logger      *slog.Logger
}

// Open creates the root directory if needed and returns a Store.
func Open(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("blobstore: Root is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(cfg.Root, 0o750); err != nil {
		return nil, fmt.Errorf("blobstore: creating %s: %w", cfg.Root, err)
	}
	return &Store{
		root:        cfg.Root,
		compression: cfg.Compression,
		logger:      logger,
	}, nil
}

// Put stores data and returns its ref. Storing bytes that are already
// present is a no-op.
func (s *Store) Put(data []byte) (Ref, error) {
	ref := HashBlob(data)
	path := s.path(ref)

	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	body, algorithm, err := compress(data, s.compression)
	if err != nil {
		return Ref{}, fmt.Errorf("blobstore: compressing %s: %w", ref, err)
	}

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o750); err != nil {
		return Ref{}, fmt.Errorf("blobstore: creating %s: %w", directory, err)
	}

	temporary, err := os.CreateTemp(directory, ".put-*")
	if err != nil {
		return Ref{}, fmt.Errorf("blobstore: creating temporary file: %w", err)
	}
	temporaryPath := temporary.Name()
	committed := false
	defer func() {
		if !committed {
			temporary.Close()
			os.Remove(temporaryPath)
		}
	}()

	var header [headerSize]byte
	header[0] = byte(algorithm)
	binary.BigEndian.PutUint64(header[1:], uint64(len(data)))
	if _, err := temporary.Write(header[:]); err != nil {
		return Ref{}, fmt.Errorf("blobstore: writing %s: %w", ref, err)
	}
	if _, err := temporary.Write(body); err != nil {
		return Ref{}, fmt.Errorf("blobstore: writing %s: %w", ref, err)
	}
	if err := temporary.Sync(); err != nil {
		return Ref{}, fmt.Errorf("blobstore: syncing %s: %w", ref, err)
	}
	if err := temporary.Close(); err != nil {
		return Ref{}, fmt.Errorf("blobstore: closing %s: %w", ref, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		return Ref{}, fmt.Errorf("blobstore: committing %s: %w", ref, err)
	}
	committed = true

	s.logger.Debug("blob stored",
		"ref", ref.String(),
		"size", len(data),
		"stored_size", len(body),
		"compression", algorithm.String(),
	)
	return ref, nil
}

// Get returns the bytes stored under ref, verified against the ref.
func (s *Store) Get(ref Ref) ([]byte, error) {
	raw, err := os.ReadFile(s.path(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: reading %s: %w", ref, err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: %s: truncated header", ErrCorrupt, ref)
	}

	algorithm := Compression(raw[0])
	size := binary.BigEndian.Uint64(raw[1:headerSize])
	if size > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %s: implausible size %d", ErrCorrupt, ref, size)
	}
	data, err := decompress(raw[headerSize:], algorithm, int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, ref, err)
	}
	if HashBlob(data) != ref {
		return nil, fmt.Errorf("%w: %s: content hash mismatch", ErrCorrupt, ref)
	}
	return data, nil
}

// Delete removes the blob stored under ref. Deleting a missing blob is
// not an error.
func (s *Store) Delete(ref Ref) error {
	if err := os.Remove(s.path(ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blobstore: deleting %s: %w", ref, err)
	}
	s.logger.Debug("blob deleted", "ref", ref.String())
	return nil
}

func (s *Store) path(ref Ref) string {
	text := ref.String()
	return filepath.Join(s.root, text[:2], text)
}
