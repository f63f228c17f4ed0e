// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/devicehub/lib/blobstore"
	"github.com/bureau-foundation/devicehub/lib/schema/device"
	"github.com/bureau-foundation/devicehub/lib/sqlitepool"
)

const (
	databaseFile = "devicehub.db"
	lockFile     = "devicehub.lock"
	blobDir      = "blobs"
)

// ErrLocked is returned by Open when another process holds the data
// directory.
var ErrLocked = errors.New("store: data directory is locked by another process")

// Config holds the parameters for opening a Store.
type Config struct {
	// DataDir is the directory holding the database, the blob tree and
	// the lock file. Created if missing.
	DataDir string

	// Synchronous is passed through to the SQLite pool. Empty means
	// FULL.
	Synchronous sqlitepool.Synchronous

	// Compression selects the blob codec for new images.
	Compression blobstore.Compression

	// Logger receives load warnings and operational messages. Nil
	// discards them.
	Logger *slog.Logger
}

// Store persists registry state in SQLite and image bytes in a blob
// store. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	blobs  *blobstore.Store
	logger *slog.Logger
	lockFD int
}

// Open locks cfg.DataDir, opens (or creates) the database and the blob
// tree, and returns a ready Store.
func Open(cfg Config) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("store: DataDir is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("store: creating data directory: %w", err)
	}

	lockFD, err := lockDataDir(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:        filepath.Join(cfg.DataDir, databaseFile),
		Synchronous: cfg.Synchronous,
		Logger:      logger,
		OnConnect:   createSchema,
	})
	if err != nil {
		unix.Close(lockFD)
		return nil, fmt.Errorf("store: %w", err)
	}

	blobs, err := blobstore.Open(blobstore.Config{
		Root:        filepath.Join(cfg.DataDir, blobDir),
		Compression: cfg.Compression,
		Logger:      logger,
	})
	if err != nil {
		pool.Close()
		unix.Close(lockFD)
		return nil, fmt.Errorf("store: %w", err)
	}

	return &Store{
		pool:   pool,
		blobs:  blobs,
		logger: logger,
		lockFD: lockFD,
	}, nil
}

// lockDataDir takes a non-blocking exclusive flock on the directory's
// lock file. The lock is released when the descriptor is closed,
// including when the process dies.
func lockDataDir(dir string) (int, error) {
	path := filepath.Join(dir, lockFile)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return -1, fmt.Errorf("store: opening lock file %s: %w", path, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return -1, fmt.Errorf("%w: %s", ErrLocked, dir)
		}
		return -1, fmt.Errorf("store: locking %s: %w", path, err)
	}
	return fd, nil
}

// Close closes the database pool and releases the directory lock.
func (s *Store) Close() error {
	err := s.pool.Close()
	if closeErr := unix.Close(s.lockFD); closeErr != nil && err == nil {
		err = fmt.Errorf("store: releasing lock: %w", closeErr)
	}
	return err
}

// AppendUser inserts a new user. Users are write-once: inserting an
// id that already exists is an error.
func (s *Store) AppendUser(ctx context.Context, user device.User) error {
	err := s.pool.Transaction(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"INSERT INTO users (id, secret_hash, created_at) VALUES (?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{user.ID, user.SecretHash, user.CreatedAt.UnixNano()}})
	})
	if err != nil {
		return fmt.Errorf("store: append user %q: %w", user.ID, err)
	}
	return nil
}

// PutDomain writes the full state of a domain: its row, every
// permission and every member. Rows no longer present in domain are
// removed. The rewrite is a single transaction.
func (s *Store) PutDomain(ctx context.Context, domain device.Domain) error {
	err := s.pool.Transaction(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn,
			`INSERT INTO domains (name, owner, created_at) VALUES (?, ?, ?)
			 ON CONFLICT (name) DO UPDATE SET owner = excluded.owner`,
			&sqlitex.ExecOptions{Args: []any{domain.Name, domain.Owner, domain.CreatedAt.UnixNano()}}); err != nil {
			return err
		}

		if err := sqlitex.Execute(conn, "DELETE FROM domain_permissions WHERE domain = ?",
			&sqlitex.ExecOptions{Args: []any{domain.Name}}); err != nil {
			return err
		}
		for userID, role := range domain.Permissions {
			if err := sqlitex.Execute(conn,
				"INSERT INTO domain_permissions (domain, user_id, role) VALUES (?, ?, ?)",
				&sqlitex.ExecOptions{Args: []any{domain.Name, userID, string(role)}}); err != nil {
				return err
			}
		}

		if err := sqlitex.Execute(conn, "DELETE FROM domain_members WHERE domain = ?",
			&sqlitex.ExecOptions{Args: []any{domain.Name}}); err != nil {
			return err
		}
		for _, member := range domain.Members {
			if err := sqlitex.Execute(conn,
				"INSERT INTO domain_members (domain, user_id, device_id) VALUES (?, ?, ?)",
				&sqlitex.ExecOptions{Args: []any{domain.Name, member.User, member.Device}}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: put domain %q: %w", domain.Name, err)
	}
	return nil
}

// UpsertTelemetry replaces the latest sample for id.
func (s *Store) UpsertTelemetry(ctx context.Context, id device.Identity, sample device.Sample) error {
	err := s.pool.Transaction(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO telemetry (user_id, device_id, value, recorded_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (user_id, device_id) DO UPDATE SET
			   value = excluded.value, recorded_at = excluded.recorded_at`,
			&sqlitex.ExecOptions{Args: []any{id.User, id.Device, float64(sample.Value), sample.RecordedAt.UnixNano()}})
	})
	if err != nil {
		return fmt.Errorf("store: upsert telemetry for %s: %w", id, err)
	}
	return nil
}

// UpsertImage replaces the latest image record for id. The blob it
// names must already have been written with PutBlob.
func (s *Store) UpsertImage(ctx context.Context, id device.Identity, image device.Image) error {
	err := s.pool.Transaction(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO images (user_id, device_id, blob_ref, size, recorded_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (user_id, device_id) DO UPDATE SET
			   blob_ref = excluded.blob_ref, size = excluded.size, recorded_at = excluded.recorded_at`,
			&sqlitex.ExecOptions{Args: []any{id.User, id.Device, image.Ref, image.Size, image.RecordedAt.UnixNano()}})
	})
	if err != nil {
		return fmt.Errorf("store: upsert image for %s: %w", id, err)
	}
	return nil
}

// PutBlob stores image bytes and returns their reference.
func (s *Store) PutBlob(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref, err := s.blobs.Put(data)
	if err != nil {
		return "", fmt.Errorf("store: %w", err)
	}
	return ref.String(), nil
}

// ReadBlob returns the bytes stored under ref.
func (s *Store) ReadBlob(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := blobstore.ParseRef(ref)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	data, err := s.blobs.Get(parsed)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return data, nil
}

// DeleteBlob removes the bytes stored under ref. Deleting a missing
// blob is not an error.
func (s *Store) DeleteBlob(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parsed, err := blobstore.ParseRef(ref)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := s.blobs.Delete(parsed); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}
