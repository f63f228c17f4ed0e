// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Synchronous is the value of SQLite's synchronous pragma.
type Synchronous string

const (
	// SynchronousFull fsyncs the WAL at every commit, so a committed
	// registry change survives power loss.
	SynchronousFull Synchronous = "FULL"

	// SynchronousNormal survives a process crash but not power loss.
	SynchronousNormal Synchronous = "NORMAL"
)

// ParseSynchronous accepts "full" or "normal" in any case. The empty
// string selects SynchronousFull.
func ParseSynchronous(value string) (Synchronous, error) {
	switch level := Synchronous(strings.ToUpper(value)); level {
	case "":
		return SynchronousFull, nil
	case SynchronousFull, SynchronousNormal:
		return level, nil
	default:
		return "", fmt.Errorf("unknown synchronous level %q (want FULL or NORMAL)", value)
	}
}

// defaultPoolSize covers a single writer plus readers. Writers are
// serialized by SQLite no matter how many connections exist.
const defaultPoolSize = 4

// busyTimeoutMillis is how long a connection waits on a locked
// database before failing with SQLITE_BUSY.
const busyTimeoutMillis = 5000

// Config describes a pool. Only Path is required.
type Config struct {
	// Path of the database file. Its directory must already exist.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	// Synchronous defaults to SynchronousFull.
	Synchronous Synchronous

	Logger *slog.Logger

	// OnConnect runs once per connection after the pragmas, typically
	// to create the schema. Its error is returned from the Take that
	// opened the connection.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool hands out SQLite connections configured for WAL mode. The pool
// is safe for concurrent use; a borrowed connection belongs to one
// goroutine until it is Put back.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool. Connections are opened lazily by Take.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = defaultPoolSize
	}
	synchronous, err := ParseSynchronous(string(cfg.Synchronous))
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: %w", err)
	}
	pragmas := connectionPragmas(synchronous)

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
				}
			}
			if cfg.OnConnect == nil {
				return nil
			}
			if err := cfg.OnConnect(conn); err != nil {
				return fmt.Errorf("sqlitepool: preparing connection: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Debug("sqlite pool opened", "path", cfg.Path, "pool_size", size, "synchronous", string(synchronous))
	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

func connectionPragmas(synchronous Synchronous) []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=" + string(synchronous),
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis),
		"PRAGMA temp_store=MEMORY",
	}
}

// Take borrows a connection, blocking until one is free or ctx ends.
// Every successful Take must be paired with a Put.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns conn to the pool. A nil conn is ignored.
func (p *Pool) Put(conn *sqlite.Conn) {
	if conn != nil {
		p.inner.Put(conn)
	}
}

// Transaction runs fn in an IMMEDIATE transaction, which takes the
// write lock up front. A nil return commits; anything else rolls back.
func (p *Pool) Transaction(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	return p.with(ctx, sqlitex.ImmediateTransaction, fn)
}

// Read runs fn in a deferred transaction so that several SELECTs see
// the same snapshot of the database while writers continue in WAL.
func (p *Pool) Read(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	return p.with(ctx, func(conn *sqlite.Conn) (func(*error), error) {
		return sqlitex.Transaction(conn), nil
	}, fn)
}

func (p *Pool) with(ctx context.Context, begin func(*sqlite.Conn) (func(*error), error), fn func(*sqlite.Conn) error) (err error) {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)

	end, err := begin(conn)
	if err != nil {
		return fmt.Errorf("sqlitepool: begin transaction: %w", err)
	}
	defer end(&err)
	return fn(conn)
}

// Close waits for borrowed connections to come back and closes them.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("closing sqlite pool", "path", p.path, "error", err)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Debug("sqlite pool closed", "path", p.path)
	return nil
}
