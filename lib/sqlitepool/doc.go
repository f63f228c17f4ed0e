// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite database behind the devicehub
// store.
//
// Every connection runs in WAL mode with a busy timeout, so the
// registry's writes and the startup load do not block each other. The
// synchronous level is FULL unless configured otherwise, because a
// device's OK reply promises the change is on disk.
//
// Writes go through [Pool.Transaction], which takes the write lock
// immediately:
//
//	err := pool.Transaction(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "INSERT INTO users (id) VALUES (?)",
//	        &sqlitex.ExecOptions{Args: []any{id}})
//	})
//
// Multi-table reads go through [Pool.Read] to see one consistent
// snapshot. [Pool.Take] and [Pool.Put] remain available for callers
// managing their own statements. A connection belongs to one goroutine
// between Take and Put.
package sqlitepool
