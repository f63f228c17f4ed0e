// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Timestamps are stored as Unix nanoseconds. Member rows carry the
// domain's membership order through their rowid, which PutDomain
// rewrites in slice order.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	secret_hash TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS domains (
	name       TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS domain_permissions (
	domain  TEXT NOT NULL,
	user_id TEXT NOT NULL,
	role    TEXT NOT NULL,
	PRIMARY KEY (domain, user_id)
);

CREATE TABLE IF NOT EXISTS domain_members (
	domain    TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	device_id TEXT NOT NULL,
	PRIMARY KEY (domain, user_id, device_id)
);

CREATE TABLE IF NOT EXISTS telemetry (
	user_id     TEXT NOT NULL,
	device_id   TEXT NOT NULL,
	value       REAL NOT NULL,
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, device_id)
);

CREATE TABLE IF NOT EXISTS images (
	user_id     TEXT NOT NULL,
	device_id   TEXT NOT NULL,
	blob_ref    TEXT NOT NULL,
	size        INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, device_id)
);
`

func createSchema(conn *sqlite.Conn) error {
	return sqlitex.ExecuteScript(conn, schemaSQL, nil)
}
