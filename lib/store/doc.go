// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the durable backing for the devicehub registry.
//
// Structured state (users, domains with their permissions and members,
// the latest temperature sample and image record per device) lives in
// one SQLite database, devicehub.db, opened through [sqlitepool] with
// synchronous=FULL. Image bytes live beside it in a content-addressed
// [blobstore] under blobs/.
//
// The registry is the only writer. It calls [Store.Load] once at
// startup and mirrors every accepted mutation with one of the write
// methods before replying to the device. A write failure is returned
// to the registry, which logs it and keeps its in-memory state; the
// store never retries.
//
// Load is tolerant: a row that cannot be interpreted (an empty id, an
// unknown role, a member of a domain that has no domain row, an
// unparseable blob reference) is skipped with a WARN log so one bad
// row never prevents the server from starting.
//
// A data directory is owned by one process at a time. [Open] takes an
// exclusive advisory lock on devicehub.lock and fails if another
// server already holds it.
package store
