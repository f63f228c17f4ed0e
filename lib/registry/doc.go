// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry holds the shared state every device session reads
// and mutates: users, domains with their permissions and members, the
// set of device identities currently online, and the latest telemetry
// sample and image per device.
//
// Every operation is atomic with respect to every other. One mutex
// guards all state, and each mutating operation performs its
// check-then-act sequence and the store write that mirrors it inside a
// single critical section, so no interleaving of sessions can observe
// or produce an intermediate state.
//
// The one exception is secret hashing. bcrypt is deliberately slow, so
// [Registry.Authenticate] reads the stored hash under the lock and
// compares outside it. Creating a user hashes outside the lock and then
// re-checks under the lock; if another session created the same user in
// the meantime, the new secret is compared against the winner's hash
// instead.
//
// Store writes that fail are logged at ERROR and counted. The
// in-memory mutation stands and the caller still sees success: the
// server keeps serving, with memory and disk diverged until the next
// successful write of the same record.
//
// Failures a device can cause are returned as the package's sentinel
// errors and compared with errors.Is.
package registry
