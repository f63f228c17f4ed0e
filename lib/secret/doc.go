// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret hashes and verifies user shared secrets.
//
// Secrets are stored only as bcrypt hashes. bcrypt is deliberately
// slow, so callers must not hold shared locks while calling [Hasher.Hash]
// or [Hasher.Compare]; the registry looks a hash up under its lock and
// compares outside it.
package secret
