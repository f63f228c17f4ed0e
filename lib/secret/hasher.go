// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the cheapest accepted bcrypt cost. Tests use it to keep
// hashing fast.
const MinCost = bcrypt.MinCost

// DefaultCost is used when no cost is configured.
const DefaultCost = bcrypt.DefaultCost

// MaxCost is the most expensive cost bcrypt supports.
const MaxCost = bcrypt.MaxCost

// Hasher hashes and verifies secrets with bcrypt at a fixed cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher for the given bcrypt cost. Zero or
// negative selects DefaultCost; values outside bcrypt's range are
// clamped.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > MaxCost {
		cost = MaxCost
	}
	return &Hasher{cost: cost}
}

// Cost returns the bcrypt cost new hashes are produced with.
func (h *Hasher) Cost() int { return h.cost }

// Hash returns the bcrypt hash of secret, suitable for storage.
// bcrypt ignores input beyond 72 bytes; longer secrets are rejected
// rather than silently truncated.
func (h *Hasher) Hash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing secret: %w", err)
	}
	return string(hash), nil
}

// Compare reports whether secret matches hash. A malformed hash never
// matches.
func (h *Hasher) Compare(hash, secret string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	return err == nil
}

// ValidateHash checks that hash is a well-formed bcrypt hash. The store
// uses it to skip corrupt user rows at load time.
func ValidateHash(hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		if errors.Is(err, bcrypt.ErrHashTooShort) {
			return fmt.Errorf("secret hash too short")
		}
		return fmt.Errorf("malformed secret hash: %w", err)
	}
	return nil
}
