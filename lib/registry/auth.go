// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/devicehub/lib/schema/device"
)

// AuthResult is the outcome of Authenticate.
type AuthResult int

const (
	// AuthRejected: the user exists and the secret does not match, or
	// the user id is malformed.
	AuthRejected AuthResult = iota

	// AuthNew: the user did not exist and was created with this secret.
	AuthNew

	// AuthOK: the user exists and the secret matches.
	AuthOK
)

func (a AuthResult) String() string {
	switch a {
	case AuthNew:
		return "new"
	case AuthOK:
		return "ok"
	default:
		return "rejected"
	}
}

// Authenticate verifies secret for userID, creating the user on first
// sight. User creation is durable before AuthNew is returned, unless
// the store write fails (logged, see package doc).
func (r *Registry) Authenticate(ctx context.Context, userID, secret string) AuthResult {
	if err := device.ValidateUserID(userID); err != nil {
		return AuthRejected
	}

	if existing, found := r.lookupUser(userID); found {
		return r.compare(existing, secret)
	}

	hash, err := r.hasher.Hash(secret)
	if err != nil {
		r.logger.Warn("cannot hash secret for new user", "user", userID, "error", err)
		return AuthRejected
	}

	if winner, created := r.createUser(ctx, userID, hash); !created {
		return r.compare(winner, secret)
	}
	r.logger.Info("user registered", "user", userID)
	return AuthNew
}

func (r *Registry) lookupUser(userID string) (device.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	return user, ok
}

// createUser records a new user with hash unless a concurrent
// Authenticate created userID first, in which case that user is
// returned with created false. Hashing happens before the lock so
// bcrypt does not serialize every handshake.
func (r *Registry) createUser(ctx context.Context, userID, hash string) (device.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if winner, raced := r.users[userID]; raced {
		return winner, false
	}
	user := device.User{ID: userID, SecretHash: hash, CreatedAt: r.clock.Now()}
	r.users[userID] = user
	if err := r.store.AppendUser(ctx, user); err != nil {
		r.persistFailed("append user", err, "user", userID)
	}
	return user, true
}

func (r *Registry) compare(user device.User, secret string) AuthResult {
	if r.hasher.Compare(user.SecretHash, secret) {
		return AuthOK
	}
	return AuthRejected
}

// ClaimDeviceSlot marks id online. At most one connection may hold an
// identity; the second claimant gets ErrAlreadyOnline.
func (r *Registry) ClaimDeviceSlot(id device.Identity) error {
	if err := id.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.online[id]; taken {
		return ErrAlreadyOnline
	}
	r.online[id] = struct{}{}
	r.metrics.SetDevicesOnline(len(r.online))
	return nil
}

// ReleaseDeviceSlot marks id offline. Releasing an identity that is not
// online is a no-op.
func (r *Registry) ReleaseDeviceSlot(id device.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.online[id]; !ok {
		return
	}
	delete(r.online, id)
	r.metrics.SetDevicesOnline(len(r.online))
}

// Online reports whether id is bound to an open connection.
func (r *Registry) Online(id device.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.online[id]
	return ok
}
