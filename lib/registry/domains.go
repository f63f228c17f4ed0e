// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/devicehub/lib/schema/device"
)

// CreateDomain creates a domain owned by ownerID. The owner holds the
// OWNER role and no members are added.
func (r *Registry) CreateDomain(ctx context.Context, ownerID, name string) error {
	if err := device.ValidateDomainName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.domains[name]; exists {
		return ErrDomainExists
	}
	state := &domainState{
		Domain: device.Domain{
			Name:        name,
			Owner:       ownerID,
			Permissions: map[string]device.Role{ownerID: device.RoleOwner},
			CreatedAt:   r.clock.Now(),
		},
		memberSet: make(map[device.Identity]struct{}),
	}
	r.domains[name] = state

	if err := r.store.PutDomain(ctx, snapshotDomain(state)); err != nil {
		r.persistFailed("create domain", err, "domain", name)
	}
	r.logger.Info("domain created", "domain", name, "owner", ownerID)
	return nil
}

// AddReader grants targetUserID the READER role on domainName. Only the
// domain's OWNER may grant. Failures are checked in order: the domain
// exists, the actor is OWNER, the target user exists, the target holds
// no role yet.
func (r *Registry) AddReader(ctx context.Context, actorID, targetUserID, domainName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.domains[domainName]
	if !ok {
		return ErrNoSuchDomain
	}
	if state.Permissions[actorID] != device.RoleOwner {
		return ErrNotAuthorized
	}
	if _, exists := r.users[targetUserID]; !exists {
		return ErrNoSuchUser
	}
	if _, held := state.Permissions[targetUserID]; held {
		return ErrAlreadyMember
	}
	state.Permissions[targetUserID] = device.RoleReader

	if err := r.store.PutDomain(ctx, snapshotDomain(state)); err != nil {
		r.persistFailed("add reader", err, "domain", domainName, "user", targetUserID)
	}
	r.logger.Info("reader added", "domain", domainName, "user", targetUserID, "by", actorID)
	return nil
}

// JoinDomain adds the device id to domainName's members. The device's
// user must hold a role on the domain. Failures are checked in order:
// the domain exists, the user holds a role, the device is not already a
// member.
func (r *Registry) JoinDomain(ctx context.Context, id device.Identity, domainName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.domains[domainName]
	if !ok {
		return ErrNoSuchDomain
	}
	if _, held := state.Permissions[id.User]; !held {
		return ErrNotAuthorized
	}
	if state.hasMember(id) {
		return ErrAlreadyMember
	}
	state.memberSet[id] = struct{}{}
	state.Members = append(state.Members, id)

	if err := r.store.PutDomain(ctx, snapshotDomain(state)); err != nil {
		r.persistFailed("join domain", err, "domain", domainName, "device", id.String())
	}
	r.logger.Info("device joined domain", "domain", domainName, "device", id.String())
	return nil
}
