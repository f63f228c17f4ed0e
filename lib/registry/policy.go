// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"

	"github.com/bureau-foundation/devicehub/lib/schema/device"
)

// ImagePolicy selects which domains grant read access to a device's
// image.
type ImagePolicy string

const (
	// PolicySharedDomain lets the actor read an image when it owns the
	// device or holds a role on any domain the device is a member of.
	PolicySharedDomain ImagePolicy = "shared-domain"

	// PolicyDefaultDomain applies the same test to the configured
	// default domain only.
	PolicyDefaultDomain ImagePolicy = "default-domain"
)

// ParseImagePolicy validates a policy name from configuration.
func ParseImagePolicy(name string) (ImagePolicy, error) {
	switch policy := ImagePolicy(name); policy {
	case PolicySharedDomain, PolicyDefaultDomain:
		return policy, nil
	default:
		return "", fmt.Errorf("unknown image read policy %q (want %q or %q)",
			name, PolicySharedDomain, PolicyDefaultDomain)
	}
}

// canReadImage decides whether actorID may read owner's image. Called
// with r.mu held.
func (r *Registry) canReadImage(actorID string, owner device.Identity) bool {
	if actorID == owner.User {
		return true
	}
	if r.imagePolicy == PolicyDefaultDomain {
		state, ok := r.domains[r.defaultDomain]
		return ok && grantsRead(state, actorID, owner)
	}
	for _, state := range r.domains {
		if grantsRead(state, actorID, owner) {
			return true
		}
	}
	return false
}

func grantsRead(state *domainState, actorID string, owner device.Identity) bool {
	if !state.hasMember(owner) {
		return false
	}
	_, held := state.Permissions[actorID]
	return held
}
