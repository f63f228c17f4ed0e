// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import "github.com/bureau-foundation/devicehub/lib/schema/device"

func (r *Registry) userExists(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[userID]
	return ok
}

func (r *Registry) domainCopy(name string) (device.Domain, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.domains[name]
	if !ok {
		return device.Domain{}, false
	}
	return snapshotDomain(state), true
}
