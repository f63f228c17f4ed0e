// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// identitySeparator joins user and device in an identity's text form.
const identitySeparator = ":"

// Identity names one device slot: a device id scoped to the user that
// owns it. Two users may both have a device "1"; they are different
// identities.
type Identity struct {
	User   string
	Device string
}

// String returns the "user:device" form.
func (id Identity) String() string {
	return id.User + identitySeparator + id.Device
}

// Less orders identities by user, then device. Used wherever a stable
// listing order is needed (RT output, store dumps).
func (id Identity) Less(other Identity) bool {
	if id.User != other.User {
		return id.User < other.User
	}
	return id.Device < other.Device
}

// ParseIdentity parses "user:device". Both parts are validated.
func ParseIdentity(text string) (Identity, error) {
	user, deviceID, found := strings.Cut(text, identitySeparator)
	if !found {
		return Identity{}, fmt.Errorf("device identity %q: missing %q separator", text, identitySeparator)
	}
	id := Identity{User: user, Device: deviceID}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate checks both components of the identity.
func (id Identity) Validate() error {
	if err := ValidateUserID(id.User); err != nil {
		return err
	}
	return ValidateDeviceID(id.Device)
}

// ValidateUserID reports whether id can name a user. User ids are
// non-empty, contain no whitespace and no ':'.
func ValidateUserID(id string) error {
	if id == "" {
		return errors.New("user id is empty")
	}
	if strings.Contains(id, identitySeparator) {
		return fmt.Errorf("user id %q contains %q", id, identitySeparator)
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return fmt.Errorf("user id %q contains whitespace", id)
	}
	return nil
}

// ValidateDeviceID reports whether id can name a device. Device ids are
// non-empty and contain no whitespace. ':' is allowed: the identity
// text form splits on the first separator only.
func ValidateDeviceID(id string) error {
	if id == "" {
		return errors.New("device id is empty")
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return fmt.Errorf("device id %q contains whitespace", id)
	}
	return nil
}

// ValidateDomainName reports whether name can name a domain. Domain
// names travel as a single command argument, so they are non-empty and
// contain no whitespace.
func ValidateDomainName(name string) error {
	if name == "" {
		return errors.New("domain name is empty")
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("domain name %q contains whitespace", name)
	}
	return nil
}
