// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Role is a user's permission level on a domain.
type Role string

const (
	// RoleOwner is granted to the creator of a domain. Owners may add
	// readers.
	RoleOwner Role = "owner"

	// RoleReader is granted by ADD. Readers may read the domain's
	// telemetry and register their own devices into it.
	RoleReader Role = "reader"
)

// ParseRole parses a stored role name.
func ParseRole(name string) (Role, error) {
	switch Role(name) {
	case RoleOwner, RoleReader:
		return Role(name), nil
	default:
		return "", fmt.Errorf("unknown role %q", name)
	}
}

// User is a registered user. SecretHash is the bcrypt hash of the
// user's shared secret; the plaintext is never stored.
type User struct {
	ID         string
	SecretHash string
	CreatedAt  time.Time
}

// Domain is a named grouping of devices with per-user permissions.
type Domain struct {
	Name        string
	Owner       string
	Permissions map[string]Role
	Members     []Identity
	CreatedAt   time.Time
}

// Sample is the last temperature reading reported by a device.
type Sample struct {
	Value      float32
	RecordedAt time.Time
}

// Image is the last image uploaded by a device. Ref names the blob in
// the blob store.
type Image struct {
	Ref        string
	Size       int64
	RecordedAt time.Time
}

// Reading pairs a device with its last sample, as returned by RT.
type Reading struct {
	Device Identity
	Value  float32
}

// SortReadings orders readings by device identity.
func SortReadings(readings []Reading) {
	sort.Slice(readings, func(i, j int) bool {
		return readings[i].Device.Less(readings[j].Device)
	})
}

// FormatValue renders a temperature with the fewest digits that
// round-trip through float32 ("21.5", not "21.500000").
func FormatValue(value float32) string {
	return strconv.FormatFloat(float64(value), 'g', -1, 32)
}

// FormatReadings renders the RT payload: one "user:device -> value"
// line per reading, each terminated by a newline.
func FormatReadings(readings []Reading) string {
	var builder strings.Builder
	for _, reading := range readings {
		builder.WriteString(reading.Device.String())
		builder.WriteString(" -> ")
		builder.WriteString(FormatValue(reading.Value))
		builder.WriteByte('\n')
	}
	return builder.String()
}
