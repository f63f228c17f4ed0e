// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package device defines the data types shared by the devicehub
// registry, its store and the session protocol: device identities,
// domain roles, telemetry and image records, and the command verbs and
// status replies exchanged on a device connection.
//
// A device identity is the pair (user, device). Its text form is
// "user:device", the same form the RI command uses to name the device
// whose image it wants. User ids therefore may not contain ':'.
package device
