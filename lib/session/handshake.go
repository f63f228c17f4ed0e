// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"

	"github.com/bureau-foundation/devicehub/lib/registry"
	"github.com/bureau-foundation/devicehub/lib/schema/device"
)

// authenticate reads the user id and secret and answers with the
// registry's verdict. A rejected secret or a malformed user id ends
// the session.
func (s *session) authenticate(ctx context.Context) error {
	userID, err := s.wire.ReadString()
	if err != nil {
		return err
	}
	secret, err := s.wire.ReadString()
	if err != nil {
		return err
	}

	result := s.handler.registry.Authenticate(ctx, userID, secret)
	switch result {
	case registry.AuthNew:
		err = s.wire.WriteString(device.ReplyNewUser)
	case registry.AuthOK:
		err = s.wire.WriteString(device.ReplyUser)
	default:
		s.logger.Info("authentication failed", "user", userID)
		if err := s.wire.WriteString(device.ReplyWrongPassword); err != nil {
			return err
		}
		return errRejected
	}
	if err != nil {
		return err
	}

	s.userID = userID
	s.logger = s.logger.With("user", userID)
	s.logger.Debug("authenticated", "result", result.String())
	return nil
}

// bindDevice reads device ids until one can be claimed. A taken or
// malformed id is answered with NOK-DEVID and the device may try
// another on the same connection.
func (s *session) bindDevice(ctx context.Context) error {
	for {
		deviceID, err := s.wire.ReadString()
		if err != nil {
			return err
		}

		id := device.Identity{User: s.userID, Device: deviceID}
		if err := s.handler.registry.ClaimDeviceSlot(id); err != nil {
			s.logger.Info("device id refused", "device", deviceID, "reason", err)
			if err := s.wire.WriteString(device.ReplyDeviceTaken); err != nil {
				return err
			}
			continue
		}

		// Mark bound before replying so a failed write still releases
		// the slot.
		s.device = id
		s.bound = true
		s.logger = s.logger.With("device", deviceID)
		if err := s.wire.WriteString(device.ReplyDeviceBound); err != nil {
			return err
		}
		s.logger.Info("device online")
		return nil
	}
}

// checkIntegrity reads the program name and size and consults the
// oracle. An unknown program ends the session.
func (s *session) checkIntegrity(ctx context.Context) error {
	name, err := s.wire.ReadString()
	if err != nil {
		return err
	}
	size, err := s.wire.ReadInt()
	if err != nil {
		return err
	}

	if !s.handler.oracle.Verify(name, size) {
		s.logger.Warn("device program not allowed", "program", name, "size", size)
		if err := s.wire.WriteString(device.ReplyNotTested); err != nil {
			return err
		}
		return errRejected
	}
	return s.wire.WriteString(device.ReplyTested)
}
