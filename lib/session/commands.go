// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/bureau-foundation/devicehub/lib/registry"
	"github.com/bureau-foundation/devicehub/lib/schema/device"
	"github.com/bureau-foundation/devicehub/lib/wire"
)

// reply is the answer to one command: a status and, for successful
// RT and RI, a payload blob.
type reply struct {
	status     string
	payload    []byte
	hasPayload bool
}

func status(code string) reply { return reply{status: code} }

// command is a dispatch entry. arity counts arguments after the verb.
type command struct {
	arity int
	run   func(s *session, ctx context.Context, args []string) (reply, error)
}

var commands = map[string]command{
	device.VerbCreate:           {1, (*session).create},
	device.VerbAdd:              {2, (*session).add},
	device.VerbRegisterDomain:   {1, (*session).join},
	device.VerbSendTemperature:  {1, (*session).sendTemperature},
	device.VerbSendImage:        {1, (*session).sendImage},
	device.VerbReadTemperatures: {1, (*session).readTemperatures},
	device.VerbReadImage:        {1, (*session).readImage},
}

// serveCommands reads and answers commands until the transport fails.
// Each command gets exactly one status.
func (s *session) serveCommands(ctx context.Context) error {
	for {
		line, err := s.wire.ReadString()
		if err != nil {
			return err
		}

		fields := strings.Fields(line)
		verb := ""
		if len(fields) > 0 {
			verb = fields[0]
		}

		answer := status(device.ReplyInvalid)
		entry, known := commands[verb]
		if known && len(fields)-1 == entry.arity {
			answer, err = entry.run(s, ctx, fields[1:])
			if err != nil {
				return err
			}
		} else {
			s.logger.Debug("invalid command", "line", line)
			verb = "invalid"
		}

		if err := s.wire.WriteString(answer.status); err != nil {
			return err
		}
		if answer.hasPayload {
			if err := s.wire.WriteBlob(answer.payload); err != nil {
				return err
			}
		}
		s.handler.metrics.CommandProcessed(verb, answer.status)
	}
}

// registryReply maps a registry failure to its status code.
func registryReply(err error) reply {
	switch {
	case err == nil:
		return status(device.ReplyOK)
	case errors.Is(err, registry.ErrDomainExists):
		return status(device.ReplyDomainExists)
	case errors.Is(err, registry.ErrNoSuchDomain):
		return status(device.ReplyNoDomain)
	case errors.Is(err, registry.ErrNotAuthorized):
		return status(device.ReplyNoPermission)
	case errors.Is(err, registry.ErrNoSuchUser):
		return status(device.ReplyNoUser)
	case errors.Is(err, registry.ErrAlreadyMember):
		return status(device.ReplyAlreadyMember)
	case errors.Is(err, registry.ErrNoData):
		return status(device.ReplyNoData)
	case errors.Is(err, registry.ErrIO):
		return status(device.ReplyIOError)
	default:
		return status(device.ReplyNOK)
	}
}

func (s *session) create(ctx context.Context, args []string) (reply, error) {
	return registryReply(s.handler.registry.CreateDomain(ctx, s.userID, args[0])), nil
}

func (s *session) add(ctx context.Context, args []string) (reply, error) {
	return registryReply(s.handler.registry.AddReader(ctx, s.userID, args[0], args[1])), nil
}

func (s *session) join(ctx context.Context, args []string) (reply, error) {
	return registryReply(s.handler.registry.JoinDomain(ctx, s.device, args[0])), nil
}

func (s *session) sendTemperature(ctx context.Context, args []string) (reply, error) {
	value, err := strconv.ParseFloat(args[0], 32)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return status(device.ReplyNOK), nil
	}
	return registryReply(s.handler.registry.RecordTelemetry(ctx, s.device, float32(value))), nil
}

// sendImage reads the blob that follows the EI command. An oversized
// blob has already been drained by ReadBlob, so the stream is still
// aligned and the session continues.
func (s *session) sendImage(ctx context.Context, args []string) (reply, error) {
	blob, err := s.wire.ReadBlob(s.handler.maxImageBytes)
	if errors.Is(err, wire.ErrBlobTooLarge) {
		s.logger.Info("image rejected", "file", args[0], "limit", s.handler.maxImageBytes)
		return status(device.ReplyTooLarge), nil
	}
	if err != nil {
		return reply{}, err
	}

	image, err := s.handler.registry.RecordImage(ctx, s.device, blob)
	if err != nil {
		return registryReply(err), nil
	}
	s.logger.Debug("image recorded", "file", args[0], "size", image.Size, "ref", image.Ref)
	return status(device.ReplyOK), nil
}

func (s *session) readTemperatures(ctx context.Context, args []string) (reply, error) {
	readings, err := s.handler.registry.ReadDomainTelemetry(s.userID, args[0])
	if err != nil {
		return registryReply(err), nil
	}
	return reply{
		status:     device.ReplyOK,
		payload:    []byte(device.FormatReadings(readings)),
		hasPayload: true,
	}, nil
}

func (s *session) readImage(ctx context.Context, args []string) (reply, error) {
	owner, err := device.ParseIdentity(args[0])
	if err != nil {
		return status(device.ReplyInvalid), nil
	}
	_, data, err := s.handler.registry.ReadDeviceImage(ctx, s.userID, owner)
	if err != nil {
		return registryReply(err), nil
	}
	return reply{status: device.ReplyOK, payload: data, hasPayload: true}, nil
}
