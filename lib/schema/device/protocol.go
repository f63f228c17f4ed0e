// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

// Handshake replies, in the order they can occur on a connection.
const (
	ReplyWrongPassword = "WRONG-PWD"
	ReplyNewUser       = "OK-NEW-USER"
	ReplyUser          = "OK-USER"
	ReplyDeviceTaken   = "NOK-DEVID"
	ReplyDeviceBound   = "OK-DEVID"
	ReplyTested        = "OK-TESTED"
	ReplyNotTested     = "NOK-TESTED"
)

// Command replies.
const (
	ReplyOK            = "OK"
	ReplyNOK           = "NOK"
	ReplyDomainExists  = "NOK-EXISTS"
	ReplyNoDomain      = "NODM"
	ReplyNoPermission  = "NOPERM"
	ReplyNoUser        = "NOUSER"
	ReplyAlreadyMember = "NOK-MEMBER"
	ReplyNoData        = "NODATA"
	ReplyIOError       = "NOK-IO"
	ReplyTooLarge      = "NOK-SIZE"
	ReplyInvalid       = "Invalid command"
)

// Command verbs.
const (
	VerbCreate           = "CREATE"
	VerbAdd              = "ADD"
	VerbRegisterDomain   = "RD"
	VerbSendTemperature  = "ET"
	VerbSendImage        = "EI"
	VerbReadTemperatures = "RT"
	VerbReadImage        = "RI"
)

// DefaultPort is the TCP port the server listens on when none is
// configured.
const DefaultPort = 12345
