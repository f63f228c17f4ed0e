// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// disconnects are the errors a session sees when its device leaves:
// orderly close, a peer dying mid-message, our own side closing the
// socket, or shutdown cancelling the session context.
var disconnects = []error{
	io.EOF,
	io.ErrUnexpectedEOF,
	io.ErrClosedPipe,
	net.ErrClosed,
	context.Canceled,
	unix.EPIPE,
	unix.ECONNRESET,
	unix.ECONNABORTED,
}

// IsExpectedCloseError reports whether err, possibly wrapped, means the
// device went away rather than that something failed. Sessions run the
// same cleanup either way but log only real faults as errors.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range disconnects {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
