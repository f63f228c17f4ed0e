// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"wrapped eof", fmt.Errorf("reading command: %w", io.EOF), true},
		{"net closed", net.ErrClosed, true},
		{"pipe closed", io.ErrClosedPipe, true},
		{"context cancelled", context.Canceled, true},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", unix.ECONNRESET)}, true},
		{"broken pipe", &net.OpError{Op: "write", Err: os.NewSyscallError("write", unix.EPIPE)}, true},
		{"aborted", unix.ECONNABORTED, true},
		{"refused", unix.ECONNREFUSED, false},
		{"other", errors.New("disk on fire"), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsExpectedCloseError(test.err); got != test.want {
				t.Errorf("IsExpectedCloseError(%v) = %v, want %v", test.err, got, test.want)
			}
		})
	}
}

func TestIsExpectedCloseErrorOnPipe(t *testing.T) {
	client, server := net.Pipe()
	client.Close()

	buffer := make([]byte, 1)
	_, err := server.Read(buffer)
	if !IsExpectedCloseError(err) {
		t.Errorf("read after peer close: IsExpectedCloseError(%v) = false, want true", err)
	}
	server.Close()
	_, err = server.Read(buffer)
	if !IsExpectedCloseError(err) {
		t.Errorf("read after local close: IsExpectedCloseError(%v) = false, want true", err)
	}
}
