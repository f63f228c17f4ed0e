// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"net"
)

// endpoint binds a TCP address and announces the result. StreamServer
// and HTTPServer embed it for their Ready and Addr methods.
type endpoint struct {
	address string

	// ready is closed once addr is set.
	ready chan struct{}
	addr  net.Addr
}

func newEndpoint(address string) *endpoint {
	return &endpoint{address: address, ready: make(chan struct{})}
}

// Ready returns a channel that is closed once the listener is bound.
func (e *endpoint) Ready() <-chan struct{} {
	return e.ready
}

// Addr returns the bound address. Only valid after Ready is closed.
// With port 0 in the configured address it carries the port the OS
// assigned.
func (e *endpoint) Addr() net.Addr {
	return e.addr
}

// listen binds the configured address and closes ready.
func (e *endpoint) listen(ctx context.Context) (net.Listener, error) {
	var listenConfig net.ListenConfig
	listener, err := listenConfig.Listen(ctx, "tcp", e.address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", e.address, err)
	}
	e.addr = listener.Addr()
	close(e.ready)
	return listener, nil
}
