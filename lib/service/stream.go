// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"
)

// StreamFunc handles one accepted connection for as long as it stays
// open. The server closes conn after StreamFunc returns. ctx is
// cancelled when the server shuts down; handlers blocked in a read
// should close conn to unblock it.
type StreamFunc func(ctx context.Context, conn net.Conn)

// StreamServer accepts TCP connections and runs a StreamFunc for each
// on its own goroutine. A panic in one handler is recovered and
// logged; it never reaches the accept loop or other connections.
type StreamServer struct {
	*endpoint
	handler StreamFunc
	logger  *slog.Logger

	// activeConnections tracks running handlers. Serve waits for all
	// of them before returning.
	activeConnections sync.WaitGroup
}

// StreamServerConfig configures a StreamServer.
type StreamServerConfig struct {
	// Address is the TCP listen address (e.g. ":12345",
	// "127.0.0.1:0"). Required.
	Address string

	// Handler runs once per accepted connection. Required.
	Handler StreamFunc

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewStreamServer creates a server. Call Serve to start accepting.
func NewStreamServer(config StreamServerConfig) *StreamServer {
	if config.Address == "" {
		panic("service.StreamServer: Address is required")
	}
	if config.Handler == nil {
		panic("service.StreamServer: Handler is required")
	}
	if config.Logger == nil {
		panic("service.StreamServer: Logger is required")
	}
	return &StreamServer{
		endpoint: newEndpoint(config.Address),
		handler:  config.Handler,
		logger:   config.Logger,
	}
}

// maxAcceptBackoff caps the sleep between failed accepts.
const maxAcceptBackoff = time.Second

// Serve accepts connections until ctx is cancelled, then closes the
// listener and waits for active handlers to return. Handlers see the
// same ctx and are expected to wind down when it is cancelled.
func (s *StreamServer) Serve(ctx context.Context) error {
	listener, err := s.listen(ctx)
	if err != nil {
		return err
	}
	defer listener.Close()

	// Unblock Accept when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("stream server listening", "address", s.addr.String())

	var backoff time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			// Typically EMFILE or ECONNABORTED. Back off so a
			// persistent failure does not spin.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			s.logger.Error("accept failed", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	s.logger.Info("stream server stopped", "address", s.addr.String())
	return nil
}

// handleConnection runs the handler with panic containment and always
// closes conn.
func (s *StreamServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("connection handler panicked",
				"remote", conn.RemoteAddr().String(),
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
		}
	}()
	s.handler(ctx, conn)
}
