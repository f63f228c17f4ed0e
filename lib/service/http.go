// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// defaultShutdownTimeout bounds how long Serve waits for in-flight
// requests after cancellation.
const defaultShutdownTimeout = 10 * time.Second

// HTTPServer serves an http.Handler on TCP until its context is
// cancelled. The devicehub server runs the Prometheus /metrics
// endpoint on it, next to the StreamServer that carries devices.
type HTTPServer struct {
	*endpoint
	handler         http.Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Address is the TCP listen address (e.g. "127.0.0.1:9100").
	// Required.
	Address string

	// Handler serves every request. Required.
	Handler http.Handler

	// ShutdownTimeout bounds the graceful drain. Zero means ten
	// seconds.
	ShutdownTimeout time.Duration

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewHTTPServer creates a server. Call Serve to start accepting.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	switch {
	case config.Address == "":
		panic("service.HTTPServer: Address is required")
	case config.Handler == nil:
		panic("service.HTTPServer: Handler is required")
	case config.Logger == nil:
		panic("service.HTTPServer: Logger is required")
	}
	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return &HTTPServer{
		endpoint:        newEndpoint(config.Address),
		handler:         config.Handler,
		logger:          config.Logger,
		shutdownTimeout: timeout,
	}
}

// Serve binds, serves until ctx is cancelled, then stops accepting and
// gives active requests up to the shutdown timeout to finish. A serve
// failure before cancellation is returned as is.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := s.listen(ctx)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.logger.Info("http server listening", "address", s.addr.String())

	failed := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("http server on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("http server stopped", "address", s.addr.String())
	return nil
}
