// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/bureau-foundation/devicehub/lib/integrity"
	"github.com/bureau-foundation/devicehub/lib/metrics"
	"github.com/bureau-foundation/devicehub/lib/netutil"
	"github.com/bureau-foundation/devicehub/lib/registry"
	"github.com/bureau-foundation/devicehub/lib/schema/device"
	"github.com/bureau-foundation/devicehub/lib/wire"
)

// Session states.
const (
	StateConnected      = "connected"
	StateAuthenticating = "authenticating"
	StateDeviceBinding  = "device-binding"
	StateIntegrityCheck = "integrity-check"
	StateReady          = "ready"
	StateClosed         = "closed"
)

// Session events.
const (
	eventBegin         = "begin"
	eventAuthenticated = "authenticated"
	eventBound         = "bound"
	eventVerified      = "verified"
	eventClose         = "close"
)

// Defaults for Config limits.
const (
	DefaultMaxImageBytes   int64 = 16 << 20
	DefaultMaxCommandBytes       = 4096
)

// errRejected ends a session whose handshake the server refused. The
// refusal has already been sent to the device.
var errRejected = errors.New("handshake rejected")

// Config holds what every session shares.
type Config struct {
	// Registry is the shared state. Required.
	Registry *registry.Registry

	// Oracle checks the device program during the handshake. Required.
	Oracle integrity.Oracle

	// MaxImageBytes bounds an EI payload. Larger payloads are drained
	// and answered with NOK-SIZE. Defaults to DefaultMaxImageBytes.
	MaxImageBytes int64

	// MaxCommandBytes bounds a single string message (ids, secrets,
	// commands). Defaults to DefaultMaxCommandBytes.
	MaxCommandBytes int

	// Metrics may be nil.
	Metrics *metrics.Metrics

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Handler runs sessions. Its HandleConnection method is the
// service.StreamFunc the listener calls for every accepted connection.
type Handler struct {
	registry        *registry.Registry
	oracle          integrity.Oracle
	maxImageBytes   int64
	maxCommandBytes int
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// NewHandler validates cfg and applies defaults.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("session: Registry is required")
	}
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("session: Oracle is required")
	}
	handler := &Handler{
		registry:        cfg.Registry,
		oracle:          cfg.Oracle,
		maxImageBytes:   cfg.MaxImageBytes,
		maxCommandBytes: cfg.MaxCommandBytes,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
	}
	if handler.maxImageBytes <= 0 {
		handler.maxImageBytes = DefaultMaxImageBytes
	}
	if handler.maxCommandBytes <= 0 {
		handler.maxCommandBytes = DefaultMaxCommandBytes
	}
	if handler.logger == nil {
		handler.logger = slog.New(slog.DiscardHandler)
	}
	return handler, nil
}

// session is the per-connection state. Only the connection's goroutine
// touches it.
type session struct {
	handler *Handler
	wire    *wire.Conn
	machine *fsm.FSM
	logger  *slog.Logger

	userID string
	device device.Identity
	bound  bool
}

// HandleConnection runs one session to completion. It returns when the
// device disconnects, the handshake is refused, or ctx is cancelled.
// The connection is closed on return.
func (h *Handler) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Closing the connection unblocks a read parked in the command
	// loop when the server shuts down.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	h.metrics.SessionOpened()
	defer h.metrics.SessionClosed()

	s := &session{
		handler: h,
		wire:    wire.NewConn(conn, h.maxCommandBytes),
		logger: h.logger.With(
			"session", uuid.NewString(),
			"remote", remoteAddress(conn),
		),
	}
	s.machine = newMachine(s.logger)
	defer s.close(context.WithoutCancel(ctx))

	err := s.run(ctx)
	s.logEnd(ctx, err)
}

func newMachine(logger *slog.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StateConnected,
		fsm.Events{
			{Name: eventBegin, Src: []string{StateConnected}, Dst: StateAuthenticating},
			{Name: eventAuthenticated, Src: []string{StateAuthenticating}, Dst: StateDeviceBinding},
			{Name: eventBound, Src: []string{StateDeviceBinding}, Dst: StateIntegrityCheck},
			{Name: eventVerified, Src: []string{StateIntegrityCheck}, Dst: StateReady},
			{Name: eventClose, Src: []string{
				StateConnected, StateAuthenticating, StateDeviceBinding, StateIntegrityCheck, StateReady,
			}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, event *fsm.Event) {
				logger.Debug("session state", "from", event.Src, "to", event.Dst)
			},
		},
	)
}

// advance fires event. A refused transition means the session code
// itself is wrong, so it is returned as an error rather than ignored.
func (s *session) advance(ctx context.Context, event string) error {
	if err := s.machine.Event(ctx, event); err != nil {
		return fmt.Errorf("session: %s in state %s: %w", event, s.machine.Current(), err)
	}
	return nil
}

// run drives the session through the handshake and into the command
// loop.
func (s *session) run(ctx context.Context) error {
	steps := []struct {
		event string
		phase func(context.Context) error
	}{
		{eventBegin, s.authenticate},
		{eventAuthenticated, s.bindDevice},
		{eventBound, s.checkIntegrity},
		{eventVerified, s.serveCommands},
	}
	for _, step := range steps {
		if err := s.advance(ctx, step.event); err != nil {
			return err
		}
		if err := step.phase(ctx); err != nil {
			return err
		}
	}
	return nil
}

// close moves the machine to closed and releases the device slot. It
// runs on every exit path of HandleConnection.
func (s *session) close(ctx context.Context) {
	if s.machine.Current() != StateClosed {
		if err := s.machine.Event(ctx, eventClose); err != nil {
			s.logger.Error("session close transition failed", "error", err)
		}
	}
	if s.bound {
		s.handler.registry.ReleaseDeviceSlot(s.device)
		s.bound = false
	}
}

// logEnd classifies why the session ended. Expected disconnects are
// routine; anything else is worth an operator's attention.
func (s *session) logEnd(ctx context.Context, err error) {
	state := s.machine.Current()
	switch {
	case err == nil:
		s.logger.Info("session ended", "state", state)
	case errors.Is(err, errRejected):
		s.logger.Info("session rejected", "state", state)
	case ctx.Err() != nil:
		s.logger.Debug("session cancelled", "state", state)
	case netutil.IsExpectedCloseError(err):
		s.logger.Info("device disconnected", "state", state)
	case wire.IsProtocolError(err):
		s.logger.Warn("protocol violation, closing session", "state", state, "error", err)
	default:
		s.logger.Warn("session failed", "state", state, "error", err)
	}
}

func remoteAddress(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
