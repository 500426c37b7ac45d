package perspective

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mostrub/perspective/engine"
	"github.com/mostrub/perspective/internal/metrics"
)

// Server is one router instance: it owns a single engine handle and the
// registry of session handlers, and translates engine output into handler
// deliveries. Servers are safe for concurrent use; any number of sessions
// may submit, poll, and close concurrently.
//
// Servers do not share engine state with each other. Each Server is an
// isolated unit with its own engine handle and session set.
type Server struct {
	eng engine.Engine
	reg *callbackRegistry
	log *slog.Logger
	met *metrics.Metrics
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for lifecycle and routing diagnostics.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetricsRegistry enables Prometheus instrumentation, registering the
// router collectors with reg.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(s *Server) {
		if reg != nil {
			s.met = metrics.New(reg)
		}
	}
}

// NewServer constructs a router around eng.
func NewServer(eng engine.Engine, opts ...Option) *Server {
	s := &Server{
		eng: eng,
		reg: newCallbackRegistry(),
		log: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NewSession creates a Session suitable for exactly one client connection.
// The handler receives every payload the engine addresses to the new
// session; it is registered before NewSession returns, so no response
// addressed to the session can be dropped for want of registration.
//
// The returned Session must eventually be closed via Session.Close.
func (s *Server) NewSession(ctx context.Context, h SessionHandler) (*Session, error) {
	if h == nil {
		panic("perspective: NewSession with nil handler")
	}

	// The engine cannot address output to this ID before anything has been
	// submitted under it, and nothing can be submitted before this returns,
	// so allocate-then-insert does not race deliveries.
	id, err := s.eng.AllocateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate session: %w", err)
	}
	s.reg.insert(id, h)
	s.met.SessionOpened()
	s.log.DebugContext(ctx, "session created", "session_id", id)
	return newSession(s, id), nil
}

// NewSessionWithCallback is an alternative to NewSession taking a bare
// function instead of a SessionHandler implementation.
func (s *Server) NewSessionWithCallback(ctx context.Context, fn func(ctx context.Context, msg []byte) error) (*Session, error) {
	return s.NewSession(ctx, SessionHandlerFunc(fn))
}

// ActiveSessions returns the number of currently registered sessions.
func (s *Server) ActiveSessions() int {
	return s.reg.size()
}

func (s *Server) handleRequest(ctx context.Context, id engine.SessionID, req []byte) error {
	s.met.Request()
	batch, err := s.eng.Submit(ctx, id, req)
	if err != nil {
		return fmt.Errorf("engine submit: %w", err)
	}
	return s.deliver(ctx, batch)
}

func (s *Server) poll(ctx context.Context) error {
	s.met.Poll()
	batch, err := s.eng.Drain(ctx)
	if err != nil {
		return fmt.Errorf("engine drain: %w", err)
	}
	return s.deliver(ctx, batch)
}

// deliver routes one engine batch, in order, stopping at the first handler
// error. Payloads addressed to unregistered sessions are dropped; that is
// the expected outcome of a delivery racing a close.
func (s *Server) deliver(ctx context.Context, batch engine.Batch) error {
	for _, msg := range batch {
		h, ok := s.reg.lookup(msg.SessionID)
		if !ok {
			s.met.UnroutableDrop()
			s.log.DebugContext(ctx, "dropping payload for unregistered session",
				"session_id", msg.SessionID, "bytes", len(msg.Data))
			continue
		}
		start := time.Now()
		if err := h.SendResponse(ctx, msg.Data); err != nil {
			s.met.DeliveryFailed()
			return fmt.Errorf("deliver to session %d: %w", msg.SessionID, err)
		}
		s.met.Delivered(time.Since(start))
	}
	return nil
}

func (s *Server) closeSession(ctx context.Context, id engine.SessionID) error {
	err := s.eng.Release(ctx, id)
	if !s.reg.remove(id) {
		panic(fmt.Sprintf("perspective: session %d closed twice", id))
	}
	s.met.SessionClosed()
	s.log.DebugContext(ctx, "session closed", "session_id", id)
	if err != nil {
		return fmt.Errorf("engine release: %w", err)
	}
	return nil
}
