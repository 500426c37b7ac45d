// Package wsbridge bridges websocket connections onto router sessions: each
// accepted connection gets its own Session whose responses are written back
// as binary websocket messages. Payloads cross the socket as-is — the bridge
// imposes no framing or envelope of its own.
//
// The read loop submits every client message via Session.HandleRequest and
// then polls, so asynchronous output buffered by the engine for any session
// is flushed after each request.
package wsbridge

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mostrub/perspective"
	"github.com/mostrub/perspective/internal/logctx"
)

const defaultWriteTimeout = 10 * time.Second

// Handler is an http.Handler that upgrades requests to websocket
// connections and pumps them through a perspective.Server.
type Handler struct {
	srv          *perspective.Server
	log          *slog.Logger
	upgrader     websocket.Upgrader
	readLimit    int64
	writeTimeout time.Duration
}

var _ http.Handler = (*Handler)(nil)

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the connection lifecycle logger. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithUpgrader replaces the websocket.Upgrader, e.g. to set buffer sizes or
// an origin check policy.
func WithUpgrader(u websocket.Upgrader) Option {
	return func(h *Handler) { h.upgrader = u }
}

// WithReadLimit caps the size of inbound messages (0 = gorilla's default).
func WithReadLimit(n int64) Option {
	return func(h *Handler) { h.readLimit = n }
}

// WithWriteTimeout bounds each outbound write. Defaults to 10s.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

func New(srv *perspective.Server, opts ...Option) *Handler {
	h := &Handler{
		srv:          srv,
		log:          slog.Default(),
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.log.ErrorContext(r.Context(), "websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	// The request context is tied to ServeHTTP; the hijacked connection
	// outlives nothing here, but deliveries fanning in from other sessions
	// must not inherit its cancellation either.
	ctx := logctx.WithConnData(context.WithoutCancel(r.Context()), &logctx.ConnData{
		ConnID:     uuid.NewString(),
		RemoteAddr: r.RemoteAddr,
	})

	sink := &connSink{conn: conn, timeout: h.writeTimeout}
	sess, err := h.srv.NewSession(ctx, sink)
	if err != nil {
		h.log.ErrorContext(ctx, "session creation failed", "err", err)
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID()})
	h.log.InfoContext(ctx, "connection established")

	defer func() {
		if err := sess.Close(ctx); err != nil {
			h.log.ErrorContext(ctx, "session close failed", "err", err)
		}
		h.log.InfoContext(ctx, "connection closed")
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				h.log.ErrorContext(ctx, "read failed", "err", err)
			}
			return
		}

		if err := sess.HandleRequest(ctx, msg); err != nil {
			h.log.ErrorContext(ctx, "request failed", "err", err)
			return
		}
		if err := sess.Poll(ctx); err != nil {
			h.log.ErrorContext(ctx, "poll failed", "err", err)
			return
		}
	}
}

// connSink writes payloads back to the websocket peer. Deliveries for this
// session may arrive from other sessions' request goroutines, and gorilla
// permits only one concurrent writer, so writes are serialized.
type connSink struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

var _ perspective.SessionHandler = (*connSink)(nil)

func (s *connSink) SendResponse(ctx context.Context, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, msg)
}
