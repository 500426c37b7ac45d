package perspective

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/mostrub/perspective/engine"
)

// Session is the server-side representation of one client connection. Each
// client needs its own Session; the Session routes that client's requests
// into the shared engine and owns the lifetime of the engine-side resources
// tied to its identifier.
//
// A Session must be closed exactly once. Using a Session after Close, or
// closing it twice, is a programming error and panics. Discarding a Session
// without closing it leaks its engine-side resources; the router notes the
// defect with one error-level log when the handle is collected.
type Session struct {
	state   *sessionState
	cleanup runtime.Cleanup
}

// sessionState is held separately from Session so the cleanup hook can
// inspect it after the handle itself becomes unreachable.
type sessionState struct {
	id     engine.SessionID
	srv    *Server
	closed atomic.Bool
}

func newSession(srv *Server, id engine.SessionID) *Session {
	st := &sessionState{id: id, srv: srv}
	sess := &Session{state: st}
	sess.cleanup = runtime.AddCleanup(sess, func(st *sessionState) {
		if !st.closed.Load() {
			st.srv.log.Error("session discarded without Close; engine resources leak",
				"session_id", st.id)
		}
	}, st)
	return sess
}

// ID returns the engine-allocated identifier this Session is bound to.
func (s *Session) ID() engine.SessionID {
	return s.state.id
}

// HandleRequest submits one request from the client. Any responses the
// engine produces synchronously are routed to their recipients' handlers
// before HandleRequest returns — including this session's own handler, and
// including handlers of other sessions (fan-out).
//
// Requests may also cause the engine to buffer asynchronous output for other
// sessions; schedule at least one Poll after each HandleRequest so that
// output eventually reaches them.
func (s *Session) HandleRequest(ctx context.Context, req []byte) error {
	s.state.mustBeOpen("HandleRequest")
	return s.state.srv.handleRequest(ctx, s.state.id, req)
}

// Poll flushes output the engine has buffered outside of a direct
// request/response exchange. Polling is global: a Poll through any Session
// delivers pending output for every session on the same Server.
func (s *Session) Poll(ctx context.Context) error {
	s.state.mustBeOpen("Poll")
	return s.state.srv.poll(ctx)
}

// Close releases the engine-side resources bound to this Session and
// removes its handler registration. The Session is unusable afterwards.
func (s *Session) Close(ctx context.Context) error {
	if s.state.closed.Swap(true) {
		panic(fmt.Sprintf("perspective: session %d closed twice", s.state.id))
	}
	s.cleanup.Stop()
	return s.state.srv.closeSession(ctx, s.state.id)
}

func (st *sessionState) mustBeOpen(op string) {
	if st.closed.Load() {
		panic(fmt.Sprintf("perspective: %s on closed session %d", op, st.id))
	}
}
