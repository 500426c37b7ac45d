// Package engine defines the boundary between the session router and the
// processing engine it fronts. The engine is opaque to the router: it
// allocates session identifiers, consumes requests, and produces response
// batches addressed by identifier. Everything else — what the bytes mean,
// what state the engine keeps per session — is the engine's business.
//
// Implementations must be safe for concurrent use; the router calls every
// method from arbitrary goroutines without external synchronization.
//
// The memengine subpackage provides a self-contained in-memory reference
// implementation, and enginetest provides a scriptable fake for tests.
package engine

import (
	"context"
	"errors"
)

// ErrUnknownSession is returned by engines when an operation references an
// identifier that was never allocated or has already been released.
var ErrUnknownSession = errors.New("engine: unknown session")

// SessionID identifies one session within a single engine instance. IDs are
// allocated exclusively by the engine and must not be reused while the
// session is still live.
type SessionID uint32

// Message is one addressed response payload produced by the engine.
type Message struct {
	// SessionID names the recipient. It may differ from the session that
	// submitted the request that produced this message (fan-out).
	SessionID SessionID

	// Data is the opaque response payload.
	Data []byte
}

// Batch is an ordered sequence of messages produced by a single engine call.
// Delivery order within a batch is significant; order across batches from
// interleaved calls is not.
type Batch []Message

// Engine is the capability surface the router consumes.
type Engine interface {
	// AllocateSession creates engine-side state for a new session and
	// returns its identifier. The returned ID is unique among sessions that
	// have not yet been released.
	AllocateSession(ctx context.Context) (SessionID, error)

	// Submit processes one request on behalf of a session and returns the
	// batch of responses it produced synchronously. The batch may address
	// any live session, not just the submitter, and may be empty. Requests
	// may additionally buffer asynchronous output that is only released by
	// Drain.
	Submit(ctx context.Context, id SessionID, req []byte) (Batch, error)

	// Drain flushes output the engine has buffered outside of any direct
	// request/response pair. It returns an empty batch when nothing is
	// pending.
	Drain(ctx context.Context) (Batch, error)

	// Release frees all engine-side state held for the session. The ID is
	// invalid afterwards.
	Release(ctx context.Context, id SessionID) error
}
