package perspective

import "context"

// SessionHandler is the capability a caller supplies when creating a Session.
// The Server invokes it once per outbound payload addressed to that session.
//
// Implementations must tolerate repeated invocation. The Server never calls
// SendResponse concurrently for payloads of a single batch, but deliveries
// for different sessions (and therefore different handlers) may run
// concurrently, and a handler shared across sessions must synchronize
// accordingly.
type SessionHandler interface {
	// SendResponse attempts delivery of one opaque payload. A returned error
	// aborts the in-flight batch and surfaces to the caller that triggered
	// the delivery.
	SendResponse(ctx context.Context, msg []byte) error
}

// SessionHandlerFunc adapts a plain function to the SessionHandler interface.
type SessionHandlerFunc func(ctx context.Context, msg []byte) error

var _ SessionHandler = (SessionHandlerFunc)(nil)

func (f SessionHandlerFunc) SendResponse(ctx context.Context, msg []byte) error {
	return f(ctx, msg)
}
