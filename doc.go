// Package perspective implements a multiplexing session router: it fronts a
// single shared processing engine with any number of independent client
// sessions, each of which behaves like a private, stateful channel.
//
// The engine itself is opaque (see the engine package): it allocates session
// identifiers, consumes request bytes, and emits batches of response bytes
// addressed by identifier — including unsolicited output addressed to
// sessions other than the requester. The router's job is purely routing
// correctness: every response reaches the sink registered for its recipient,
// and session resources are created and torn down exactly once.
//
// Layers & Roles
//
//	Server   -> owns the engine handle and the sink registry
//	Session  -> per-connection handle; submits requests, forces polls, closes
//	Sink     -> caller-supplied SessionHandler invoked per outbound payload
//
// A caller obtains a Session from Server.NewSession, supplying the handler
// that will receive that session's responses. Requests submitted on any
// session may fan out responses to other sessions' handlers. Responses the
// engine buffers asynchronously are only released by a poll, so transports
// should schedule Session.Poll after every Session.HandleRequest.
//
// Delivery within one engine batch is in order and fail-fast: the first
// handler error aborts the remainder of the batch and is returned to the
// caller. Nothing is retried.
//
// Sessions must be closed. A Session that becomes unreachable without Close
// leaks its engine-side state; the router reports this with a single
// error-level log instead of failing, since there is nothing safe left to
// free at that point.
package perspective
