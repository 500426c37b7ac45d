// Package memengine provides a self-contained in-memory engine.Engine so the
// router can run end-to-end without an external processing core. It speaks a
// minimal topic pub/sub command language over the opaque request bytes:
//
//	sub <topic>            subscribe the session; replies "+ok sub <topic>"
//	unsub <topic>          unsubscribe; replies "+ok unsub <topic>"
//	pub <topic> <payload>  replies "+ok pub <topic>" and buffers a
//	                       "!msg <topic> <payload>" notification for every
//	                       subscribed session, released only by Drain
//	ping                   replies "+pong"
//
// Anything else produces a "-err ..." reply addressed to the requester.
// Buffered notifications are the engine's asynchronous output: they reach
// recipients only when the router polls.
package memengine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/eapache/queue/v2"

	"github.com/mostrub/perspective/engine"
)

// Engine implements engine.Engine. All state is process-local; it is not
// suitable for multi-instance deployments.
type Engine struct {
	mu     sync.Mutex
	nextID engine.SessionID
	byID   map[engine.SessionID]*sessionState
}

type sessionState struct {
	subs    map[string]struct{}
	pending *queue.Queue[[]byte]
}

var _ engine.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{byID: make(map[engine.SessionID]*sessionState)}
}

func (e *Engine) AllocateSession(ctx context.Context) (engine.SessionID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.byID[id] = &sessionState{
		subs:    make(map[string]struct{}),
		pending: queue.New[[]byte](),
	}
	return id, nil
}

func (e *Engine) Submit(ctx context.Context, id engine.SessionID, req []byte) (engine.Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.byID[id]
	if !ok {
		return nil, fmt.Errorf("submit for session %d: %w", id, engine.ErrUnknownSession)
	}

	reply := func(s string) engine.Batch {
		return engine.Batch{{SessionID: id, Data: []byte(s)}}
	}

	verb, rest, _ := strings.Cut(string(req), " ")
	switch verb {
	case "ping":
		return reply("+pong"), nil

	case "sub":
		if rest == "" {
			return reply("-err sub requires a topic"), nil
		}
		st.subs[rest] = struct{}{}
		return reply("+ok sub " + rest), nil

	case "unsub":
		if rest == "" {
			return reply("-err unsub requires a topic"), nil
		}
		delete(st.subs, rest)
		return reply("+ok unsub " + rest), nil

	case "pub":
		topic, payload, ok := strings.Cut(rest, " ")
		if !ok || topic == "" {
			return reply("-err pub requires a topic and a payload"), nil
		}
		note := []byte("!msg " + topic + " " + payload)
		for _, sid := range e.sortedIDs() {
			sub := e.byID[sid]
			if _, ok := sub.subs[topic]; ok {
				sub.pending.Add(note)
			}
		}
		return reply("+ok pub " + topic), nil

	default:
		return reply("-err unknown command " + verb), nil
	}
}

func (e *Engine) Drain(ctx context.Context) (engine.Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var batch engine.Batch
	for _, id := range e.sortedIDs() {
		st := e.byID[id]
		for st.pending.Length() > 0 {
			batch = append(batch, engine.Message{SessionID: id, Data: st.pending.Remove()})
		}
	}
	return batch, nil
}

func (e *Engine) Release(ctx context.Context, id engine.SessionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byID[id]; !ok {
		return fmt.Errorf("release of session %d: %w", id, engine.ErrUnknownSession)
	}
	delete(e.byID, id)
	return nil
}

// sortedIDs keeps pending-output ordering stable across Drain calls. Callers
// must hold e.mu.
func (e *Engine) sortedIDs() []engine.SessionID {
	ids := make([]engine.SessionID, 0, len(e.byID))
	for id := range e.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
