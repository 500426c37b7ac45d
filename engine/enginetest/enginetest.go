// Package enginetest provides a scriptable in-memory engine.Engine for
// exercising router behavior in tests: response batches can be scripted per
// request, asynchronous output can be staged for Drain, and every call the
// router makes is recorded for later assertions.
package enginetest

import (
	"context"
	"sync"

	"github.com/mostrub/perspective/engine"
)

// SubmitCall records one Submit invocation.
type SubmitCall struct {
	ID  engine.SessionID
	Req []byte
}

// Engine is a fake engine.Engine. The zero value is not usable; construct
// with New. All methods are safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	nextID  engine.SessionID
	live    map[engine.SessionID]struct{}
	scripts map[string]engine.Batch
	staged  engine.Batch

	submits  []SubmitCall
	drains   int
	released []engine.SessionID

	allocErr   error
	submitErr  error
	drainErr   error
	releaseErr error

	// SubmitFunc, when set, overrides scripted responses entirely.
	SubmitFunc func(id engine.SessionID, req []byte) (engine.Batch, error)
}

var _ engine.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{
		live:    make(map[engine.SessionID]struct{}),
		scripts: make(map[string]engine.Batch),
	}
}

// Script registers the batch Submit returns for an exact request payload.
func (e *Engine) Script(req []byte, batch engine.Batch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[string(req)] = batch
}

// Stage appends messages to the buffer returned (and cleared) by the next
// Drain call.
func (e *Engine) Stage(msgs ...engine.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.staged = append(e.staged, msgs...)
}

// FailAllocate makes AllocateSession return err.
func (e *Engine) FailAllocate(err error) { e.mu.Lock(); e.allocErr = err; e.mu.Unlock() }

// FailSubmit makes Submit return err.
func (e *Engine) FailSubmit(err error) { e.mu.Lock(); e.submitErr = err; e.mu.Unlock() }

// FailDrain makes Drain return err.
func (e *Engine) FailDrain(err error) { e.mu.Lock(); e.drainErr = err; e.mu.Unlock() }

// FailRelease makes Release return err.
func (e *Engine) FailRelease(err error) { e.mu.Lock(); e.releaseErr = err; e.mu.Unlock() }

func (e *Engine) AllocateSession(ctx context.Context) (engine.SessionID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.allocErr != nil {
		return 0, e.allocErr
	}
	e.nextID++
	id := e.nextID
	e.live[id] = struct{}{}
	return id, nil
}

func (e *Engine) Submit(ctx context.Context, id engine.SessionID, req []byte) (engine.Batch, error) {
	e.mu.Lock()
	e.submits = append(e.submits, SubmitCall{ID: id, Req: append([]byte(nil), req...)})
	submitErr := e.submitErr
	_, ok := e.live[id]
	fn := e.SubmitFunc
	batch := append(engine.Batch(nil), e.scripts[string(req)]...)
	e.mu.Unlock()

	if submitErr != nil {
		return nil, submitErr
	}
	if !ok {
		return nil, engine.ErrUnknownSession
	}
	if fn != nil {
		return fn(id, req)
	}
	return batch, nil
}

func (e *Engine) Drain(ctx context.Context) (engine.Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drains++
	if e.drainErr != nil {
		return nil, e.drainErr
	}
	batch := e.staged
	e.staged = nil
	return batch, nil
}

func (e *Engine) Release(ctx context.Context, id engine.SessionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = append(e.released, id)
	if e.releaseErr != nil {
		return e.releaseErr
	}
	if _, ok := e.live[id]; !ok {
		return engine.ErrUnknownSession
	}
	delete(e.live, id)
	return nil
}

// SubmitCalls returns a copy of all recorded Submit invocations.
func (e *Engine) SubmitCalls() []SubmitCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]SubmitCall(nil), e.submits...)
}

// DrainCalls returns how many times Drain was invoked.
func (e *Engine) DrainCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drains
}

// Released returns a copy of all IDs passed to Release, in call order.
func (e *Engine) Released() []engine.SessionID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.SessionID(nil), e.released...)
}

// Live reports whether the ID is currently allocated and not released.
func (e *Engine) Live(id engine.SessionID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.live[id]
	return ok
}
