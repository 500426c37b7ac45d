package memengine

import (
	"context"
	"errors"
	"testing"

	"github.com/mostrub/perspective/engine"
)

func mustAllocate(t *testing.T, e *Engine) engine.SessionID {
	t.Helper()
	id, err := e.AllocateSession(context.Background())
	if err != nil {
		t.Fatalf("AllocateSession: %v", err)
	}
	return id
}

func submitOne(t *testing.T, e *Engine, id engine.SessionID, req string) string {
	t.Helper()
	batch, err := e.Submit(context.Background(), id, []byte(req))
	if err != nil {
		t.Fatalf("Submit(%q): %v", req, err)
	}
	if len(batch) != 1 {
		t.Fatalf("Submit(%q) batch = %v, want one reply", req, batch)
	}
	if batch[0].SessionID != id {
		t.Fatalf("Submit(%q) reply addressed to %d, want %d", req, batch[0].SessionID, id)
	}
	return string(batch[0].Data)
}

func TestPing(t *testing.T) {
	e := New()
	id := mustAllocate(t, e)
	if got := submitOne(t, e, id, "ping"); got != "+pong" {
		t.Fatalf("ping reply = %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	e := New()
	id := mustAllocate(t, e)
	if got := submitOne(t, e, id, "frobnicate"); got != "-err unknown command frobnicate" {
		t.Fatalf("reply = %q", got)
	}
}

func TestPubSubDrain(t *testing.T) {
	ctx := context.Background()
	e := New()
	a := mustAllocate(t, e)
	b := mustAllocate(t, e)
	c := mustAllocate(t, e)

	if got := submitOne(t, e, a, "sub news"); got != "+ok sub news" {
		t.Fatalf("sub reply = %q", got)
	}
	if got := submitOne(t, e, b, "sub news"); got != "+ok sub news" {
		t.Fatalf("sub reply = %q", got)
	}

	// Publishing replies synchronously; notifications only appear on Drain.
	if got := submitOne(t, e, c, "pub news hello world"); got != "+ok pub news" {
		t.Fatalf("pub reply = %q", got)
	}

	batch, err := e.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("drain batch = %v, want 2 notifications", batch)
	}
	for _, msg := range batch {
		if string(msg.Data) != "!msg news hello world" {
			t.Fatalf("notification = %q", msg.Data)
		}
	}
	if batch[0].SessionID != a || batch[1].SessionID != b {
		t.Fatalf("recipients = %d,%d, want %d,%d", batch[0].SessionID, batch[1].SessionID, a, b)
	}

	// Drained means drained.
	batch, err = e.Drain(ctx)
	if err != nil {
		t.Fatalf("second Drain: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("second drain = %v, want empty", batch)
	}
}

func TestUnsubStopsNotifications(t *testing.T) {
	ctx := context.Background()
	e := New()
	a := mustAllocate(t, e)
	b := mustAllocate(t, e)

	submitOne(t, e, a, "sub news")
	if got := submitOne(t, e, a, "unsub news"); got != "+ok unsub news" {
		t.Fatalf("unsub reply = %q", got)
	}
	submitOne(t, e, b, "pub news x")

	batch, err := e.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("drain after unsub = %v, want empty", batch)
	}
}

func TestReleaseDropsSessionState(t *testing.T) {
	ctx := context.Background()
	e := New()
	a := mustAllocate(t, e)
	b := mustAllocate(t, e)

	submitOne(t, e, a, "sub news")
	submitOne(t, e, b, "pub news x")

	if err := e.Release(ctx, a); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// Pending output for a released session is gone with it.
	batch, err := e.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("drain after release = %v, want empty", batch)
	}

	if _, err := e.Submit(ctx, a, []byte("ping")); !errors.Is(err, engine.ErrUnknownSession) {
		t.Fatalf("Submit on released session = %v, want ErrUnknownSession", err)
	}
	if err := e.Release(ctx, a); !errors.Is(err, engine.ErrUnknownSession) {
		t.Fatalf("double Release = %v, want ErrUnknownSession", err)
	}
}

func TestIDsAreNotReusedWhileLive(t *testing.T) {
	e := New()
	seen := make(map[engine.SessionID]bool)
	for i := 0; i < 100; i++ {
		id := mustAllocate(t, e)
		if seen[id] {
			t.Fatalf("id %d allocated twice", id)
		}
		seen[id] = true
	}
}

func TestMalformedCommands(t *testing.T) {
	e := New()
	id := mustAllocate(t, e)

	cases := map[string]string{
		"sub":        "-err sub requires a topic",
		"unsub":      "-err unsub requires a topic",
		"pub":        "-err pub requires a topic and a payload",
		"pub onlyme": "-err pub requires a topic and a payload",
	}
	for req, want := range cases {
		if got := submitOne(t, e, id, req); got != want {
			t.Fatalf("Submit(%q) = %q, want %q", req, got, want)
		}
	}
}
