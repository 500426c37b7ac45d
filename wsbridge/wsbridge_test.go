package wsbridge_test

import (
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mostrub/perspective"
	"github.com/mostrub/perspective/engine/memengine"
	"github.com/mostrub/perspective/wsbridge"
)

func newTestRig(t *testing.T) (*httptest.Server, *perspective.Server) {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	srv := perspective.NewServer(memengine.New(), perspective.WithLogger(log))
	ts := httptest.NewServer(wsbridge.New(srv, wsbridge.WithLogger(log)))
	t.Cleanup(ts.Close)
	return ts, srv
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte(msg)); err != nil {
		t.Fatalf("write %q: %v", msg, err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(msg)
}

func TestRequestResponseRoundTrip(t *testing.T) {
	ts, _ := newTestRig(t)
	conn := dial(t, ts)

	send(t, conn, "ping")
	if got := recv(t, conn); got != "+pong" {
		t.Fatalf("reply = %q, want +pong", got)
	}
}

func TestFanOutAcrossConnections(t *testing.T) {
	ts, _ := newTestRig(t)
	subscriber := dial(t, ts)
	publisher := dial(t, ts)

	send(t, subscriber, "sub news")
	if got := recv(t, subscriber); got != "+ok sub news" {
		t.Fatalf("sub reply = %q", got)
	}

	// The publisher's pump polls right after the request, flushing the
	// buffered notification to the subscriber's connection.
	send(t, publisher, "pub news breaking story")
	if got := recv(t, publisher); got != "+ok pub news" {
		t.Fatalf("pub reply = %q", got)
	}

	if got := recv(t, subscriber); got != "!msg news breaking story" {
		t.Fatalf("notification = %q", got)
	}
}

func TestDisconnectClosesSession(t *testing.T) {
	ts, srv := newTestRig(t)
	conn := dial(t, ts)

	send(t, conn, "ping")
	if got := recv(t, conn); got != "+pong" {
		t.Fatalf("reply = %q", got)
	}
	if n := srv.ActiveSessions(); n != 1 {
		t.Fatalf("ActiveSessions = %d, want 1", n)
	}

	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for srv.ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session still registered after disconnect: %d", srv.ActiveSessions())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
