package chatservice

import (
	"context"
	"net"
	"testing"

	"github.com/nightfall-labs/imgw/connection"
	"github.com/nightfall-labs/imgw/protocol"
)

func newTestHandler() *Handler {
	return NewHandler("gw-1", nil, nil, nil, nil)
}

func newPipeConn(t *testing.T, id uint64) (*connection.Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	c := connection.New(id, protocol.KindTCP, server, connection.Options{})
	c.Start()
	t.Cleanup(c.Close)
	return c, client
}

func TestBindUnbindUser(t *testing.T) {
	h := newTestHandler()
	conn, _ := newPipeConn(t, 1)

	h.BindUser("alice", conn)
	if got := h.UserIDFor(conn); got != "alice" {
		t.Fatalf("expected alice bound, got %q", got)
	}
	if h.connFor("alice") != conn {
		t.Fatalf("expected connFor to resolve the bound connection")
	}

	h.UnbindUser("alice", conn)
	if got := h.UserIDFor(conn); got != "" {
		t.Fatalf("expected unbound connection to report empty userID, got %q", got)
	}
}

func TestUnbindUserIgnoresStaleConnection(t *testing.T) {
	h := newTestHandler()
	first, _ := newPipeConn(t, 1)
	second, _ := newPipeConn(t, 2)

	h.BindUser("alice", first)
	h.BindUser("alice", second) // reconnect replaces the binding

	h.UnbindUser("alice", first) // stale - must not clobber the new binding
	if h.connFor("alice") != second {
		t.Fatalf("expected reconnect's binding to survive a stale unbind")
	}
}

func TestConversationIDIsOrderIndependent(t *testing.T) {
	if conversationID("alice", "bob") != conversationID("bob", "alice") {
		t.Fatalf("expected conversationID to be symmetric")
	}
}

func TestDeliverLocalSendsFramedChat(t *testing.T) {
	h := newTestHandler()
	conn, client := newPipeConn(t, 1)
	h.BindUser("bob", conn)

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 256)
		n, _ := client.Read(buf)
		if n == 0 {
			t.Errorf("expected a non-empty framed chat message")
		}
		close(done)
	}()

	msg := &ChatMessage{FromUserID: "alice", ToUserID: "bob", Content: "hi", MsgType: MsgTypePrivate}
	if err := h.deliverLocal(context.Background(), "bob", msg); err != nil {
		t.Fatalf("deliverLocal failed: %v", err)
	}
	<-done
}
