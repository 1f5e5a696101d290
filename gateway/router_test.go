package gateway

import (
	"net"
	"testing"

	"github.com/nightfall-labs/imgw/connection"
	"github.com/nightfall-labs/imgw/protocol"
)

func newTestConn(t *testing.T, kind protocol.ConnectionKind) *connection.Connection {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	return connection.New(1, kind, server, connection.Options{})
}

func TestRouterDispatchesByTCPKind(t *testing.T) {
	r := NewRouter()
	var called uint16
	r.Register(protocol.MsgChat, func(msg *protocol.Message, _ *connection.Connection) {
		called = msg.TCP.MessageKind
	})

	conn := newTestConn(t, protocol.KindTCP)
	msg := &protocol.Message{Kind: protocol.KindTCP, TCP: &protocol.TCPHeader{MessageKind: protocol.MsgChat}}
	r.Route(msg, conn)

	if called != protocol.MsgChat {
		t.Fatalf("expected chat handler invoked, got kind %d", called)
	}
}

func TestRouterMissingHandlerDropsMessage(t *testing.T) {
	r := NewRouter()
	conn := newTestConn(t, protocol.KindTCP)
	msg := &protocol.Message{Kind: protocol.KindTCP, TCP: &protocol.TCPHeader{MessageKind: protocol.MsgChat}}
	r.Route(msg, conn) // must not panic
}

func TestRouterWebSocketUsesSingleHandler(t *testing.T) {
	r := NewRouter()
	called := false
	r.RegisterWebSocket(func(*protocol.Message, *connection.Connection) { called = true })

	conn := newTestConn(t, protocol.KindWebSocket)
	r.Route(&protocol.Message{Kind: protocol.KindWebSocket}, conn)

	if !called {
		t.Fatalf("expected websocket handler invoked")
	}
}

func TestRouterHTTPUsesSingleHandler(t *testing.T) {
	r := NewRouter()
	called := false
	r.RegisterHTTP(func(*protocol.Message, *connection.Connection) { called = true })

	conn := newTestConn(t, protocol.KindHTTP)
	r.Route(&protocol.Message{Kind: protocol.KindHTTP}, conn)

	if !called {
		t.Fatalf("expected http handler invoked")
	}
}
