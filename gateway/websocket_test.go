package gateway

import (
	"bufio"
	"bytes"
	"net"
	"strings"
	"testing"

	"github.com/nightfall-labs/imgw/connection"
	"github.com/nightfall-labs/imgw/protocol"
)

// TestWebSocketHandshakeAcceptKey drives the full upgrade exchange over
// a pipe and checks the Sec-WebSocket-Accept value against the RFC 6455
// worked example.
func TestWebSocketHandshakeAcceptKey(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	request := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"\r\n"

	type result struct {
		leftover []byte
		err      error
	}
	done := make(chan result, 1)
	go func() {
		leftover, err := WebSocketHandshake(server)
		done <- result{leftover, err}
	}()

	if _, err := client.Write([]byte(request)); err != nil {
		t.Fatalf("write upgrade request failed: %v", err)
	}

	reader := bufio.NewReader(client)
	status, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line failed: %v", err)
	}
	if !strings.HasPrefix(status, "HTTP/1.1 101") {
		t.Fatalf("expected 101 Switching Protocols, got %q", status)
	}
	var accept string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read response headers failed: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), "sec-websocket-accept:") {
			accept = strings.TrimSpace(line[len("sec-websocket-accept:"):])
		}
	}
	if accept != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Fatalf("wrong accept key: %q", accept)
	}

	r := <-done
	if r.err != nil {
		t.Fatalf("handshake failed: %v", r.err)
	}
}

func TestWebSocketHandshakeMissingKeyRejected(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		_, err := WebSocketHandshake(server)
		done <- err
	}()

	client.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	if err := <-done; err == nil {
		t.Fatalf("expected handshake rejection without Sec-WebSocket-Key")
	}
}

func newWSConn(t *testing.T) (*connection.Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	c := connection.New(1, protocol.KindWebSocket, server, connection.Options{})
	c.Start()
	t.Cleanup(c.Close)
	return c, client
}

func wsMessage(opcode byte, payload []byte) *protocol.Message {
	return &protocol.Message{
		Kind:      protocol.KindWebSocket,
		Payload:   payload,
		WebSocket: &protocol.WebSocketHeader{FIN: true, Opcode: opcode, Masked: true},
	}
}

// TestWebSocketHandlerEchoesTextFrame drives the default data-frame
// behaviour: a text message comes back as a single text frame with the
// same payload.
func TestWebSocketHandlerEchoesTextFrame(t *testing.T) {
	h := NewWebSocketHandler()
	conn, client := newWSConn(t)

	want := protocol.SerializeWebSocketFrame(protocol.OpcodeText, []byte("ping"))
	got := make([]byte, len(want))
	done := make(chan struct{})
	go func() {
		client.Read(got)
		close(done)
	}()

	h.Handle(wsMessage(protocol.OpcodeText, []byte("ping")), conn)
	<-done

	if !bytes.Equal(got, want) {
		t.Fatalf("expected echoed frame %v, got %v", want, got)
	}
}

func TestWebSocketHandlerAnswersPingWithPong(t *testing.T) {
	h := NewWebSocketHandler()
	conn, client := newWSConn(t)

	want := protocol.SerializeWebSocketFrame(protocol.OpcodePong, []byte("hb"))
	got := make([]byte, len(want))
	done := make(chan struct{})
	go func() {
		client.Read(got)
		close(done)
	}()

	h.Handle(wsMessage(protocol.OpcodePing, []byte("hb")), conn)
	<-done

	if !bytes.Equal(got, want) {
		t.Fatalf("expected pong frame %v, got %v", want, got)
	}
}

func TestWebSocketHandlerRegisteredDataHandlerReplacesEcho(t *testing.T) {
	h := NewWebSocketHandler()
	conn, _ := newWSConn(t)

	var gotPayload []byte
	h.RegisterData(func(msg *protocol.Message, _ *connection.Connection) {
		gotPayload = msg.Payload
	})

	h.Handle(wsMessage(protocol.OpcodeBinary, []byte{0x01, 0x02}), conn)
	if !bytes.Equal(gotPayload, []byte{0x01, 0x02}) {
		t.Fatalf("expected registered data handler invoked with payload, got %v", gotPayload)
	}
}

func TestWebSocketHandlerCloseFrameClosesConnection(t *testing.T) {
	h := NewWebSocketHandler()
	conn, client := newWSConn(t)

	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()

	h.Handle(wsMessage(protocol.OpcodeClose, nil), conn)
	if conn.State() != connection.StateDisconnected {
		t.Fatalf("expected connection closed after close frame, got %v", conn.State())
	}
}
