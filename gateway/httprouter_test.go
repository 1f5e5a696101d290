package gateway

import (
	"net"
	"testing"

	"github.com/nightfall-labs/imgw/connection"
	"github.com/nightfall-labs/imgw/protocol"
)

func TestHTTPRouterDispatchesRegisteredRoute(t *testing.T) {
	h := NewHTTPRouter()
	h.Register("GET", "/status", func(_ *protocol.HTTPHeader, _ []byte, resp *HTTPResponse) {
		resp.JSON(200, map[string]bool{"ok": true})
	})

	req := &protocol.HTTPHeader{IsRequest: true, Method: "GET", URL: "/status", Version: "HTTP/1.1"}
	resp := h.dispatch(req, nil)

	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if resp.Headers["Content-Type"] != "application/json" {
		t.Fatalf("expected JSON content-type, got %v", resp.Headers)
	}
}

func TestHTTPRouterUnmatchedRouteIs404(t *testing.T) {
	h := NewHTTPRouter()
	req := &protocol.HTTPHeader{IsRequest: true, Method: "GET", URL: "/missing"}
	resp := h.dispatch(req, nil)

	if resp.Status != 404 || string(resp.Body) != "404 Not Found" {
		t.Fatalf("expected 404 Not Found, got %+v", resp)
	}
}

func TestHTTPRouterHandlerPanicIs500(t *testing.T) {
	h := NewHTTPRouter()
	h.Register("GET", "/boom", func(*protocol.HTTPHeader, []byte, *HTTPResponse) {
		panic("handler exploded")
	})

	req := &protocol.HTTPHeader{IsRequest: true, Method: "GET", URL: "/boom"}
	resp := h.dispatch(req, nil)

	if resp.Status != 500 {
		t.Fatalf("expected 500 after handler panic, got %d", resp.Status)
	}
}

func TestHTTPRouterHandleWritesResponseFrame(t *testing.T) {
	h := NewHTTPRouter()
	h.Register("GET", "/status", func(_ *protocol.HTTPHeader, _ []byte, resp *HTTPResponse) {
		resp.Status = 200
		resp.Body = []byte("ok")
	})

	server, client := net.Pipe()
	defer client.Close()
	conn := connection.New(1, protocol.KindHTTP, server, connection.Options{})
	conn.Start()
	defer conn.Close()

	msg := &protocol.Message{
		Kind: protocol.KindHTTP,
		HTTP: &protocol.HTTPHeader{IsRequest: true, Method: "GET", URL: "/status"},
	}

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 256)
		n, _ := client.Read(buf)
		if n == 0 {
			t.Errorf("expected a non-empty response frame")
		}
		close(done)
	}()
	h.Handle(msg, conn)
	<-done
}
