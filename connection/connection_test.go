package connection

import (
	"net"
	"testing"
	"time"

	"github.com/nightfall-labs/imgw/protocol"
)

func TestStartTransitionsToConnected(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	var transitions []State
	c := New(1, protocol.KindTCP, server, Options{
		OnStateChange: func(_ *Connection, _, next State) {
			transitions = append(transitions, next)
		},
	})
	c.Start()
	defer c.Close()

	if c.State() != StateConnected {
		t.Fatalf("expected StateConnected, got %v", c.State())
	}
	if len(transitions) != 1 || transitions[0] != StateConnected {
		t.Fatalf("expected one Connected transition, got %v", transitions)
	}
}

func TestSendDeliversFIFO(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := New(1, protocol.KindTCP, server, Options{})
	c.Start()
	defer c.Close()

	if err := c.Send([]byte("first")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := c.Send([]byte("second")); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	buf := make([]byte, 5)
	if _, err := client.Read(buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != "first" {
		t.Fatalf("expected first write to arrive first, got %q", buf)
	}
	buf2 := make([]byte, 6)
	if _, err := client.Read(buf2); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf2) != "second" {
		t.Fatalf("expected second write to arrive second, got %q", buf2)
	}
}

func TestCloseInvokesOnCloseOnce(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	closed := 0
	c := New(1, protocol.KindTCP, server, Options{
		OnClose: func(*Connection) { closed++ },
	})
	c.Start()
	c.Close()
	c.Close() // idempotent

	if closed != 1 {
		t.Fatalf("expected on-close observer invoked exactly once, got %d", closed)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("expected StateDisconnected after close, got %v", c.State())
	}
}

func TestRecordMessageUpdatesStatsAndNotifies(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	var got *protocol.Message
	c := New(1, protocol.KindTCP, server, Options{
		OnMessage: func(_ *Connection, msg *protocol.Message) { got = msg },
	})
	msg := &protocol.Message{ID: "1_1_1", Payload: []byte("hi")}
	c.RecordMessage(msg)

	if got != msg {
		t.Fatalf("expected on-message observer to receive the same message")
	}
	if c.Stats().MessagesReceived != 1 {
		t.Fatalf("expected MessagesReceived=1, got %d", c.Stats().MessagesReceived)
	}
}

func TestContextRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := New(1, protocol.KindTCP, server, Options{})
	if _, ok := c.Context("missing"); ok {
		t.Fatalf("expected missing key to report ok=false")
	}
	c.SetContext("session", "abc")
	v, ok := c.Context("session")
	if !ok || v.(string) != "abc" {
		t.Fatalf("expected stored context value, got %v ok=%v", v, ok)
	}
}

func TestStatsLastActivityMonotonic(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := New(1, protocol.KindTCP, server, Options{})
	first := c.Stats().LastActivityAt
	time.Sleep(time.Millisecond)
	c.RecordRead(10)
	second := c.Stats().LastActivityAt

	if !second.After(first) && !second.Equal(first) {
		t.Fatalf("expected last-activity to advance monotonically")
	}
	if c.Stats().BytesReceived != 10 {
		t.Fatalf("expected BytesReceived=10, got %d", c.Stats().BytesReceived)
	}
}
