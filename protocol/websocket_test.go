package protocol

import (
	"bytes"
	"testing"

	"github.com/nightfall-labs/imgw/pkg/idgen"
)

// TestWebSocketAcceptKey reproduces the RFC 6455 worked example for
// Sec-WebSocket-Accept.
func TestWebSocketAcceptKey(t *testing.T) {
	got := ComputeAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func maskFrame(opcode byte, payload []byte, key [4]byte) []byte {
	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ key[i%4]
	}
	header := []byte{0x80 | opcode, 0x80 | byte(len(payload))}
	frame := append(header, key[:]...)
	return append(frame, masked...)
}

func TestWebSocketSingleFrameEcho(t *testing.T) {
	key := [4]byte{0x11, 0x22, 0x33, 0x44}
	frame := maskFrame(OpcodeText, []byte("ping"), key)

	p := NewWebSocketParser(1, idgen.NewSource())
	msgs, err := p.Parse(frame)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	if !bytes.Equal(msgs[0].Payload, []byte("ping")) {
		t.Fatalf("expected unmasked payload %q, got %q", "ping", msgs[0].Payload)
	}
	if !msgs[0].WebSocket.FIN {
		t.Fatalf("expected FIN set")
	}
}

func TestWebSocketFragmentedMessage(t *testing.T) {
	key := [4]byte{0x00, 0x00, 0x00, 0x00}
	first := []byte{0x01, 0x80 | byte(len("hel"))} // FIN=0, opcode=text
	first = append(first, key[:]...)
	first = append(first, []byte("hel")...)

	last := []byte{0x80, 0x80 | byte(len("lo"))} // FIN=1, opcode=continuation
	last = append(last, key[:]...)
	last = append(last, []byte("lo")...)

	p := NewWebSocketParser(1, idgen.NewSource())
	var msgs []*Message
	m1, err := p.Parse(first)
	if err != nil {
		t.Fatalf("parse first fragment failed: %v", err)
	}
	msgs = append(msgs, m1...)
	if len(msgs) != 0 {
		t.Fatalf("expected no message until FIN fragment arrives")
	}
	m2, err := p.Parse(last)
	if err != nil {
		t.Fatalf("parse final fragment failed: %v", err)
	}
	msgs = append(msgs, m2...)
	if len(msgs) != 1 {
		t.Fatalf("expected one assembled message, got %d", len(msgs))
	}
	if !bytes.Equal(msgs[0].Payload, []byte("hello")) {
		t.Fatalf("expected assembled payload %q, got %q", "hello", msgs[0].Payload)
	}
}

// TestWebSocketSerializeParseRoundTrip feeds a server-built frame back
// through the parser and checks every observable field survives.
func TestWebSocketSerializeParseRoundTrip(t *testing.T) {
	frame := SerializeWebSocketFrame(OpcodeText, []byte("round trip"))

	p := NewWebSocketParser(1, idgen.NewSource())
	msgs, err := p.Parse(frame)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	got := msgs[0]
	if got.WebSocket.Opcode != OpcodeText || !got.WebSocket.FIN || got.WebSocket.Masked {
		t.Fatalf("unexpected frame metadata: %+v", got.WebSocket)
	}
	if !bytes.Equal(got.Payload, []byte("round trip")) {
		t.Fatalf("payload did not survive round trip: %q", got.Payload)
	}
}

func TestWebSocketExtendedLength(t *testing.T) {
	payload := bytes.Repeat([]byte{'a'}, 300)
	key := [4]byte{0x01, 0x02, 0x03, 0x04}
	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ key[i%4]
	}
	header := []byte{0x80 | OpcodeBinary, 0x80 | 126, 0x01, 0x2C} // 300 in 16-bit BE
	frame := append(header, key[:]...)
	frame = append(frame, masked...)

	p := NewWebSocketParser(1, idgen.NewSource())
	msgs, err := p.Parse(frame)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(msgs) != 1 || !bytes.Equal(msgs[0].Payload, payload) {
		t.Fatalf("extended-length frame not reassembled correctly")
	}
}
