package protocol

import (
	"bytes"
	"testing"

	"github.com/nightfall-labs/imgw/pkg/idgen"
)

// TestTCPEcho round-trips a single frame through SerializeTCP and
// Parse and checks both the wire-level total_length field and the
// decoded payload/kind.
func TestTCPEcho(t *testing.T) {
	payload := []byte("hello!!")
	frame, err := SerializeTCP(7, payload)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	wantTotalLength := uint32(TCPHeaderLength + len(payload))
	if got := uint32(frame[0])<<24 | uint32(frame[1])<<16 | uint32(frame[2])<<8 | uint32(frame[3]); got != wantTotalLength {
		t.Fatalf("expected total_length=%d, got %d", wantTotalLength, got)
	}

	p := NewTCPParser(1, idgen.NewSource())
	msgs, err := p.Parse(frame)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(msgs))
	}
	if !bytes.Equal(msgs[0].Payload, payload) {
		t.Fatalf("expected payload %q, got %q", payload, msgs[0].Payload)
	}
	if msgs[0].TCP.MessageKind != 7 {
		t.Fatalf("expected kind 7, got %d", msgs[0].TCP.MessageKind)
	}
}

// TestTCPArbitraryChunking verifies that feeding the same byte stream
// in different chunk sizes yields the same sequence of messages.
func TestTCPArbitraryChunking(t *testing.T) {
	var stream []byte
	for _, payload := range [][]byte{[]byte("one"), []byte("two"), []byte("three!")} {
		frame, err := SerializeTCP(4, payload)
		if err != nil {
			t.Fatalf("serialize failed: %v", err)
		}
		stream = append(stream, frame...)
	}

	oneShot := NewTCPParser(1, idgen.NewSource())
	whole, err := oneShot.Parse(stream)
	if err != nil {
		t.Fatalf("one-shot parse failed: %v", err)
	}

	chunked := NewTCPParser(2, idgen.NewSource())
	var piecewise []*Message
	for i := 0; i < len(stream); i++ {
		msgs, err := chunked.Parse(stream[i : i+1])
		if err != nil {
			t.Fatalf("byte-at-a-time parse failed at %d: %v", i, err)
		}
		piecewise = append(piecewise, msgs...)
	}

	if len(whole) != len(piecewise) {
		t.Fatalf("expected %d messages both ways, got %d vs %d", len(whole), len(whole), len(piecewise))
	}
	for i := range whole {
		if !bytes.Equal(whole[i].Payload, piecewise[i].Payload) {
			t.Fatalf("message %d payload mismatch: %q vs %q", i, whole[i].Payload, piecewise[i].Payload)
		}
	}
}

func TestTCPFramingErrorRequiresReset(t *testing.T) {
	p := NewTCPParser(1, idgen.NewSource())
	bad := []byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00} // total_length=2 < header size
	if _, err := p.Parse(bad); err == nil {
		t.Fatalf("expected framing error")
	}
	if _, err := p.Parse([]byte{0x00}); err == nil {
		t.Fatalf("expected parser to refuse use after fatal error without reset")
	}
	p.Reset()
	frame, _ := SerializeTCP(1, []byte("ok"))
	msgs, err := p.Parse(frame)
	if err != nil {
		t.Fatalf("parse after reset failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one message after reset, got %d", len(msgs))
	}
}

func TestTCPPayloadTooLarge(t *testing.T) {
	p := NewTCPParser(1, idgen.NewSource())
	header := make([]byte, TCPHeaderLength)
	totalLength := uint32(TCPHeaderLength) + MaxTCPPayload + 1
	header[0] = byte(totalLength >> 24)
	header[1] = byte(totalLength >> 16)
	header[2] = byte(totalLength >> 8)
	header[3] = byte(totalLength)
	if _, err := p.Parse(header); err != ErrTCPPayloadTooLarge {
		t.Fatalf("expected ErrTCPPayloadTooLarge, got %v", err)
	}
}
