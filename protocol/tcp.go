package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nightfall-labs/imgw/pkg/buffer"
	"github.com/nightfall-labs/imgw/pkg/idgen"
)

// Framed-TCP wire format:
//
//	+----------------+--------------+----------+----------+--------------------+
//	| total_length   | message_kind | version  | reserved | payload            |
//	| uint32 BE      | uint16 BE    | uint8    | uint8    | total_length-8 B   |
//	+----------------+--------------+----------+----------+--------------------+
//
// total_length counts the whole frame including its own 8-byte header,
// so expected_body_length = total_length - 8.
const (
	TCPHeaderLength = 8

	// MaxTCPPayload bounds a single frame's body: a peer controlling
	// total_length must not be able to force an unbounded allocation.
	MaxTCPPayload = 1024 * 1024

	// TCPVersion is the version this package writes into every frame it
	// serializes. On receive the parser records whatever version arrives
	// without rejecting it, and the reserved byte is ignored.
	TCPVersion uint8 = 1
)

// Errors a framed-TCP parse can produce. Both are fatal to the
// connection - the caller must close it, and the only legal next call
// on the parser is Reset.
var (
	ErrTCPFraming         = errors.New("protocol: tcp frame total_length below header size")
	ErrTCPPayloadTooLarge = errors.New("protocol: tcp frame exceeds maximum payload size")
)

type tcpParseState int

const (
	tcpStateHeader tcpParseState = iota
	tcpStateBody
	tcpStateFatal
)

// TCPParser is the resumable state machine for the framed-TCP wire
// format. One instance is associated with exactly one connection for
// its whole lifetime; Parse is called once per completed socket read
// and may emit zero, one, or several Messages.
type TCPParser struct {
	connID uint64
	ids    *idgen.Source

	buf   *buffer.Buffer
	state tcpParseState

	pendingLength uint32
	pendingKind   uint16
	pendingVer    uint8
}

// NewTCPParser constructs a parser bound to connID. ids mints the
// diagnostic message id embedded in every emitted Message.
func NewTCPParser(connID uint64, ids *idgen.Source) *TCPParser {
	return &TCPParser{
		connID: connID,
		ids:    ids,
		buf:    buffer.New(),
		state:  tcpStateHeader,
	}
}

// Reset returns the parser to its initial state, discarding any
// partially-accumulated frame. This is the only legal call after Parse
// has returned a framing error.
func (p *TCPParser) Reset() {
	p.buf.RetrieveAll()
	p.state = tcpStateHeader
	p.pendingLength = 0
	p.pendingKind = 0
	p.pendingVer = 0
}

// Parse appends data to the parser's internal buffer and drains as
// many complete frames as are available, in arrival order. It never
// drops a byte silently: anything not yet forming a complete frame
// stays in the buffer for the next call.
func (p *TCPParser) Parse(data []byte) ([]*Message, error) {
	if p.state == tcpStateFatal {
		return nil, fmt.Errorf("protocol: tcp parser used after fatal error without reset")
	}
	p.buf.Append(data)

	var out []*Message
	for {
		switch p.state {
		case tcpStateHeader:
			if p.buf.ReadableBytes() < TCPHeaderLength {
				return out, nil
			}
			header := p.buf.Read(TCPHeaderLength)
			totalLength := binary.BigEndian.Uint32(header[0:4])
			if totalLength < TCPHeaderLength {
				p.state = tcpStateFatal
				return out, ErrTCPFraming
			}
			bodyLength := totalLength - TCPHeaderLength
			if bodyLength > MaxTCPPayload {
				p.state = tcpStateFatal
				return out, ErrTCPPayloadTooLarge
			}
			p.pendingLength = bodyLength
			p.pendingKind = binary.BigEndian.Uint16(header[4:6])
			p.pendingVer = header[6]
			// header[7] is the reserved byte; ignored on receive.
			p.state = tcpStateBody

		case tcpStateBody:
			if p.buf.ReadableBytes() < int(p.pendingLength) {
				return out, nil
			}
			var payload []byte
			if p.pendingLength > 0 {
				body := p.buf.Read(int(p.pendingLength))
				payload = append([]byte(nil), body...)
			}
			msgID := p.ids.NextMessageID()
			out = append(out, &Message{
				ID:      NewMessageID(msgID, p.pendingKind, p.connID),
				ConnID:  p.connID,
				Kind:    KindTCP,
				Payload: payload,
				TCP: &TCPHeader{
					TotalLength: p.pendingLength + TCPHeaderLength,
					MessageKind: p.pendingKind,
					Version:     p.pendingVer,
					Reserved:    0,
				},
			})
			p.state = tcpStateHeader
		}
	}
}

// SerializeTCP is the inverse of parsing: it produces the exact byte
// sequence a peer speaking the same framed-TCP format would accept.
func SerializeTCP(kind uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxTCPPayload {
		return nil, ErrTCPPayloadTooLarge
	}
	totalLength := uint32(TCPHeaderLength + len(payload))
	out := make([]byte, TCPHeaderLength+len(payload))
	binary.BigEndian.PutUint32(out[0:4], totalLength)
	binary.BigEndian.PutUint16(out[4:6], kind)
	out[6] = TCPVersion
	out[7] = 0
	copy(out[TCPHeaderLength:], payload)
	return out, nil
}
