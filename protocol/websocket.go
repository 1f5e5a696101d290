package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nightfall-labs/imgw/pkg/buffer"
	"github.com/nightfall-labs/imgw/pkg/idgen"
)

// webSocketGUID is the literal magic string RFC 6455 §1.3 defines for
// computing Sec-WebSocket-Accept.
const webSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Opcodes this parser understands (RFC 6455 §5.2).
const (
	OpcodeContinuation byte = 0x0
	OpcodeText         byte = 0x1
	OpcodeBinary       byte = 0x2
	OpcodeClose        byte = 0x8
	OpcodePing         byte = 0x9
	OpcodePong         byte = 0xA
)

// ComputeAcceptKey implements the server-side handshake response:
// Base64(SHA1(client key + magic GUID)).
func ComputeAcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(webSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

var (
	ErrWebSocketFraming = errors.New("protocol: malformed websocket frame")
)

type wsParseState int

const (
	wsStateHeader wsParseState = iota
	wsStateExtendedLength
	wsStateMaskingKey
	wsStatePayload
	wsStateFatal
)

// WebSocketParser is the resumable RFC 6455 frame parser. It
// accumulates fragmented messages (continuation frames) across calls,
// only emitting a Message once a frame with FIN=1 completes the
// sequence.
type WebSocketParser struct {
	connID uint64
	ids    *idgen.Source

	buf   *buffer.Buffer
	state wsParseState

	fin            bool
	opcode         byte
	firstOpcode    byte // opcode of the first frame in a fragmented sequence
	masked         bool
	payloadLen     uint64
	pendingLenCode byte
	maskKey        [4]byte
	fragment       []byte // accumulated payload across continuation frames
}

// NewWebSocketParser constructs a parser bound to connID.
func NewWebSocketParser(connID uint64, ids *idgen.Source) *WebSocketParser {
	return &WebSocketParser{
		connID: connID,
		ids:    ids,
		buf:    buffer.New(),
		state:  wsStateHeader,
	}
}

// Reset returns the parser to its initial state.
func (p *WebSocketParser) Reset() {
	p.buf.RetrieveAll()
	p.state = wsStateHeader
	p.fragment = nil
}

// Parse appends data and drains as many complete (possibly
// multi-frame) messages as are available.
func (p *WebSocketParser) Parse(data []byte) ([]*Message, error) {
	if p.state == wsStateFatal {
		return nil, fmt.Errorf("protocol: websocket parser used after fatal error without reset")
	}
	p.buf.Append(data)

	var out []*Message
	for {
		switch p.state {
		case wsStateHeader:
			if p.buf.ReadableBytes() < 2 {
				return out, nil
			}
			head := p.buf.Read(2)
			p.fin = head[0]&0x80 != 0
			p.opcode = head[0] & 0x0F
			p.masked = head[1]&0x80 != 0
			lenCode := head[1] & 0x7F

			switch {
			case lenCode < 126:
				p.payloadLen = uint64(lenCode)
				p.state = nextAfterLength(p.masked)
			case lenCode == 126, lenCode == 127:
				p.state = wsStateExtendedLength
				p.pendingLenCode = lenCode
			}

		case wsStateExtendedLength:
			n := 2
			if p.pendingLenCode == 127 {
				n = 8
			}
			if p.buf.ReadableBytes() < n {
				return out, nil
			}
			raw := p.buf.Read(n)
			if n == 2 {
				p.payloadLen = uint64(binary.BigEndian.Uint16(raw))
			} else {
				p.payloadLen = binary.BigEndian.Uint64(raw)
			}
			p.state = nextAfterLength(p.masked)

		case wsStateMaskingKey:
			if p.buf.ReadableBytes() < 4 {
				return out, nil
			}
			copy(p.maskKey[:], p.buf.Read(4))
			p.state = wsStatePayload

		case wsStatePayload:
			if p.payloadLen > MaxTCPPayload {
				p.state = wsStateFatal
				return out, ErrWebSocketFraming
			}
			if p.buf.ReadableBytes() < int(p.payloadLen) {
				return out, nil
			}
			raw := p.buf.Read(int(p.payloadLen))
			payload := make([]byte, len(raw))
			if p.masked {
				for i, b := range raw {
					payload[i] = b ^ p.maskKey[i%4]
				}
			} else {
				copy(payload, raw)
			}

			if len(p.fragment) == 0 && p.opcode != OpcodeContinuation {
				p.firstOpcode = p.opcode
			}
			p.fragment = append(p.fragment, payload...)

			if p.fin {
				msgID := p.ids.NextMessageID()
				out = append(out, &Message{
					ID:      NewMessageID(msgID, uint16(p.firstOpcode), p.connID),
					ConnID:  p.connID,
					Kind:    KindWebSocket,
					Payload: p.fragment,
					WebSocket: &WebSocketHeader{
						FIN:    true,
						Opcode: p.firstOpcode,
						Masked: p.masked,
					},
				})
				p.fragment = nil
			}
			p.state = wsStateHeader
		}
	}
}

func nextAfterLength(masked bool) wsParseState {
	if masked {
		return wsStateMaskingKey
	}
	return wsStatePayload
}

// SerializeWebSocketFrame produces a single, unfragmented, unmasked
// server-to-client frame (servers never mask per RFC 6455 §5.1).
func SerializeWebSocketFrame(opcode byte, payload []byte) []byte {
	var header []byte
	first := byte(0x80) | (opcode & 0x0F) // FIN=1

	switch {
	case len(payload) < 126:
		header = []byte{first, byte(len(payload))}
	case len(payload) <= 0xFFFF:
		header = make([]byte, 4)
		header[0] = first
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:4], uint16(len(payload)))
	default:
		header = make([]byte, 10)
		header[0] = first
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:10], uint64(len(payload)))
	}
	return append(header, payload...)
}
