package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nightfall-labs/imgw/pkg/buffer"
	"github.com/nightfall-labs/imgw/pkg/idgen"
)

var crlf = []byte("\r\n")

var (
	ErrHTTPFraming = errors.New("protocol: malformed http/1.1 start line")
)

type httpParseState int

const (
	httpStateStartLine httpParseState = iota
	httpStateHeaders
	httpStateFixedBody
	httpStateChunkSize
	httpStateChunkData
	httpStateChunkTrailer
	httpStateFatal
)

type httpBodyMode int

const (
	bodyModeNone httpBodyMode = iota
	bodyModeFixed
	bodyModeChunked
)

// HTTPParser is the resumable HTTP/1.1 parser. It handles both
// request and response framing, classifying by the position of the
// HTTP-version token in the start line.
type HTTPParser struct {
	connID uint64
	ids    *idgen.Source

	buf   *buffer.Buffer
	state httpParseState

	hdr      *HTTPHeader
	bodyMode httpBodyMode

	fixedRemaining int
	body           []byte

	chunkRemaining int
}

// NewHTTPParser constructs a parser bound to connID.
func NewHTTPParser(connID uint64, ids *idgen.Source) *HTTPParser {
	return &HTTPParser{
		connID: connID,
		ids:    ids,
		buf:    buffer.New(),
		state:  httpStateStartLine,
	}
}

// Reset returns the parser to its Initial state.
func (p *HTTPParser) Reset() {
	p.buf.RetrieveAll()
	p.state = httpStateStartLine
	p.hdr = nil
	p.bodyMode = bodyModeNone
	p.body = nil
}

// Parse appends data and drains as many complete requests/responses as
// are available.
func (p *HTTPParser) Parse(data []byte) ([]*Message, error) {
	if p.state == httpStateFatal {
		return nil, fmt.Errorf("protocol: http parser used after fatal error without reset")
	}
	p.buf.Append(data)

	var out []*Message
	for {
		switch p.state {
		case httpStateStartLine:
			line, ok := p.readLine()
			if !ok {
				return out, nil
			}
			hdr, err := parseStartLine(line)
			if err != nil {
				p.state = httpStateFatal
				return out, err
			}
			p.hdr = hdr
			p.hdr.Headers = map[string]string{}
			p.state = httpStateHeaders

		case httpStateHeaders:
			line, ok := p.readLine()
			if !ok {
				return out, nil
			}
			if len(line) == 0 {
				// Blank line terminates the header block.
				p.enterBodyState()
				continue
			}
			name, value, ok := splitHeaderLine(line)
			if ok {
				p.hdr.Headers[strings.ToLower(name)] = strings.TrimSpace(value)
			}

		case httpStateFixedBody:
			if p.buf.ReadableBytes() < p.fixedRemaining {
				return out, nil
			}
			if p.fixedRemaining > 0 {
				p.body = append(p.body, p.buf.Read(p.fixedRemaining)...)
			}
			out = append(out, p.emit())
			p.state = httpStateStartLine

		case httpStateChunkSize:
			line, ok := p.readLine()
			if !ok {
				return out, nil
			}
			size, err := strconv.ParseInt(strings.TrimSpace(strings.SplitN(string(line), ";", 2)[0]), 16, 64)
			if err != nil {
				p.state = httpStateFatal
				return out, fmt.Errorf("protocol: malformed chunk size: %w", err)
			}
			if size == 0 {
				p.state = httpStateChunkTrailer
				continue
			}
			p.chunkRemaining = int(size)
			p.state = httpStateChunkData

		case httpStateChunkData:
			// chunkRemaining bytes of data, then a trailing CRLF.
			if p.buf.ReadableBytes() < p.chunkRemaining+2 {
				return out, nil
			}
			p.body = append(p.body, p.buf.Read(p.chunkRemaining)...)
			p.buf.Retrieve(2) // trailing CRLF
			p.state = httpStateChunkSize

		case httpStateChunkTrailer:
			line, ok := p.readLine()
			if !ok {
				return out, nil
			}
			if len(line) == 0 {
				out = append(out, p.emit())
				p.state = httpStateStartLine
			}
			// Non-empty trailer header lines are consumed and discarded.
		}
	}
}

// readLine extracts the next CRLF-terminated line from the buffer
// (without the CRLF), leaving the buffer untouched if no full line is
// available yet.
func (p *HTTPParser) readLine() ([]byte, bool) {
	readable := p.buf.Peek(p.buf.ReadableBytes())
	idx := bytes.Index(readable, crlf)
	if idx < 0 {
		return nil, false
	}
	line := p.buf.Read(idx)
	p.buf.Retrieve(len(crlf))
	return line, true
}

func (p *HTTPParser) enterBodyState() {
	if v, ok := p.hdr.Headers["content-length"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			n = 0
		}
		p.bodyMode = bodyModeFixed
		p.fixedRemaining = n
		p.state = httpStateFixedBody
		return
	}
	if te, ok := p.hdr.Headers["transfer-encoding"]; ok && strings.Contains(strings.ToLower(te), "chunked") {
		p.bodyMode = bodyModeChunked
		p.state = httpStateChunkSize
		return
	}
	p.bodyMode = bodyModeNone
	p.fixedRemaining = 0
	p.state = httpStateFixedBody
}

func (p *HTTPParser) emit() *Message {
	msgID := p.ids.NextMessageID()
	kind := MsgUnrecognized
	msg := &Message{
		ID:      NewMessageID(msgID, kind, p.connID),
		ConnID:  p.connID,
		Kind:    KindHTTP,
		Payload: p.body,
		HTTP:    p.hdr,
	}
	p.hdr = nil
	p.body = nil
	return msg
}

// parseStartLine classifies a start line as request or response by the
// position of the HTTP-version token: a response starts with
// "HTTP/1.1 ..."; anything else is treated as a request line
// "METHOD URL HTTP/1.1".
func parseStartLine(line []byte) (*HTTPHeader, error) {
	fields := strings.Fields(string(line))
	if len(fields) < 2 {
		return nil, ErrHTTPFraming
	}
	if strings.HasPrefix(fields[0], "HTTP/") {
		status, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, ErrHTTPFraming
		}
		reason := ""
		if len(fields) > 2 {
			reason = strings.Join(fields[2:], " ")
		}
		return &HTTPHeader{
			IsRequest: false,
			Version:   fields[0],
			Status:    status,
			Reason:    reason,
		}, nil
	}
	if len(fields) < 3 {
		return nil, ErrHTTPFraming
	}
	return &HTTPHeader{
		IsRequest: true,
		Method:    fields[0],
		URL:       fields[1],
		Version:   fields[2],
	}, nil
}

func splitHeaderLine(line []byte) (name, value string, ok bool) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	return string(line[:idx]), string(line[idx+1:]), true
}

// SerializeHTTPResponse builds the response bytes a client of the same
// protocol would accept: status line, headers (adding Content-Length
// if absent), blank line, body.
func SerializeHTTPResponse(status int, reason string, headers map[string]string, body []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, reason)
	hasContentLength := false
	for k := range headers {
		if strings.EqualFold(k, "content-length") {
			hasContentLength = true
		}
	}
	if !hasContentLength {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	}
	for k, v := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")
	b.Write(body)
	return b.Bytes()
}
