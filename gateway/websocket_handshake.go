package gateway

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/nightfall-labs/imgw/protocol"
)

var errMissingWebSocketKey = errors.New("gateway: upgrade request missing Sec-WebSocket-Key")

// WebSocketHandshake performs the server-side RFC 6455 handshake:
// read the client's HTTP upgrade request line by line, compute
// Sec-WebSocket-Accept from its Sec-WebSocket-Key, and reply with a
// 101 Switching Protocols response. After this returns
// successfully, every subsequent byte on the socket is WebSocket frame
// data, handled by protocol.WebSocketParser. Any bytes the buffered
// reader pulled in past the blank line terminating the upgrade
// request (a client that pipelines its first frame right behind the
// handshake) are returned as leftover so the caller can feed them to
// the parser instead of silently dropping them.
func WebSocketHandshake(conn net.Conn) ([]byte, error) {
	reader := bufio.NewReader(conn)

	// Start line, e.g. "GET /chat HTTP/1.1".
	if _, err := reader.ReadString('\n'); err != nil {
		return nil, fmt.Errorf("gateway: reading upgrade start line: %w", err)
	}

	headers := map[string]string{}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("gateway: reading upgrade headers: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		headers[name] = value
	}

	key, ok := headers["sec-websocket-key"]
	if !ok || key == "" {
		return nil, errMissingWebSocketKey
	}

	accept := protocol.ComputeAcceptKey(key)
	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"

	if _, err := conn.Write([]byte(response)); err != nil {
		return nil, fmt.Errorf("gateway: writing upgrade response: %w", err)
	}

	leftover := make([]byte, reader.Buffered())
	if len(leftover) > 0 {
		_, _ = reader.Read(leftover)
	}
	return leftover, nil
}
