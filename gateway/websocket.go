/*
websocket.go handles parsed WebSocket messages after the upgrade:
control frames (ping, pong, close) are answered at this layer, data
frames (text, binary) go to a registrable data handler. This mirrors
HTTPRouter's position in the stack - Router.RegisterWebSocket gets one
Handler, and that handler fans out by opcode the way HTTPRouter fans
out by (method, path).
*/
package gateway

import (
	"log"
	"sync"

	"github.com/nightfall-labs/imgw/connection"
	"github.com/nightfall-labs/imgw/protocol"
)

// WebSocketDataHandler receives text and binary messages once control
// frames have been stripped off.
type WebSocketDataHandler func(msg *protocol.Message, conn *connection.Connection)

// WebSocketHandler answers control frames and forwards data frames.
// With no data handler registered it echoes, which is what a gateway
// with no application wiring should do with a client probe.
type WebSocketHandler struct {
	mu   sync.RWMutex
	data WebSocketDataHandler
}

// NewWebSocketHandler constructs a WebSocketHandler with the default
// echo behaviour for data frames.
func NewWebSocketHandler() *WebSocketHandler {
	return &WebSocketHandler{}
}

// RegisterData installs handler for text/binary messages, replacing the
// default echo.
func (h *WebSocketHandler) RegisterData(handler WebSocketDataHandler) {
	h.mu.Lock()
	h.data = handler
	h.mu.Unlock()
}

// Handle is a gateway.Handler suitable for Router.RegisterWebSocket.
func (h *WebSocketHandler) Handle(msg *protocol.Message, conn *connection.Connection) {
	if msg.WebSocket == nil {
		return
	}

	switch msg.WebSocket.Opcode {
	case protocol.OpcodePing:
		conn.Send(protocol.SerializeWebSocketFrame(protocol.OpcodePong, msg.Payload))

	case protocol.OpcodePong:
		// Reply to our own ping; activity stats are already updated.

	case protocol.OpcodeClose:
		conn.Send(protocol.SerializeWebSocketFrame(protocol.OpcodeClose, msg.Payload))
		conn.Close()

	case protocol.OpcodeText, protocol.OpcodeBinary:
		h.mu.RLock()
		data := h.data
		h.mu.RUnlock()
		if data != nil {
			data(msg, conn)
			return
		}
		conn.Send(protocol.SerializeWebSocketFrame(msg.WebSocket.Opcode, msg.Payload))

	default:
		log.Printf("[WebSocket] dropping frame with unknown opcode %#x on conn-%d", msg.WebSocket.Opcode, conn.ID())
	}
}
