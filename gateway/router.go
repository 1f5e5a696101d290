package gateway

import (
	"log"
	"sync"

	"github.com/nightfall-labs/imgw/connection"
	"github.com/nightfall-labs/imgw/protocol"
)

// Handler processes one emitted Message against its owning
// connection. Handlers are side-effecting: they may call conn.Send,
// submit a RouteRequest to the routing service, or maintain local
// session state.
type Handler func(msg *protocol.Message, conn *connection.Connection)

// Router is the in-gateway dispatch table keyed by the TCP message
// kind tag. WebSocket and HTTP messages are routed to a single handler
// per kind since their "kind" space is the opcode / method, not the
// closed TCP application-code set.
type Router struct {
	mu       sync.RWMutex
	handlers map[uint16]Handler

	wsHandler   Handler
	httpHandler Handler
}

// NewRouter constructs an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[uint16]Handler)}
}

// Register installs handler for the given TCP message kind. A later
// call for the same kind replaces the previous handler.
func (r *Router) Register(kind uint16, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

// RegisterWebSocket installs the single handler invoked for every
// WebSocket message.
func (r *Router) RegisterWebSocket(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wsHandler = handler
}

// RegisterHTTP installs the single handler invoked for every HTTP
// request.
func (r *Router) RegisterHTTP(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.httpHandler = handler
}

// Route dispatches msg to its registered handler. A missing handler
// logs and drops the message.
func (r *Router) Route(msg *protocol.Message, conn *connection.Connection) {
	switch msg.Kind {
	case protocol.KindWebSocket:
		r.mu.RLock()
		h := r.wsHandler
		r.mu.RUnlock()
		if h == nil {
			log.Printf("[Router] no websocket handler registered, dropping message %s", msg.ID)
			return
		}
		h(msg, conn)

	case protocol.KindHTTP:
		r.mu.RLock()
		h := r.httpHandler
		r.mu.RUnlock()
		if h == nil {
			log.Printf("[Router] no http handler registered, dropping message %s", msg.ID)
			return
		}
		h(msg, conn)

	default: // protocol.KindTCP
		var kind uint16
		if msg.TCP != nil {
			kind = msg.TCP.MessageKind
		}
		r.mu.RLock()
		h, ok := r.handlers[kind]
		r.mu.RUnlock()
		if !ok {
			log.Printf("[Router] no handler registered for kind %d, dropping message %s", kind, msg.ID)
			return
		}
		h(msg, conn)
	}
}
