/*
Package gateway holds the acceptors, the protocol manager, the
in-gateway router, and the façade that composes them.

The protocol manager owns a map from ConnectionId to that connection's
parser. It never holds a reference back to the Connection itself -
only the id, resolved through the registry at call time by whoever
invokes it.
*/
package gateway

import (
	"sync"

	"github.com/nightfall-labs/imgw/pkg/idgen"
	"github.com/nightfall-labs/imgw/protocol"
)

// Parser is the common shape every per-kind parser in the protocol
// package implements: TCPParser, WebSocketParser, HTTPParser.
type Parser interface {
	Parse(data []byte) ([]*protocol.Message, error)
	Reset()
}

// ParserFactory creates a fresh Parser for a newly-registered
// connection of the given kind.
type ParserFactory func(connID uint64, kind protocol.ConnectionKind, ids *idgen.Source) Parser

// DefaultParserFactory dispatches on kind to the three concrete
// parsers - a switch on the tag rather than any inheritance
// hierarchy.
func DefaultParserFactory(connID uint64, kind protocol.ConnectionKind, ids *idgen.Source) Parser {
	switch kind {
	case protocol.KindTCP:
		return protocol.NewTCPParser(connID, ids)
	case protocol.KindWebSocket:
		return protocol.NewWebSocketParser(connID, ids)
	case protocol.KindHTTP:
		return protocol.NewHTTPParser(connID, ids)
	default:
		return protocol.NewTCPParser(connID, ids)
	}
}

// ProtocolManager ties raw connection bytes to emitted Messages.
type ProtocolManager struct {
	ids     *idgen.Source
	factory ParserFactory

	mu      sync.Mutex
	parsers map[uint64]Parser
}

// NewProtocolManager constructs a ProtocolManager. factory may be nil,
// in which case DefaultParserFactory is used.
func NewProtocolManager(ids *idgen.Source, factory ParserFactory) *ProtocolManager {
	if factory == nil {
		factory = DefaultParserFactory
	}
	return &ProtocolManager{
		ids:     ids,
		factory: factory,
		parsers: make(map[uint64]Parser),
	}
}

// Feed appends data to connID's parser (creating it on first use) and
// returns every Message the parser was able to drain. A non-nil error
// is fatal - the caller must close the connection and call Remove.
func (m *ProtocolManager) Feed(connID uint64, kind protocol.ConnectionKind, data []byte) ([]*protocol.Message, error) {
	m.mu.Lock()
	p, ok := m.parsers[connID]
	if !ok {
		p = m.factory(connID, kind, m.ids)
		m.parsers[connID] = p
	}
	m.mu.Unlock()

	return p.Parse(data)
}

// Remove drops connID's parser entry; called when its connection
// closes.
func (m *ProtocolManager) Remove(connID uint64) {
	m.mu.Lock()
	delete(m.parsers, connID)
	m.mu.Unlock()
}
