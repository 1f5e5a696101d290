/*
Acceptor servers. One per protocol kind, each binding its own
listening port and running an accept-loop / per-connection goroutine
pair, driven through the shared ProtocolManager/Router pair.
*/
package gateway

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/nightfall-labs/imgw/connection"
	"github.com/nightfall-labs/imgw/pkg/idgen"
	"github.com/nightfall-labs/imgw/protocol"
	"github.com/nightfall-labs/imgw/registry"
)

const readBufferSize = 4096

// Handshake runs before a newly accepted socket is wrapped as a
// Connection. It returns any bytes already buffered past the
// handshake's own framing, to be fed to the parser before the first
// live socket read. The TCP and HTTP acceptors use nil (no handshake);
// the WebSocket acceptor uses WebSocketHandshake.
type Handshake func(net.Conn) ([]byte, error)

// Acceptor binds one endpoint for one ConnectionKind and accepts
// sockets into the shared registry for the lifetime of the gateway.
type Acceptor struct {
	kind protocol.ConnectionKind
	addr string

	ids       *idgen.Source
	reg       *registry.Registry
	pm        *ProtocolManager
	router    *Router
	handshake Handshake

	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewAcceptor constructs an Acceptor. handshake may be nil.
func NewAcceptor(kind protocol.ConnectionKind, addr string, ids *idgen.Source, reg *registry.Registry, pm *ProtocolManager, router *Router, handshake Handshake) *Acceptor {
	return &Acceptor{
		kind:      kind,
		addr:      addr,
		ids:       ids,
		reg:       reg,
		pm:        pm,
		router:    router,
		handshake: handshake,
		quit:      make(chan struct{}),
	}
}

// Start binds the listener and launches the accept loop. Non-blocking.
func (a *Acceptor) Start() error {
	listener, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s (%s): %w", a.addr, a.kind, err)
	}
	a.listener = listener
	log.Printf("[Acceptor-%s] listening on %s", a.kind, a.addr)

	a.wg.Add(1)
	go a.acceptLoop()
	return nil
}

// Stop closes the listener, closes every live connection of this
// acceptor's kind, and waits for the accept loop and every
// connection's goroutines it spawned to finish.
func (a *Acceptor) Stop() {
	close(a.quit)
	if a.listener != nil {
		a.listener.Close()
	}
	a.reg.CloseByKind(a.kind)
	a.wg.Wait()
}

func (a *Acceptor) acceptLoop() {
	defer a.wg.Done()
	for {
		netConn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-a.quit:
				return
			default:
				log.Printf("[Acceptor-%s] accept error: %v", a.kind, err)
				continue
			}
		}
		a.wg.Add(1)
		go a.handleConn(netConn)
	}
}

func (a *Acceptor) handleConn(netConn net.Conn) {
	defer a.wg.Done()

	var leftover []byte
	if a.handshake != nil {
		buffered, err := a.handshake(netConn)
		if err != nil {
			log.Printf("[Acceptor-%s] handshake failed from %s: %v", a.kind, netConn.RemoteAddr(), err)
			netConn.Close()
			return
		}
		leftover = buffered
	}

	connID := a.ids.NextConnectionID()
	conn := connection.New(connID, a.kind, netConn, connection.Options{
		OnClose: func(c *connection.Connection) {
			a.pm.Remove(c.ID())
			a.reg.Remove(c.ID())
		},
	})

	if err := a.reg.Add(conn); err != nil {
		log.Printf("[Acceptor-%s] registry rejected connection %d: %v", a.kind, connID, err)
		netConn.Close()
		return
	}

	conn.Start()
	select {
	case <-a.quit:
		// Registered after Stop swept this kind; close it here instead.
		conn.Close()
		return
	default:
	}
	log.Printf("[Acceptor-%s] connection %d from %s", a.kind, connID, netConn.RemoteAddr())

	if len(leftover) > 0 {
		if !a.feedAndRoute(conn, connID, leftover) {
			return
		}
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := netConn.Read(buf)
		if err != nil {
			conn.Close()
			return
		}
		conn.RecordRead(n)
		if !a.feedAndRoute(conn, connID, buf[:n]) {
			return
		}
	}
}

// feedAndRoute pushes data through the protocol manager and routes any
// emitted messages. It returns false if a fatal parse error closed the
// connection, signalling the caller to stop reading.
func (a *Acceptor) feedAndRoute(conn *connection.Connection, connID uint64, data []byte) bool {
	msgs, err := a.pm.Feed(connID, a.kind, data)
	if err != nil {
		log.Printf("[Acceptor-%s] parse error on connection %d: %v", a.kind, connID, err)
		conn.Close()
		return false
	}
	for _, msg := range msgs {
		conn.RecordMessage(msg)
		a.router.Route(msg, conn)
	}
	return true
}
