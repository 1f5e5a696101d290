/*
Gateway is the composition root for the acceptor/protocol-manager/
router/auth stack: a flat Config struct built by the process entry
point, handed to New, producing an object that owns every other
component's lifetime.
*/
package gateway

import (
	"log"
	"time"

	"github.com/nightfall-labs/imgw/connection"
	"github.com/nightfall-labs/imgw/pkg/idgen"
	"github.com/nightfall-labs/imgw/protocol"
	"github.com/nightfall-labs/imgw/registry"
)

// Config is the gateway's external configuration surface: listen
// addresses for each wire format, connection limits, and auth settings.
type Config struct {
	TCPAddr       string
	WebSocketAddr string
	HTTPAddr      string

	MaxConnections     int
	IdleTimeoutSeconds int

	AuthEnabled         bool
	AuthSecret          string
	AuthTokenTTLSeconds int

	DebugLog bool
}

// Gateway holds the registry, the three acceptors, the protocol
// manager, the in-gateway router, and the auth collaborator, all
// constructed once and wired together here.
type Gateway struct {
	cfg Config

	ids        *idgen.Source
	reg        *registry.Registry
	pm         *ProtocolManager
	router     *Router
	httpRouter *HTTPRouter
	wsHandler  *WebSocketHandler
	auth       *Authenticator

	tcpAcceptor *Acceptor
	wsAcceptor  *Acceptor
	httpAcceptor *Acceptor
}

// New constructs a Gateway and applies config in one call; there is no
// separate "construct then configure later" step.
func New(cfg Config) *Gateway {
	ids := idgen.NewSource()

	idleTimeout := time.Duration(cfg.IdleTimeoutSeconds) * time.Second
	reg := registry.New(registry.Limits{
		MaxConnections: cfg.MaxConnections,
		IdleTimeout:    idleTimeout,
		StatsEnabled:   true,
	}, func(event string, c *connection.Connection) {
		if cfg.DebugLog {
			log.Printf("[Gateway] registry event=%s connID=%d", event, c.ID())
		}
	})

	ttl := time.Duration(cfg.AuthTokenTTLSeconds) * time.Second
	auth := NewAuthenticator([]byte(cfg.AuthSecret), ttl)

	pm := NewProtocolManager(ids, nil)
	router := NewRouter()
	httpRouter := NewHTTPRouter()
	wsHandler := NewWebSocketHandler()
	router.RegisterHTTP(httpRouter.Handle)
	router.RegisterWebSocket(wsHandler.Handle)

	g := &Gateway{
		cfg:        cfg,
		ids:        ids,
		reg:        reg,
		pm:         pm,
		router:     router,
		httpRouter: httpRouter,
		wsHandler:  wsHandler,
		auth:       auth,
	}

	g.tcpAcceptor = NewAcceptor(protocol.KindTCP, cfg.TCPAddr, ids, reg, pm, router, nil)
	g.wsAcceptor = NewAcceptor(protocol.KindWebSocket, cfg.WebSocketAddr, ids, reg, pm, router, WebSocketHandshake)
	g.httpAcceptor = NewAcceptor(protocol.KindHTTP, cfg.HTTPAddr, ids, reg, pm, router, nil)

	return g
}

// Router exposes the in-gateway dispatch table so callers can register
// message-kind handlers before Start.
func (g *Gateway) Router() *Router { return g.router }

// HTTPRoutes exposes the (method, path) route table so callers can
// register HTTP handlers before Start.
func (g *Gateway) HTTPRoutes() *HTTPRouter { return g.httpRouter }

// WebSocket exposes the WebSocket data-frame handler so callers can
// replace the default echo with application wiring before Start.
func (g *Gateway) WebSocket() *WebSocketHandler { return g.wsHandler }

// Auth exposes the auth bookkeeping collaborator.
func (g *Gateway) Auth() *Authenticator { return g.auth }

// AuthEnabled reports whether handlers should require a verified login
// before acting on a connection.
func (g *Gateway) AuthEnabled() bool { return g.cfg.AuthEnabled }

// Registry exposes the connection registry for diagnostics/metrics.
func (g *Gateway) Registry() *registry.Registry { return g.reg }

// Start wires observers into each acceptor and starts all three, plus
// the registry's cleanup timer.
func (g *Gateway) Start() error {
	g.reg.StartCleanup(30 * time.Second)

	if err := g.tcpAcceptor.Start(); err != nil {
		return err
	}
	if err := g.wsAcceptor.Start(); err != nil {
		return err
	}
	if err := g.httpAcceptor.Start(); err != nil {
		return err
	}
	log.Printf("[Gateway] started: tcp=%s ws=%s http=%s", g.cfg.TCPAddr, g.cfg.WebSocketAddr, g.cfg.HTTPAddr)
	return nil
}

// Stop sends a kick notice to every live TCP connection, stops the
// acceptors (each closes its own connections before waiting on them),
// closes any connection still registered, and stops the cleanup timer.
func (g *Gateway) Stop() {
	log.Println("[Gateway] stopping...")

	g.notifyKickAll()

	g.tcpAcceptor.Stop()
	g.wsAcceptor.Stop()
	g.httpAcceptor.Stop()

	g.reg.CloseAll()
	g.reg.StopCleanup()

	log.Println("[Gateway] stopped")
}

// notifyKickAll sends a best-effort kick/reconnect notice to every
// live TCP connection before shutdown.
func (g *Gateway) notifyKickAll() {
	for _, c := range g.reg.ByKind(protocol.KindTCP) {
		frame, err := protocol.SerializeTCP(protocol.MsgKick, []byte(`{"reason":"server_restart","reconnect":true}`))
		if err != nil {
			continue
		}
		c.Send(frame)
	}
}
