/*
Gateway process entry point.

=== Startup sequence ===

1. Parse flags
2. Dial Redis
3. Construct the chat services (session, pub/sub, sequence, offline)
4. Construct the gateway façade and register message-kind handlers
5. Start Pub/Sub subscription
6. Start the gateway's three acceptors
7. Wait for a shutdown signal
8. Stop everything in reverse order
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nightfall-labs/imgw/chatservice"
	"github.com/nightfall-labs/imgw/connection"
	"github.com/nightfall-labs/imgw/gateway"
	"github.com/nightfall-labs/imgw/pkg/redis"
	"github.com/nightfall-labs/imgw/protocol"
	"github.com/nightfall-labs/imgw/routing"
	goredis "github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// chatRoutePriority is the work-queue priority chat traffic is
// submitted at; system/control traffic would go higher.
const chatRoutePriority = 1

// Config is the gateway process's command-line configuration.
type Config struct {
	GatewayID string

	TCPAddr       string
	WebSocketAddr string
	HTTPAddr      string

	MaxConnections     int
	IdleTimeoutSeconds int

	AuthEnabled         bool
	AuthSecret          string
	AuthTokenTTLSeconds int

	RedisAddr string

	// RoutingAddr is the routing service's gRPC endpoint. Empty means
	// standalone: chat is handled in-process without consulting the
	// routing service for instance selection.
	RoutingAddr   string
	TargetService string

	DebugLog bool
}

// App holds every component this process owns.
type App struct {
	config *Config

	redisClient *goredis.Client
	gw          *gateway.Gateway

	routeConn   *grpc.ClientConn
	routeClient *routing.Client

	session  *chatservice.SessionManager
	pubsub   *chatservice.PubSubManager
	sequence *chatservice.SequenceManager
	offline  *chatservice.OfflineManager
	chat     *chatservice.Handler
}

// NewApp constructs an App from config.
func NewApp(config *Config) *App {
	return &App{config: config}
}

// Initialize wires Redis, the chat services, and the gateway façade
// together. Order matters: Redis -> chat services -> gateway -> router
// wiring.
func (a *App) Initialize() error {
	client, err := redis.Open(redis.Config{Addr: a.config.RedisAddr, PoolSize: 100})
	if err != nil {
		return err
	}
	a.redisClient = client

	a.session = chatservice.NewSessionManager(client, a.config.GatewayID)
	a.pubsub = chatservice.NewPubSubManager(client, a.config.GatewayID)
	a.sequence = chatservice.NewSequenceManager(client)
	a.offline = chatservice.NewOfflineManager(client)
	a.chat = chatservice.NewHandler(a.config.GatewayID, a.session, a.pubsub, a.sequence, a.offline)

	a.gw = gateway.New(gateway.Config{
		TCPAddr:             a.config.TCPAddr,
		WebSocketAddr:       a.config.WebSocketAddr,
		HTTPAddr:            a.config.HTTPAddr,
		MaxConnections:      a.config.MaxConnections,
		IdleTimeoutSeconds:  a.config.IdleTimeoutSeconds,
		AuthEnabled:         a.config.AuthEnabled,
		AuthSecret:          a.config.AuthSecret,
		AuthTokenTTLSeconds: a.config.AuthTokenTTLSeconds,
		DebugLog:            a.config.DebugLog,
	})

	if a.config.RoutingAddr != "" {
		conn, err := grpc.NewClient(a.config.RoutingAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("dial routing service: %w", err)
		}
		a.routeConn = conn
		a.routeClient = routing.NewClient(conn)
	}

	a.registerHandlers()
	a.registerHTTPRoutes()

	return nil
}

// Start begins Pub/Sub fan-in and the gateway's acceptors. Pub/Sub
// must be running before the acceptors so cross-gateway messages
// aren't missed.
func (a *App) Start() error {
	handlePubSub := func(msg *chatservice.ChatMessage) {
		a.chat.HandlePubSubMessage(context.Background(), msg)
	}
	if err := a.pubsub.Start(context.Background(), handlePubSub); err != nil {
		return err
	}
	return a.gw.Start()
}

// Stop shuts components down in reverse order: gateway, Pub/Sub, Redis.
func (a *App) Stop() {
	log.Println("[App] stopping application...")
	a.gw.Stop()
	a.pubsub.Stop()
	if a.routeConn != nil {
		a.routeConn.Close()
	}
	a.redisClient.Close()
	log.Println("[App] application stopped")
}

// registerHandlers installs one Handler per client-to-server TCP
// message kind.
func (a *App) registerHandlers() {
	r := a.gw.Router()
	r.Register(protocol.MsgHeartbeat, a.handleHeartbeat)
	r.Register(protocol.MsgLoginRequest, a.handleLogin)
	r.Register(protocol.MsgLogout, a.handleLogout)
	r.Register(protocol.MsgChat, a.handleChat)
	r.Register(protocol.MsgAck, a.handleAck)
}

// registerHTTPRoutes installs the gateway's HTTP surface: a plain
// liveness/status probe.
func (a *App) registerHTTPRoutes() {
	a.gw.HTTPRoutes().Register("GET", "/status", func(req *protocol.HTTPHeader, body []byte, resp *gateway.HTTPResponse) {
		resp.JSON(200, map[string]interface{}{
			"gateway_id":  a.config.GatewayID,
			"connections": a.gw.Registry().Count(),
		})
	})
}

// ==================== Auth ====================

func (a *App) handleLogin(msg *protocol.Message, conn *connection.Connection) {
	var req struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		a.sendLoginResponse(conn, false, "invalid request")
		return
	}

	userID := req.UserID
	if a.gw.AuthEnabled() {
		claims, err := a.gw.Auth().Verify(req.Token)
		if err != nil {
			a.sendLoginResponse(conn, false, err.Error())
			return
		}
		userID = claims.UserID
	}
	if userID == "" {
		a.sendLoginResponse(conn, false, "missing user_id")
		return
	}

	a.chat.BindUser(userID, conn)

	ctx := context.Background()
	if err := a.session.Login(ctx, userID, conn); err != nil {
		log.Printf("[App] failed to create session for %s: %v", userID, err)
	}

	a.sendLoginResponse(conn, true, userID)

	go a.chat.DeliverOfflineMessages(context.Background(), userID, conn)

	log.Printf("[App] user %s authenticated on conn-%d", userID, conn.ID())
}

func (a *App) sendLoginResponse(conn *connection.Connection, success bool, message string) {
	data, _ := json.Marshal(map[string]interface{}{
		"success": success,
		"message": message,
	})
	frame, err := protocol.SerializeTCP(protocol.MsgLoginResponse, data)
	if err != nil {
		return
	}
	conn.Send(frame)
}

func (a *App) handleLogout(msg *protocol.Message, conn *connection.Connection) {
	userID := a.chat.UserIDFor(conn)
	if userID == "" {
		return
	}
	a.chat.UnbindUser(userID, conn)
	if err := a.session.Logout(context.Background(), userID); err != nil {
		log.Printf("[App] failed to remove session for %s: %v", userID, err)
	}
}

func (a *App) handleHeartbeat(msg *protocol.Message, conn *connection.Connection) {
	userID := a.chat.UserIDFor(conn)
	if userID == "" {
		return
	}
	if err := a.session.Heartbeat(context.Background(), userID); err != nil {
		log.Printf("[App] heartbeat refresh failed for %s: %v", userID, err)
	}
}

// ==================== Chat ====================

func (a *App) handleChat(msg *protocol.Message, conn *connection.Connection) {
	userID := a.chat.UserIDFor(conn)
	if userID == "" {
		log.Printf("[App] unauthenticated chat message from conn-%d", conn.ID())
		return
	}

	var req struct {
		ToUserID string `json:"to_user_id"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Printf("[App] invalid chat payload: %v", err)
		return
	}

	if !a.routeMessage(msg, conn) {
		return
	}

	if err := a.chat.SendPrivateMessage(context.Background(), userID, req.ToUserID, []byte(req.Content)); err != nil {
		log.Printf("[App] failed to send message: %v", err)
	}
}

// routeMessage submits msg to the routing service for instance
// selection and admission, reporting whether processing should
// continue. With no routing service configured every message is
// admitted locally. A rejected message is answered with MsgError
// carrying the routing error, so the client knows delivery never
// started rather than silently losing the send.
func (a *App) routeMessage(msg *protocol.Message, conn *connection.Connection) bool {
	if a.routeClient == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := a.routeClient.RouteMessage(ctx, &routing.RouteRequest{
		MessageID:     msg.ID,
		TargetService: a.config.TargetService,
		Payload:       msg.Payload,
		Priority:      chatRoutePriority,
	})
	if err != nil {
		log.Printf("[App] routing service unreachable, admitting %s locally: %v", msg.ID, err)
		return true
	}
	if !resp.Accepted {
		log.Printf("[App] routing rejected %s: %s", msg.ID, resp.ErrorMessage)
		data, _ := json.Marshal(map[string]string{"error": resp.ErrorMessage})
		if frame, err := protocol.SerializeTCP(protocol.MsgError, data); err == nil {
			conn.Send(frame)
		}
		return false
	}
	return true
}

func (a *App) handleAck(msg *protocol.Message, conn *connection.Connection) {
	userID := a.chat.UserIDFor(conn)
	if userID == "" {
		return
	}

	var req struct {
		SeqID int64 `json:"seq_id"`
	}
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}

	if err := a.offline.Remove(context.Background(), userID, req.SeqID); err != nil {
		log.Printf("[App] failed to clear acked offline messages for %s: %v", userID, err)
	}
}

// ==================== main ====================

func main() {
	gatewayID := flag.String("id", "gateway_1", "gateway id")
	tcpAddr := flag.String("tcp-addr", ":8080", "TCP listen address")
	wsAddr := flag.String("ws-addr", ":8081", "WebSocket listen address")
	httpAddr := flag.String("http-addr", ":8082", "HTTP listen address")
	maxConnections := flag.Int("max-connections", 100000, "max concurrent connections")
	idleTimeout := flag.Int("idle-timeout-seconds", 300, "idle connection timeout in seconds")
	authEnabled := flag.Bool("auth-enabled", true, "verify the login token (when false, login trusts the request's user_id)")
	authSecret := flag.String("auth-secret", "change-me", "JWT signing secret")
	authTokenTTL := flag.Int("auth-token-ttl-seconds", 3600, "issued token lifetime in seconds")
	redisAddr := flag.String("redis", "127.0.0.1:6379", "Redis address")
	routingAddr := flag.String("routing-addr", "", "routing service gRPC address (empty = standalone, no routing service)")
	targetService := flag.String("target-service", "chatservice", "service name chat messages are routed to")
	debugLog := flag.Bool("debug-log", false, "verbose registry/debug logging")
	flag.Parse()

	config := &Config{
		GatewayID:           *gatewayID,
		TCPAddr:             *tcpAddr,
		WebSocketAddr:       *wsAddr,
		HTTPAddr:            *httpAddr,
		MaxConnections:      *maxConnections,
		IdleTimeoutSeconds:  *idleTimeout,
		AuthEnabled:         *authEnabled,
		AuthSecret:          *authSecret,
		AuthTokenTTLSeconds: *authTokenTTL,
		RedisAddr:           *redisAddr,
		RoutingAddr:         *routingAddr,
		TargetService:       *targetService,
		DebugLog:            *debugLog,
	}

	app := NewApp(config)
	if err := app.Initialize(); err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	if err := app.Start(); err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Stop()
}
