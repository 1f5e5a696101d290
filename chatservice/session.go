/*
Package chatservice is a concrete downstream service instance: it
registers with the routing service and implements the chat business
logic - session location, offline mailbox, cross-gateway Pub/Sub, and
per-conversation sequencing - that sits behind RouteMessage.

session.go tracks user online state and gateway location, both TTL'd
Redis keys refreshed by heartbeat.
*/
package chatservice

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nightfall-labs/imgw/connection"
	"github.com/redis/go-redis/v9"
)

const (
	SessionKeyPrefix = "user_session:"
	GatewayKeyPrefix = "user_gateway:"

	SessionTTL = 5 * time.Minute
)

// Session is one user's online-presence record.
type Session struct {
	UserID    string
	GatewayID string
	ConnID    uint64
	LoginTime time.Time
}

// SessionManager tracks user online/location state in Redis, scoped to
// one gateway instance.
type SessionManager struct {
	client    *redis.Client
	gatewayID string
}

// NewSessionManager constructs a SessionManager for gatewayID, using
// client for storage.
func NewSessionManager(client *redis.Client, gatewayID string) *SessionManager {
	return &SessionManager{client: client, gatewayID: gatewayID}
}

// Login records a session for userID on conn, refreshed with
// SessionTTL. It reads conn.ID() and conn.RemoteAddr() directly rather
// than taking a bare connection id, so the session record always
// reflects the actual Connection the gateway accepted.
func (m *SessionManager) Login(ctx context.Context, userID string, conn *connection.Connection) error {
	pipe := m.client.Pipeline()

	sessionKey := SessionKeyPrefix + userID
	gatewayKey := GatewayKeyPrefix + userID

	pipe.HSet(ctx, sessionKey, map[string]interface{}{
		"gateway_id":  m.gatewayID,
		"conn_id":     conn.ID(),
		"remote_addr": conn.RemoteAddr(),
		"login_time":  time.Now().Unix(),
	})
	pipe.Expire(ctx, sessionKey, SessionTTL)
	pipe.Set(ctx, gatewayKey, m.gatewayID, SessionTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("chatservice: create session: %w", err)
	}
	log.Printf("[Session] user %s logged in on gateway %s", userID, m.gatewayID)
	return nil
}

// Logout removes userID's session and gateway-location records.
func (m *SessionManager) Logout(ctx context.Context, userID string) error {
	pipe := m.client.Pipeline()
	pipe.Del(ctx, SessionKeyPrefix+userID)
	pipe.Del(ctx, GatewayKeyPrefix+userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("chatservice: remove session: %w", err)
	}
	log.Printf("[Session] user %s logged out", userID)
	return nil
}

// Heartbeat refreshes both of userID's session TTLs, keeping the
// presence record alive.
func (m *SessionManager) Heartbeat(ctx context.Context, userID string) error {
	pipe := m.client.Pipeline()
	pipe.Expire(ctx, SessionKeyPrefix+userID, SessionTTL)
	pipe.Expire(ctx, GatewayKeyPrefix+userID, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetUserGateway returns the gateway id userID is currently connected
// to, or an error (including redis.Nil when offline).
func (m *SessionManager) GetUserGateway(ctx context.Context, userID string) (string, error) {
	return m.client.Get(ctx, GatewayKeyPrefix+userID).Result()
}

// IsOnline reports whether userID currently has a live session.
func (m *SessionManager) IsOnline(ctx context.Context, userID string) bool {
	exists, _ := m.client.Exists(ctx, SessionKeyPrefix+userID).Result()
	return exists > 0
}

// OnlineUsers lists every currently online user id. Diagnostic only -
// KEYS is not safe to call frequently against a large keyspace.
func (m *SessionManager) OnlineUsers(ctx context.Context) ([]string, error) {
	keys, err := m.client.Keys(ctx, SessionKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}
	users := make([]string, len(keys))
	for i, key := range keys {
		users[i] = key[len(SessionKeyPrefix):]
	}
	return users, nil
}
