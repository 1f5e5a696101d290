/*
handler.go is the chat message router: it decides whether a private
message is delivered locally, forwarded to another gateway over
Pub/Sub, or parked in the offline mailbox. It keeps its own small
user-id -> Connection map rather than relying on the connection
registry, which indexes by ConnectionId only - user-to-connection
binding is chat-specific state, not core registry state.
*/
package chatservice

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/nightfall-labs/imgw/connection"
	"github.com/nightfall-labs/imgw/protocol"
)

const (
	MsgTypePrivate = 1
	MsgTypeGroup   = 2
	MsgTypeSystem  = 3
)

// ChatMessage is the business-level chat payload. It is the one shape
// that flows through session lookup, sequencing, offline parking, and
// cross-gateway Pub/Sub - those collaborators all read and write
// ChatMessage fields directly rather than their own private copies.
type ChatMessage struct {
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	Content    string    `json:"content"`
	MsgType    int       `json:"msg_type"`
	SeqID      int64     `json:"seq_id"`
	ParkedAt   time.Time `json:"parked_at,omitempty"`
}

// Handler coordinates session, pub/sub, sequence and offline-mailbox
// state to route a chat message from sender to recipient.
type Handler struct {
	gatewayID string
	session   *SessionManager
	pubsub    *PubSubManager
	sequence  *SequenceManager
	offline   *OfflineManager

	mu     sync.RWMutex
	byUser map[string]*connection.Connection
	byConn map[uint64]string
}

// NewHandler constructs a Handler for gatewayID.
func NewHandler(gatewayID string, session *SessionManager, pubsub *PubSubManager, sequence *SequenceManager, offline *OfflineManager) *Handler {
	return &Handler{
		gatewayID: gatewayID,
		session:   session,
		pubsub:    pubsub,
		sequence:  sequence,
		offline:   offline,
		byUser:    make(map[string]*connection.Connection),
		byConn:    make(map[uint64]string),
	}
}

// BindUser associates userID with conn, so future local deliveries can
// find it, and records the reverse mapping so a handler that only has
// a connection (heartbeat, chat, ack, logout) can recover the userID.
func (h *Handler) BindUser(userID string, conn *connection.Connection) {
	h.mu.Lock()
	h.byUser[userID] = conn
	h.byConn[conn.ID()] = userID
	h.mu.Unlock()
}

// UnbindUser removes userID's connection binding, if conn is still the
// one on file (a reconnect may have already replaced it).
func (h *Handler) UnbindUser(userID string, conn *connection.Connection) {
	h.mu.Lock()
	if h.byUser[userID] == conn {
		delete(h.byUser, userID)
		delete(h.byConn, conn.ID())
	}
	h.mu.Unlock()
}

func (h *Handler) connFor(userID string) *connection.Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byUser[userID]
}

// UserIDFor returns the userID bound to conn, or "" if conn is
// unauthenticated (or has logged out).
func (h *Handler) UserIDFor(conn *connection.Connection) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byConn[conn.ID()]
}

// SendPrivateMessage routes one message from fromUserID to toUserID:
// build the ChatMessage, stamp it with the next sequence number for
// their conversation, then deliver locally, forward via Pub/Sub, or
// park offline depending on where (or whether) the recipient is
// connected. The same *ChatMessage value is what session, sequence,
// offline and pub/sub all act on - there is no per-collaborator copy.
func (h *Handler) SendPrivateMessage(ctx context.Context, fromUserID, toUserID string, content []byte) error {
	msg := &ChatMessage{
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Content:    string(content),
		MsgType:    MsgTypePrivate,
	}
	if err := h.sequence.Stamp(ctx, msg); err != nil {
		return err
	}

	targetGateway, err := h.session.GetUserGateway(ctx, msg.ToUserID)
	if err != nil {
		log.Printf("[Chat] user %s is offline, parking message", msg.ToUserID)
		return h.offline.Store(ctx, msg)
	}

	if targetGateway == h.gatewayID {
		return h.deliverLocal(ctx, msg.ToUserID, msg)
	}
	return h.deliverRemote(ctx, targetGateway, msg)
}

func (h *Handler) deliverLocal(ctx context.Context, userID string, msg *ChatMessage) error {
	conn := h.connFor(userID)
	if conn == nil {
		log.Printf("[Chat] no local connection for user %s, parking message", userID)
		return h.offline.Store(ctx, msg)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	frame, err := protocol.SerializeTCP(protocol.MsgChat, data)
	if err != nil {
		return err
	}

	log.Printf("[Chat] delivering to %s locally", userID)
	return conn.Send(frame)
}

func (h *Handler) deliverRemote(ctx context.Context, targetGateway string, msg *ChatMessage) error {
	log.Printf("[Chat] forwarding to gateway %s via pub/sub", targetGateway)
	return h.pubsub.Publish(ctx, targetGateway, msg)
}

// HandlePubSubMessage delivers a message forwarded from another
// gateway to its local recipient.
func (h *Handler) HandlePubSubMessage(ctx context.Context, msg *ChatMessage) {
	if err := h.deliverLocal(ctx, msg.ToUserID, msg); err != nil {
		log.Printf("[Chat] failed to deliver forwarded message: %v", err)
	}
}

// DeliverOfflineMessages pushes userID's parked messages to conn, most
// recent first, once the user reconnects.
func (h *Handler) DeliverOfflineMessages(ctx context.Context, userID string, conn *connection.Connection) error {
	messages, err := h.offline.FetchLatest(ctx, userID, 100)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		frame, err := protocol.SerializeTCP(protocol.MsgChat, data)
		if err != nil {
			continue
		}
		conn.Send(frame)
	}

	log.Printf("[Chat] delivered %d parked messages to %s", len(messages), userID)
	return nil
}

// conversationID derives a stable, order-independent conversation key
// for two users so A->B and B->A land on the same sequence counter.
func conversationID(user1, user2 string) string {
	if user1 < user2 {
		return user1 + ":" + user2
	}
	return user2 + ":" + user1
}
