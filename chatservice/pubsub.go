/*
pubsub.go is cross-gateway message fan-out over Redis Pub/Sub, one
channel per gateway instance. A ChatMessage whose recipient is
connected to a different gateway process is published to that
gateway's channel instead of delivered locally - the same ChatMessage
value the session/sequence/offline collaborators already touched,
marshaled as-is rather than repacked into a separate wire type.
*/
package chatservice

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// PubSubManager subscribes to one gateway's channel and can publish to
// any other gateway's channel.
type PubSubManager struct {
	client     *redis.Client
	gatewayID  string
	channelKey string

	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// NewPubSubManager constructs a PubSubManager for gatewayID.
func NewPubSubManager(client *redis.Client, gatewayID string) *PubSubManager {
	return &PubSubManager{
		client:     client,
		gatewayID:  gatewayID,
		channelKey: "channel:gateway_" + gatewayID,
	}
}

// Start subscribes to this gateway's channel and invokes handler for
// every message received, until Stop is called.
func (m *PubSubManager) Start(ctx context.Context, handler func(*ChatMessage)) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.pubsub = m.client.Subscribe(ctx, m.channelKey)
	if _, err := m.pubsub.Receive(ctx); err != nil {
		cancel()
		return err
	}
	log.Printf("[PubSub] subscribed to %s", m.channelKey)

	go m.receiveLoop(ctx, handler)
	return nil
}

func (m *PubSubManager) receiveLoop(ctx context.Context, handler func(*ChatMessage)) {
	ch := m.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var chatMsg ChatMessage
			if err := json.Unmarshal([]byte(msg.Payload), &chatMsg); err != nil {
				log.Printf("[PubSub] failed to unmarshal message: %v", err)
				continue
			}
			if handler != nil {
				handler(&chatMsg)
			}
		}
	}
}

// Publish sends msg to targetGatewayID's channel.
func (m *PubSubManager) Publish(ctx context.Context, targetGatewayID string, msg *ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return m.client.Publish(ctx, "channel:gateway_"+targetGatewayID, data).Err()
}

// Stop cancels the subscription and closes the underlying PubSub.
func (m *PubSubManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.pubsub != nil {
		m.pubsub.Close()
	}
}
