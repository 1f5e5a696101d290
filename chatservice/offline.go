/*
offline.go is a capped, TTL'd ZSET mailbox for ChatMessages addressed
to a currently-offline user. It is intentionally volatile: a 7-day TTL
and a hard cap on mailbox size, not a durable message store.
*/
package chatservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	OfflineBoxPrefix = "msg_box:"

	MaxOfflineMessages = 1000
	OfflineMessageTTL  = 7 * 24 * time.Hour
)

// OfflineManager stores and retrieves ChatMessages in a Redis ZSET
// keyed by recipient, scored by SeqID.
type OfflineManager struct {
	client *redis.Client
}

// NewOfflineManager constructs an OfflineManager backed by client.
func NewOfflineManager(client *redis.Client) *OfflineManager {
	return &OfflineManager{client: client}
}

// Store parks msg in msg.ToUserID's mailbox, stamping ParkedAt,
// trimming the mailbox to MaxOfflineMessages, and refreshing its TTL.
func (m *OfflineManager) Store(ctx context.Context, msg *ChatMessage) error {
	key := OfflineBoxPrefix + msg.ToUserID
	msg.ParkedAt = time.Now()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chatservice: marshal offline message: %w", err)
	}

	if err := m.client.ZAdd(ctx, key, redis.Z{Score: float64(msg.SeqID), Member: string(data)}).Err(); err != nil {
		return fmt.Errorf("chatservice: store offline message: %w", err)
	}
	m.client.ZRemRangeByRank(ctx, key, 0, -MaxOfflineMessages-1)
	m.client.Expire(ctx, key, OfflineMessageTTL)

	log.Printf("[Offline] stored message for %s, seq=%d", msg.ToUserID, msg.SeqID)
	return nil
}

// Fetch returns userID's parked messages with SeqID >= startSeq, oldest
// first, capped at count.
func (m *OfflineManager) Fetch(ctx context.Context, userID string, startSeq, count int64) ([]*ChatMessage, error) {
	key := OfflineBoxPrefix + userID
	results, err := m.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:    fmt.Sprintf("%d", startSeq),
		Max:    "+inf",
		Offset: 0,
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("chatservice: fetch offline messages: %w", err)
	}
	return decodeOfflineMessages(results), nil
}

// FetchLatest returns userID's most recent count parked messages,
// newest first.
func (m *OfflineManager) FetchLatest(ctx context.Context, userID string, count int64) ([]*ChatMessage, error) {
	key := OfflineBoxPrefix + userID
	results, err := m.client.ZRevRange(ctx, key, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("chatservice: fetch latest offline messages: %w", err)
	}
	return decodeOfflineMessages(results), nil
}

func decodeOfflineMessages(results []string) []*ChatMessage {
	messages := make([]*ChatMessage, 0, len(results))
	for _, data := range results {
		var msg ChatMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			log.Printf("[Offline] failed to unmarshal parked message: %v", err)
			continue
		}
		messages = append(messages, &msg)
	}
	return messages
}

// Remove discards every message in userID's mailbox with SeqID <=
// maxSeqID - called once the client ACKs up to that point.
func (m *OfflineManager) Remove(ctx context.Context, userID string, maxSeqID int64) error {
	key := OfflineBoxPrefix + userID
	return m.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", maxSeqID)).Err()
}

// Count returns the number of parked messages for userID.
func (m *OfflineManager) Count(ctx context.Context, userID string) (int64, error) {
	return m.client.ZCard(ctx, OfflineBoxPrefix+userID).Result()
}

// Clear discards every parked message for userID.
func (m *OfflineManager) Clear(ctx context.Context, userID string) error {
	return m.client.Del(ctx, OfflineBoxPrefix+userID).Err()
}
