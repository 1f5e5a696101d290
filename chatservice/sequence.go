/*
sequence.go hands out per-conversation monotonic sequence numbers via
Redis INCR, used for message ordering and ACK bookkeeping.
*/
package chatservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const SequenceKeyPrefix = "seq:"

// SequenceManager hands out per-conversation monotonic sequence numbers.
type SequenceManager struct {
	client *redis.Client
}

// NewSequenceManager constructs a SequenceManager backed by client.
func NewSequenceManager(client *redis.Client) *SequenceManager {
	return &SequenceManager{client: client}
}

// Stamp allocates the next sequence number for msg's conversation and
// writes it into msg.SeqID in place, so every later hop (session
// lookup, delivery, offline parking, pub/sub fan-out) sees the same
// stamped ChatMessage rather than a separately-threaded int64.
func (m *SequenceManager) Stamp(ctx context.Context, msg *ChatMessage) error {
	seq, err := m.NextSeq(ctx, conversationID(msg.FromUserID, msg.ToUserID))
	if err != nil {
		return err
	}
	msg.SeqID = seq
	return nil
}

// NextSeq atomically allocates the next sequence number for
// conversationID.
func (m *SequenceManager) NextSeq(ctx context.Context, conversationID string) (int64, error) {
	seq, err := m.client.Incr(ctx, SequenceKeyPrefix+conversationID).Result()
	if err != nil {
		return 0, fmt.Errorf("chatservice: generate sequence: %w", err)
	}
	return seq, nil
}

// NextSeqBatch atomically allocates count consecutive sequence numbers,
// returning the inclusive [startSeq, endSeq] range.
func (m *SequenceManager) NextSeqBatch(ctx context.Context, conversationID string, count int64) (startSeq, endSeq int64, err error) {
	endSeq, err = m.client.IncrBy(ctx, SequenceKeyPrefix+conversationID, count).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("chatservice: generate sequence batch: %w", err)
	}
	return endSeq - count + 1, endSeq, nil
}

// CurrentSeq returns conversationID's current sequence number without
// incrementing it, or 0 if none has been allocated yet.
func (m *SequenceManager) CurrentSeq(ctx context.Context, conversationID string) (int64, error) {
	seq, err := m.client.Get(ctx, SequenceKeyPrefix+conversationID).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return seq, nil
}

// ResetSeq deletes conversationID's counter. Test-only: resetting a live
// conversation's sequence causes duplicate SeqIDs.
func (m *SequenceManager) ResetSeq(ctx context.Context, conversationID string) error {
	return m.client.Del(ctx, SequenceKeyPrefix+conversationID).Err()
}
