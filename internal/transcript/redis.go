package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const transcriptKeyPrefix = "transcript:"

// DefaultTTL bounds how long a call's window outlives its last segment.
const DefaultTTL = 2 * time.Hour

// RedisStore keeps each call's window in a Redis list, one JSON-encoded
// segment per entry, expiring after the configured TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a Redis-backed transcript store.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// Append adds a segment to the call's window and refreshes its TTL.
func (s *RedisStore) Append(ctx context.Context, callID string, segment Segment) error {
	payload, err := json.Marshal(segment)
	if err != nil {
		return fmt.Errorf("marshal segment: %w", err)
	}

	key := transcriptKey(callID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append transcript segment: %w", err)
	}
	return nil
}

// Window returns the call's accumulated window. A call with no segments
// yields an empty window, not an error.
func (s *RedisStore) Window(ctx context.Context, callID string) (Window, error) {
	entries, err := s.rdb.LRange(ctx, transcriptKey(callID), 0, -1).Result()
	if err != nil {
		return Window{}, fmt.Errorf("read transcript window: %w", err)
	}

	window := Window{CallID: callID, Segments: make([]Segment, 0, len(entries))}
	for _, entry := range entries {
		var segment Segment
		if err := json.Unmarshal([]byte(entry), &segment); err != nil {
			return Window{}, fmt.Errorf("decode transcript segment: %w", err)
		}
		window.Segments = append(window.Segments, segment)
	}
	return window, nil
}

// Clear removes the call's window.
func (s *RedisStore) Clear(ctx context.Context, callID string) error {
	if err := s.rdb.Del(ctx, transcriptKey(callID)).Err(); err != nil {
		return fmt.Errorf("clear transcript window: %w", err)
	}
	return nil
}

func transcriptKey(callID string) string {
	return transcriptKeyPrefix + callID
}
