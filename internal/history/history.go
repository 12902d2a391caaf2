// Package history keeps per-session chat transcripts in redis with a TTL.
package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chat:session:"

// Message is one transcript entry.
type Message struct {
	Role string    `json:"role"` // "user" or "assistant"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Store appends and lists session transcripts.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New wraps an existing redis client. ttl bounds how long an idle session's
// transcript is kept.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// SetOwner records which user a session belongs to, with the transcript TTL.
func (s *Store) SetOwner(ctx context.Context, sessionID, userID string) error {
	return s.rdb.Set(ctx, keyPrefix+sessionID+":owner", userID, s.ttl).Err()
}

// Owner returns the user a session belongs to, or "" for an unknown or
// expired session.
func (s *Store) Owner(ctx context.Context, sessionID string) (string, error) {
	v, err := s.rdb.Get(ctx, keyPrefix+sessionID+":owner").Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

// Append adds one message to the session transcript and refreshes its TTL.
// The owner key expires together with the transcript.
func (s *Store) Append(ctx context.Context, sessionID string, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	key := keyPrefix + sessionID
	if err := s.rdb.RPush(ctx, key, data).Err(); err != nil {
		return err
	}
	if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, key+":owner", s.ttl).Err()
}

// List returns the transcript in append order.
func (s *Store) List(ctx context.Context, sessionID string) ([]Message, error) {
	raw, err := s.rdb.LRange(ctx, keyPrefix+sessionID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
