package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any failure talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when no session is stored for a client id.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when a session is past its max age or was
// never authenticated, so it cannot be persisted or reused.
var ErrSessionExpired = errors.New("session expired")

// Store persists sessions in Redis keyed by client id, using the compact encoding.
// Entries expire together with the session they hold.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a [Store] backed by the given Redis client. prefix sets the key
// namespace and defaults to "icloud:session".
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "icloud:session"
	}
	return &Store{redis: rdb, prefix: prefix, now: time.Now}
}

func (s *Store) key(clientID string) string {
	return s.prefix + ":" + clientID
}

// Save writes sess with a TTL equal to its remaining lifetime.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("nil session")
	}
	snap := sess.Snapshot()
	now := s.now()
	if !snap.IsValidAt(now) {
		return ErrSessionExpired
	}
	ttl := snap.ExpiresAt().Sub(now)

	data, err := EncodeCompact(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(snap.ClientID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Load fetches the session stored for clientID. A stored session that has
// outlived its max age is deleted and reported as [ErrSessionExpired].
func (s *Store) Load(ctx context.Context, clientID string) (*Session, error) {
	key := s.key(clientID)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := DecodeCompact(data)
	if err != nil {
		return nil, err
	}
	if !sess.IsValidAt(s.now()) {
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Delete removes the session for clientID. Deleting a missing entry is not an error.
func (s *Store) Delete(ctx context.Context, clientID string) error {
	if err := s.redis.Del(ctx, s.key(clientID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// TTL returns the remaining Redis lifetime of the stored session.
func (s *Store) TTL(ctx context.Context, clientID string) (time.Duration, error) {
	ttl, err := s.redis.PTTL(ctx, s.key(clientID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		return 0, ErrSessionNotFound
	}
	return ttl, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
