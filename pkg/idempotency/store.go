package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "1"

// Store keeps short-lived markers in Redis so retried messages and requests are
// processed once.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// RequestKey namespaces a client supplied Idempotency-Key by scope and owner.
func (s *Store) RequestKey(scope, owner, key string) string {
	return fmt.Sprintf("idem:req:%s:%s:%s", scope, owner, key)
}

// Seen marks key and reports whether it had already been marked.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, pendingMarker, s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

// Reserve claims key for a request. When the key is already taken it returns
// false and the value remembered for it, which is empty while the first request
// is still in flight.
func (s *Store) Reserve(ctx context.Context, key string) (bool, string, error) {
	ok, err := s.rdb.SetNX(ctx, key, pendingMarker, s.ttl).Result()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	if val == pendingMarker {
		val = ""
	}
	return false, val, nil
}

// Remember stores the outcome of a reserved request.
func (s *Store) Remember(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, s.ttl).Err()
}

// Release drops a reservation so a failed request can be retried.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
