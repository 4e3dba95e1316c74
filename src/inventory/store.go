// Package inventory holds the remaining-seat counts the feed simulator
// pushes.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a seeded count is kept.
const DefaultTTL = 30 * time.Minute

// maxSeed caps generated counts for keys nobody has set.
const maxSeed = 50

var ErrNegative = errors.New("remaining must not be negative")

// Store reads and writes remaining counts.
type Store interface {
	Remaining(ctx context.Context, key types.SubscriptionKey) (int64, error)
	SetRemaining(ctx context.Context, key types.SubscriptionKey, n int64) error
}

// RedisKey is the cache key holding the count for key.
func RedisKey(key types.SubscriptionKey) string {
	return fmt.Sprintf("ticket:remain:%s:%s:%s", key.TrainID, key.SeatClass, key.TravelDate)
}

// Seed is the stable count a key starts with before anyone sets it.
func Seed(key types.SubscriptionKey) int64 {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return int64(h.Sum32() % (maxSeed + 1))
}

// RedisStore keeps counts in Redis. A missing count is seeded and
// cached for TTL.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStore wraps client. ttl <= 0 uses DefaultTTL.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Remaining(ctx context.Context, key types.SubscriptionKey) (int64, error) {
	rk := RedisKey(key)
	val, err := s.client.Get(ctx, rk).Result()
	switch {
	case err == nil:
		if n, perr := strconv.ParseInt(val, 10, 64); perr == nil {
			return n, nil
		}
	case !errors.Is(err, redis.Nil):
		return 0, fmt.Errorf("get %s: %w", rk, err)
	}

	n := Seed(key)
	if err := s.client.Set(ctx, rk, strconv.FormatInt(n, 10), s.ttl).Err(); err != nil {
		return 0, fmt.Errorf("seed %s: %w", rk, err)
	}
	return n, nil
}

// SetRemaining stores n without expiry.
func (s *RedisStore) SetRemaining(ctx context.Context, key types.SubscriptionKey, n int64) error {
	if n < 0 {
		return ErrNegative
	}
	rk := RedisKey(key)
	if err := s.client.Set(ctx, rk, strconv.FormatInt(n, 10), 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", rk, err)
	}
	return nil
}

// Memory keeps counts in process, for running without Redis.
type Memory struct {
	mu     sync.Mutex
	counts map[types.SubscriptionKey]int64
}

func NewMemory() *Memory {
	return &Memory{counts: make(map[types.SubscriptionKey]int64)}
}

func (m *Memory) Remaining(_ context.Context, key types.SubscriptionKey) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.counts[key]
	if !ok {
		n = Seed(key)
		m.counts[key] = n
	}
	return n, nil
}

func (m *Memory) SetRemaining(_ context.Context, key types.SubscriptionKey, n int64) error {
	if n < 0 {
		return ErrNegative
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key] = n
	return nil
}
