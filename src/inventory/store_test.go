package inventory

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var g1 = types.Key("G1", "二等座", "2030-01-02")

func TestRedisKeyFormat(t *testing.T) {
	assert.Equal(t, "ticket:remain:G1:二等座:2030-01-02", RedisKey(g1))
}

func TestSeedIsStableAndBounded(t *testing.T) {
	assert.Equal(t, Seed(g1), Seed(g1))
	for _, id := range []string{"G1", "G2", "D301", "K18", "Z9"} {
		n := Seed(types.Key(id, "硬座", "2030-01-02"))
		assert.GreaterOrEqual(t, n, int64(0))
		assert.LessOrEqual(t, n, int64(maxSeed))
	}
}

func TestMemorySeedsThenStores(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	n, err := m.Remaining(ctx, g1)
	require.NoError(t, err)
	assert.Equal(t, Seed(g1), n)

	require.NoError(t, m.SetRemaining(ctx, g1, 3))
	n, err = m.Remaining(ctx, g1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.ErrorIs(t, m.SetRemaining(ctx, g1, -1), ErrNegative)
}

// redisClient connects to RAILBOOK_TEST_REDIS or skips.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("RAILBOOK_TEST_REDIS")
	if addr == "" {
		t.Skip("RAILBOOK_TEST_REDIS not set")
	}
	c := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { c.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return c
}

func TestRedisStoreRoundTrip(t *testing.T) {
	c := redisClient(t)
	ctx := context.Background()
	key := types.Key("TEST"+time.Now().Format("150405.000"), "二等座", "2030-01-02")
	t.Cleanup(func() { c.Del(ctx, RedisKey(key)) })

	s := NewRedisStore(c, time.Minute)
	n, err := s.Remaining(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, Seed(key), n)
	ttl, err := c.TTL(ctx, RedisKey(key)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, s.SetRemaining(ctx, key, 9))
	n, err = s.Remaining(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}
