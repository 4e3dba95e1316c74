package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewClient opens a Redis client for cfg.
func (cfg *RedisConfig) NewClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// redisEnvelope wraps a frame with the originating instance ID so that
// a node can skip its own publications.
type redisEnvelope struct {
	InstanceID string           `json:"instance_id"`
	Push       types.RemainPush `json:"push"`
}

// RedisBridge relays frames between simulator instances via Redis
// pub/sub. It does not own the Redis client.
type RedisBridge struct {
	client     *redis.Client
	channel    string
	instanceID string
	hub        BroadcastTarget
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisBridge creates a bridge publishing on prefix+"remain".
func NewRedisBridge(client *redis.Client, prefix string, hub BroadcastTarget, logger zerolog.Logger) *RedisBridge {
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBridge{
		client:     client,
		channel:    prefix + "remain",
		instanceID: uuid.New().String(),
		hub:        hub,
		logger:     logger.With().Str("component", "redis-bridge").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// InstanceID identifies this node in relayed envelopes.
func (b *RedisBridge) InstanceID() string { return b.instanceID }

// Start subscribes to the relay channel and begins forwarding frames.
func (b *RedisBridge) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return err
	}

	sub := b.client.Subscribe(b.ctx, b.channel)
	if _, err := sub.Receive(b.ctx); err != nil {
		sub.Close()
		return err
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.listen(sub)

	b.logger.Info().
		Str("instance_id", b.instanceID).
		Str("channel", b.channel).
		Msg("redis bridge started")
	return nil
}

// Publish sends a frame to all other instances.
func (b *RedisBridge) Publish(push types.RemainPush) error {
	data, err := b.encode(push)
	if err != nil {
		return err
	}
	return b.client.Publish(b.ctx, b.channel, data).Err()
}

func (b *RedisBridge) encode(push types.RemainPush) ([]byte, error) {
	return json.Marshal(redisEnvelope{InstanceID: b.instanceID, Push: push})
}

// Stop unsubscribes and waits for the listener to exit.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return nil
}

// Available reports whether the bridge is connected.
func (b *RedisBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

func (b *RedisBridge) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.relay([]byte(msg.Payload))
		case <-b.ctx.Done():
			return
		}
	}
}

// relay decodes an envelope and forwards frames from other nodes.
func (b *RedisBridge) relay(payload []byte) {
	var env redisEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.logger.Error().Err(err).Msg("failed to decode redis message")
		return
	}
	if env.InstanceID == b.instanceID {
		return
	}

	b.logger.Debug().
		Str("from_instance", env.InstanceID).
		Str("train_id", env.Push.TrainID).
		Msg("relaying frame from redis")

	b.hub.BroadcastToLocal(env.Push)
}
