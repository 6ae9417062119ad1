package registry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel registry edits are announced on.
const DefaultChannel = "sitevault:registry:invalidate"

// Broadcaster announces registry edits to other processes.
type Broadcaster interface {
	Publish(ctx context.Context) error
}

// RedisBroadcaster publishes and receives invalidation signals over redis
// pub/sub so every API process drops its cached snapshot after an edit.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

// NewRedisBroadcaster constructs a RedisBroadcaster.
func NewRedisBroadcaster(client *redis.Client, channel string, log *zap.Logger) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroadcaster{client: client, channel: channel, log: log}
}

// Publish announces an edit.
func (b *RedisBroadcaster) Publish(ctx context.Context) error {
	if err := b.client.Publish(ctx, b.channel, "invalidate").Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Listen invalidates cache for every announcement until ctx is done.
func (b *RedisBroadcaster) Listen(ctx context.Context, cache *Cache) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			cache.Invalidate()
			b.log.Debug("registry cache invalidated by broadcast")
		}
	}
}

// ListenOrDisable runs listen until ctx ends. A listener that stops earlier
// leaves cache without invalidation signals from other processes, so
// caching is disabled and every request loads fresh.
func ListenOrDisable(ctx context.Context, cache *Cache, listen func(context.Context, *Cache) error, log *zap.Logger) {
	err := listen(ctx, cache)
	if ctx.Err() != nil {
		return
	}
	cache.Disable()
	log.Warn("registry invalidation listener stopped, caching disabled", zap.Error(err))
}
