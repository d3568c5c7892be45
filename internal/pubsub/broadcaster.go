// Package pubsub доставляет UI фрагменты подписчикам через Redis Pub/Sub.
//
// RedisBroadcaster реализует tasks.Broadcaster и используется задачей ui_push.
// Subscribe нужен слушателям (SSE, websocket) и тестам.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrEmptyChannel — пустое имя канала.
var ErrEmptyChannel = errors.New("channel is required")

const defaultPrefix = "agentflow:ui:"

// RedisBroadcaster публикует сообщения в каналы Redis.
type RedisBroadcaster struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBroadcaster создаёт RedisBroadcaster. Пустой prefix заменяется на agentflow:ui:.
func NewRedisBroadcaster(client redis.UniversalClient, prefix string) *RedisBroadcaster {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisBroadcaster{client: client, prefix: prefix}
}

// Channel возвращает полное имя канала Redis.
func (b *RedisBroadcaster) Channel(name string) string {
	return b.prefix + strings.TrimSpace(name)
}

// Publish отправляет payload в канал.
func (b *RedisBroadcaster) Publish(ctx context.Context, channel, payload string) error {
	if strings.TrimSpace(channel) == "" {
		return ErrEmptyChannel
	}
	if err := b.client.Publish(ctx, b.Channel(channel), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe подписывается на каналы. Вызывающий закрывает PubSub.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	if len(channels) == 0 {
		return nil, ErrEmptyChannel
	}
	full := make([]string, len(channels))
	for i, ch := range channels {
		full[i] = b.Channel(ch)
	}

	sub := b.client.Subscribe(ctx, full...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return sub, nil
}
