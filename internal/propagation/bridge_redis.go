package propagation

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBridge рассылает изменения через Redis pub/sub.
type RedisBridge struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

func NewRedisBridge(ctx context.Context, addr, channel string, log zerolog.Logger) (*RedisBridge, error) {
	client := redis.NewClient(&redis.Options{
		Network: "tcp",
		Addr:    addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisBridge{client: client, channel: channel, log: log}, nil
}

func (b *RedisBridge) Publish(ctx context.Context, c Change) error {
	body, err := encodeChange(c)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, body).Err()
}

func (b *RedisBridge) Subscribe(ctx context.Context, handle func(Change)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Дождаться подтверждения подписки, иначе первые сообщения теряются.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %q: %w", b.channel, err)
	}

	b.log.Info().Str("channel", b.channel).Msg("redis bridge subscribed")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			c, err := decodeChange([]byte(msg.Payload))
			if err != nil {
				b.log.Warn().Err(err).Msg("redis bridge: skip malformed message")
				continue
			}
			handle(c)
		}
	}
}

func (b *RedisBridge) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
