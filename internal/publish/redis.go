package publish

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"marketfeed-go/internal/config"
	"marketfeed-go/internal/signal"
)

// RedisSink publishes each event on the pub/sub channel <prefix>:<event type>.
type RedisSink struct {
	client *redis.Client
	prefix string
}

// NewRedisSink wraps an existing client.
func NewRedisSink(client *redis.Client, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// ConnectRedis opens a client and verifies it with PING.
func ConnectRedis(ctx context.Context, cfg config.Redis, log zerolog.Logger) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	log.Info().Str("addr", cfg.Addr).Str("prefix", cfg.ChannelPrefix).Msg("redis sink connected")
	return NewRedisSink(client, cfg.ChannelPrefix), nil
}

func (s *RedisSink) Name() string { return "redis" }

// Channel returns the channel used for event.
func (s *RedisSink) Channel(event signal.EventType) string {
	if s.prefix == "" {
		return string(event)
	}
	return s.prefix + ":" + string(event)
}

func (s *RedisSink) Publish(ctx context.Context, event signal.EventType, data []byte) error {
	return s.client.Publish(ctx, s.Channel(event), data).Err()
}

func (s *RedisSink) Close() error { return s.client.Close() }
