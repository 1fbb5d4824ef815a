package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/traceview/pkg/trace"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "traceview:updates"

// RedisSubscriber applies trace batches published on a Redis channel.
// A message may carry one update, an array or JSONL.
type RedisSubscriber struct {
	client  *redis.Client
	channel string
	applier Applier
	logger  *slog.Logger
	ready   chan struct{}
}

// NewRedisSubscriber creates a subscriber. An empty channel uses DefaultChannel.
func NewRedisSubscriber(client *redis.Client, channel string, a Applier, logger *slog.Logger) *RedisSubscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSubscriber{
		client:  client,
		channel: channel,
		applier: a,
		logger:  logger.With("channel", channel),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the subscription is confirmed by the server.
func (s *RedisSubscriber) Ready() <-chan struct{} { return s.ready }

// Run subscribes and applies messages until ctx is done. Bad messages are
// logged and skipped.
func (s *RedisSubscriber) Run(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	close(s.ready)
	s.logger.Info("redis_subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("redis_unsubscribed")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(ctx, msg.Payload)
		}
	}
}

func (s *RedisSubscriber) handle(ctx context.Context, payload string) {
	updates, err := DecodeUpdates(strings.NewReader(payload))
	if err != nil {
		s.logger.Warn("redis_message_rejected", "error", err)
		return
	}
	if n, err := ApplyAll(ctx, s.applier, updates); err != nil {
		s.logger.Error("redis_apply_failed", "applied", n, "error", err)
	}
}

// Publish sends one update to a channel in the format RedisSubscriber reads.
func Publish(ctx context.Context, client *redis.Client, channel string, u trace.Update) error {
	if channel == "" {
		channel = DefaultChannel
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	if err := client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}
