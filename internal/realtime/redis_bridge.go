package realtime

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

const channelPrefix = "chat:"

// RedisBridge fans chat messages out across instances. Broadcast publishes
// on chat:<chat_id>; Run relays every chat channel into the local registry,
// so the sending instance's own subscribers are also served through Redis.
type RedisBridge struct {
	client   *redis.Client
	registry *Registry
	logger   *zap.Logger
}

// NewRedisBridge builds the bridge.
func NewRedisBridge(client *redis.Client, registry *Registry, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{client: client, registry: registry, logger: logger}
}

// ChannelFor returns the pub/sub channel of a chat.
func ChannelFor(chatID string) string {
	return channelPrefix + chatID
}

// ChatIDFromChannel is the inverse of ChannelFor.
func ChatIDFromChannel(channel string) (string, bool) {
	chatID, ok := strings.CutPrefix(channel, channelPrefix)
	return chatID, ok && chatID != ""
}

// Broadcast publishes msg. When Redis refuses the publish the message is
// still delivered to local subscribers and the error is returned.
func (b *RedisBridge) Broadcast(ctx context.Context, msg domain.Message) error {
	payload, err := NewMessageFrame(msg).Encode()
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, ChannelFor(msg.ChatID), payload).Err(); err != nil {
		b.registry.Deliver(msg.ChatID, payload)
		return err
	}
	return nil
}

// Run relays published chat frames until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info("chat redis bridge subscribed", zap.String("pattern", channelPrefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			chatID, valid := ChatIDFromChannel(msg.Channel)
			if !valid {
				continue
			}
			b.registry.Deliver(chatID, []byte(msg.Payload))
		}
	}
}
