package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultChannelPrefix namespaces relay channels inside a shared Redis
const DefaultChannelPrefix = "picstorm:"

// redisPubSub is the part of the go-redis client the relay needs
type redisPubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	PSubscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// envelope is the wire form carried over Redis
type envelope struct {
	Topic   string          `json:"topic"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay publishes through Redis so every service instance sees every
// message. Run forwards what arrives from Redis into the local Hub, which is
// where subscribers actually listen.
type RedisRelay struct {
	client redisPubSub
	hub    *Hub
	prefix string
}

// NewRedisRelay wires a relay between client and hub
func NewRedisRelay(client *redis.Client, hub *Hub, prefix string) *RedisRelay {
	return newRedisRelay(client, hub, prefix)
}

func newRedisRelay(client redisPubSub, hub *Hub, prefix string) *RedisRelay {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisRelay{client: client, hub: hub, prefix: prefix}
}

// Publish encodes msg and sends it to the Redis channel for topic
func (r *RedisRelay) Publish(ctx context.Context, topic string, msg Message) error {
	data, err := encodeEnvelope(topic, msg)
	if err != nil {
		return err
	}

	receivers, err := r.client.Publish(ctx, r.prefix+topic, data).Result()
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Str("type", string(msg.MessageType())).Msg("Failed to publish to Redis")
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	log.Debug().Str("topic", topic).Str("type", string(msg.MessageType())).Int64("receivers", receivers).Msg("Published message to Redis")
	return nil
}

// Run pattern-subscribes to every relay channel and forwards messages into
// the hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to redis relay channels: %w", err)
	}

	log.Info().Str("pattern", r.prefix+"*").Msg("Redis relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Redis relay stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis relay channel closed")
			}
			if err := r.deliver(ctx, msg.Channel, msg.Payload); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropped relay message")
			}
		}
	}
}

// deliver decodes one Redis payload and publishes it locally
func (r *RedisRelay) deliver(ctx context.Context, channel, payload string) error {
	topic, msg, err := decodeEnvelope([]byte(payload))
	if err != nil {
		return err
	}

	if expected := strings.TrimPrefix(channel, r.prefix); expected != topic {
		return fmt.Errorf("envelope topic %q does not match channel %q", topic, channel)
	}

	return r.hub.Publish(ctx, topic, msg)
}

func encodeEnvelope(topic string, msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	return json.Marshal(envelope{
		Topic:   topic,
		Type:    msg.MessageType(),
		Payload: payload,
	})
}

func decodeEnvelope(data []byte) (string, Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if !IsValidTopic(env.Topic) {
		return "", nil, fmt.Errorf("invalid topic in envelope: %q", env.Topic)
	}

	msg, err := DecodeMessage(env.Type, env.Payload)
	if err != nil {
		return "", nil, err
	}
	return env.Topic, msg, nil
}
