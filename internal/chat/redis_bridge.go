package chat

import (
	"context"
	"encoding/json"

	"chat-gateway/internal/types"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBridgeTopic = "chat-gateway:fanout"
	relayBuffer        = 256
)

// RedisBridge carries hub envelopes between server instances over Redis
// pub/sub. Envelopes stamped with this hub's ServerID are ignored on the
// way back in.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	topic  string
	out    chan *types.Envelope
	log    *logrus.Entry
}

func NewRedisBridge(client *redis.Client, hub *Hub, topic string) *RedisBridge {
	if topic == "" {
		topic = DefaultBridgeTopic
	}
	b := &RedisBridge{
		client: client,
		hub:    hub,
		topic:  topic,
		out:    make(chan *types.Envelope, relayBuffer),
		log:    logrus.WithFields(logrus.Fields{"component": "redis_bridge", "topic": topic}),
	}
	hub.SetRelay(b)
	return b
}

// Relay queues env for publication. Remote envelopes are never relayed
// again.
func (b *RedisBridge) Relay(env *types.Envelope) {
	if env.FromRedis {
		return
	}
	select {
	case b.out <- env:
	default:
		b.log.WithField("channel", env.Channel).Warn("Relay queue full, dropping envelope")
	}
}

// Run publishes queued envelopes and delivers remote ones until ctx ends.
func (b *RedisBridge) Run(ctx context.Context) {
	pubsub := b.client.Subscribe(ctx, b.topic)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		b.log.WithError(err).Error("Failed to subscribe to fan-out topic")
		return
	}
	incoming := pubsub.Channel()
	b.log.Info("Redis bridge running")

	for {
		select {
		case <-ctx.Done():
			b.log.Info("Redis bridge stopped")
			return

		case env := <-b.out:
			raw, err := json.Marshal(env)
			if err != nil {
				b.log.WithError(err).Error("Failed to encode envelope")
				continue
			}
			if err := b.client.Publish(ctx, b.topic, raw).Err(); err != nil {
				b.log.WithError(err).Warn("Failed to publish envelope")
			}

		case msg, ok := <-incoming:
			if !ok {
				return
			}
			b.handle([]byte(msg.Payload))
		}
	}
}

func (b *RedisBridge) handle(raw []byte) {
	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		b.log.WithError(err).Warn("Dropping malformed envelope")
		return
	}
	if env.SenderServerID == b.hub.ServerID {
		return
	}
	env.FromRedis = true
	b.hub.Deliver(&env)
}
