package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"wtfGram/domain"
)

// DefaultRedisChannel is the redis channel hubs of all instances meet on.
const DefaultRedisChannel = "wtfgram:events"

// envelope is what travels over redis. Origin tells a relay which messages it sent itself.
type envelope struct {
	Origin  string  `json:"origin"`
	Message Message `json:"message"`
}

// RedisRelay connects the Hubs of several processes through a redis channel. Publishing
// through the relay delivers locally and forwards to redis. Messages coming in from redis
// are delivered to the local hub, unless this relay sent them.
type RedisRelay struct {
	hub     *Hub
	client  *redis.Client
	channel string
	origin  string
	log     logrus.FieldLogger
}

// NewRedisRelay returns a relay for hub. An empty channel means DefaultRedisChannel.
func NewRedisRelay(hub *Hub, client *redis.Client, channel string, log logrus.FieldLogger) *RedisRelay {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisRelay{
		hub:     hub,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log.WithField("component", "redis_relay"),
	}
}

// Ensure the RedisRelay properly implements the domain.Publisher interface.
var _ domain.Publisher = &RedisRelay{}

// NewRedisClient connects to the redis server at addr and pings it.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Publish delivers to the local hub and forwards the message to the other instances.
// A failed forward is returned, local subscribers have been served regardless.
func (r *RedisRelay) Publish(ctx context.Context, name string, payload interface{}, audience []string) error {
	msg, err := NewMessage(name, payload, audience)
	if err != nil {
		return err
	}
	if err := r.hub.Deliver(ctx, msg); err != nil {
		return err
	}
	b, err := json.Marshal(envelope{Origin: r.origin, Message: msg})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

// Run receives messages from redis until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.client.Subscribe(ctx, r.channel)
	defer ps.Close()

	// Wait for the subscription to be confirmed, so nothing published afterwards is missed.
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}
	r.log.WithField("channel", r.channel).Info("relaying hub messages")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, []byte(m.Payload))
		}
	}
}

// handle delivers one message received from redis.
func (r *RedisRelay) handle(ctx context.Context, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.log.WithError(err).Warn("dropping malformed relay message")
		return
	}
	if env.Origin == r.origin {
		return
	}
	if err := r.hub.Deliver(ctx, env.Message); err != nil {
		r.log.WithError(err).WithField("topic", env.Message.Topic).Warn("delivering relayed message")
	}
}
