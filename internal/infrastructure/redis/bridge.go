// Package redis relays change signals between service instances over Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Deliverer receives relayed paths. *stream.Hub satisfies it.
type Deliverer interface {
	Deliver(path string)
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type envelope struct {
	Origin string `json:"origin"`
	Path   string `json:"path"`
}

// Bridge publishes local changes on a channel and delivers changes published
// by other instances. Messages carry the sender's origin id so an instance
// never re-delivers its own changes.
type Bridge struct {
	client  *redis.Client
	pub     publisher
	channel string
	origin  string
	out     Deliverer
}

// NewBridge connects to url and verifies the connection.
func NewBridge(ctx context.Context, url, channel string, out Deliverer) (*Bridge, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Bridge{
		client:  client,
		pub:     client,
		channel: channel,
		origin:  uuid.NewString(),
		out:     out,
	}, nil
}

// Forward implements stream.Relay.
func (b *Bridge) Forward(ctx context.Context, path string) error {
	payload, err := json.Marshal(envelope{Origin: b.origin, Path: path})
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	return b.pub.Publish(ctx, b.channel, payload).Err()
}

// Run delivers remote changes until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			b.handle(msg.Payload)
		}
	}
}

func (b *Bridge) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Warn().Err(err).Msg("dropping malformed relay message")
		return
	}
	if env.Origin == b.origin || env.Path == "" {
		return
	}
	b.out.Deliver(env.Path)
}

func (b *Bridge) Close() error {
	return b.client.Close()
}

// Check pings the server; it backs the readiness probe.
func (b *Bridge) Check(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
