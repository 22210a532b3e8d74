package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Envelope is a group send relayed between nodes.
type Envelope struct {
	Hub    string `json:"hub"`
	Node   string `json:"node"`
	Group  string `json:"group"`
	Except string `json:"except,omitempty"`
	// Tenant restricts delivery to sessions of one tenant.
	Tenant string `json:"tenant,omitempty"`
	Frame  Frame  `json:"frame"`
}

// Backplane relays group sends to the other nodes serving the same hubs.
type Backplane interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe blocks, calling handle for every envelope until ctx is done
	// or the subscription fails.
	Subscribe(ctx context.Context, handle func(Envelope)) error
}

// RedisBackplane relays envelopes over a redis pub/sub channel.
type RedisBackplane struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisBackplane creates a backplane on channel.
func NewRedisBackplane(client redis.UniversalClient, channel string) *RedisBackplane {
	return &RedisBackplane{client: client, channel: channel}
}

// Publish implements Backplane.
func (b *RedisBackplane) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Subscribe implements Backplane.
func (b *RedisBackplane) Subscribe(ctx context.Context, handle func(Envelope)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("backplane subscription closed")
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			handle(env)
		}
	}
}

// Receive applies an envelope from another node to local connections.
// Envelopes for other hubs or from this node are ignored.
func (h *Hub) Receive(env Envelope) {
	if env.Hub != h.name || env.Node == h.node {
		return
	}
	h.deliverLocal(env)
}

const backplaneRetryDelay = 2 * time.Second

// Run consumes the backplane until ctx is done, resubscribing after failures.
// It returns immediately when no backplane is configured.
func (h *Hub) Run(ctx context.Context) {
	if h.backplane == nil {
		return
	}
	h.log.Info("Backplane subscription started", zap.String("node", h.node))
	for {
		err := h.backplane.Subscribe(ctx, h.Receive)
		if ctx.Err() != nil {
			return
		}
		h.log.Warn("Backplane subscription lost, retrying",
			zap.Duration("delay", backplaneRetryDelay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backplaneRetryDelay):
		}
	}
}
