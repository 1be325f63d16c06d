package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroker carries updates over Redis pub/sub so several server
// processes can share sessions. Each session uses its own channel.
type RedisBroker struct {
	client *redis.Client
	prefix string
}

// NewRedisBroker wraps an existing client.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client, prefix: "lore:session:"}
}

// DialRedis connects to addr and checks the connection.
func DialRedis(ctx context.Context, addr string) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisBroker(client), nil
}

func (b *RedisBroker) channel(sessionID string) string {
	return b.prefix + sessionID
}

func (b *RedisBroker) Publish(ctx context.Context, u Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(u.SessionID), data).Err(); err != nil {
		return fmt.Errorf("publish update: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, sessionID string) (<-chan Update, func(), error) {
	ps := b.client.Subscribe(ctx, b.channel(sessionID))
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}

	out := make(chan Update, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var u Update
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					slog.Warn("undecodable session update", "session", sessionID, "error", err)
					continue
				}
				select {
				case out <- u:
				default:
					slog.Warn("subscriber backlog full, update dropped", "session", sessionID, "kind", u.Kind)
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
