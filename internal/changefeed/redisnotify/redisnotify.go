// Package redisnotify carries change events over Redis Pub/Sub so that feeds
// in other processes refresh when this one writes.
//
// Every event goes to the restaurant channel and to the admin channel:
//
//	orders:changes:<restaurant_id>
//	orders:changes:all
package redisnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jcmexdev/kitchen-orders/internal/changefeed"
)

const channelPrefix = "orders:changes"

func channelFor(scope string) string {
	if scope == "" {
		return channelPrefix + ":all"
	}
	return channelPrefix + ":" + scope
}

type Notifier struct {
	client *redis.Client
	logger *slog.Logger
}

var (
	_ changefeed.Notifier  = (*Notifier)(nil)
	_ changefeed.Publisher = (*Notifier)(nil)
)

func New(client *redis.Client, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{client: client, logger: logger.With("component", "redis-notify")}
}

func (n *Notifier) Publish(ctx context.Context, ev changefeed.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redisnotify: encode event: %w", err)
	}

	pipe := n.client.Pipeline()
	if ev.RestaurantID != "" {
		pipe.Publish(ctx, channelFor(ev.RestaurantID), payload)
	}
	pipe.Publish(ctx, channelFor(""), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisnotify: publish %s: %w", ev.OrderID, err)
	}
	return nil
}

// Listen subscribes to the scope channel. The returned channel closes on the
// first receive error; go-redis would resubscribe silently, and the feed needs
// to know so it can run a catch-up refresh.
func (n *Notifier) Listen(ctx context.Context, scope string) (<-chan changefeed.Event, error) {
	ps := n.client.Subscribe(ctx, channelFor(scope))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redisnotify: subscribe %s: %w", channelFor(scope), err)
	}

	out := make(chan changefeed.Event, 16)
	go func() {
		defer close(out)
		stop := context.AfterFunc(ctx, func() { _ = ps.Close() })
		defer func() {
			if stop() {
				_ = ps.Close()
			}
		}()

		for {
			msg, err := ps.Receive(ctx)
			if err != nil {
				if ctx.Err() == nil {
					n.logger.WarnContext(ctx, "pubsub receive failed", "scope", scope, "error", err)
				}
				return
			}

			m, ok := msg.(*redis.Message)
			if !ok {
				continue
			}
			var ev changefeed.Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				n.logger.WarnContext(ctx, "bad change event", "payload", m.Payload, "error", err)
				continue
			}
			if !ev.Matches(scope) {
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
