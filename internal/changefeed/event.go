// Package changefeed turns "something changed" pings from a push channel into
// full order snapshots for a restaurant, or for every restaurant in admin scope.
//
// The push channel only says that a refresh is due. Every snapshot is a fresh
// query against the store, so missed or duplicated pings never leave a
// subscriber with a stale view for longer than the next trigger.
package changefeed

import (
	"context"
	"errors"
	"time"
)

// ErrChannelDisconnected is logged when the push channel drops. It is never
// returned to subscribers; the feed reconnects on its own.
var ErrChannelDisconnected = errors.New("changefeed: push channel disconnected")

// Op names the kind of write that produced an Event.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// Event is a change notification. Only RestaurantID is used for routing;
// the rest is informational.
type Event struct {
	Op           Op        `json:"op"`
	OrderID      string    `json:"order_id"`
	RestaurantID string    `json:"restaurant_id"`
	At           time.Time `json:"at"`
}

// Notifier is the push side of the feed. Listen returns a channel of events for
// scope (empty scope = every restaurant). The channel is closed when the
// underlying connection drops or ctx is cancelled.
type Notifier interface {
	Listen(ctx context.Context, scope string) (<-chan Event, error)
}

// Publisher is implemented by notifiers that stores can write to after a commit.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Matches reports whether ev belongs to scope.
func (ev Event) Matches(scope string) bool {
	return scope == "" || ev.RestaurantID == scope
}
