package changefeed

import (
	"context"
	"sync"
)

const listenerBuffer = 16

// Broadcaster is an in-process Notifier. Stores publish to it after each commit
// and every listener whose scope matches gets the event.
//
// Sends never block: a listener with a full buffer already has a refresh
// pending, so dropping the extra event loses nothing.
type Broadcaster struct {
	mu        sync.Mutex
	listeners map[*listener]struct{}
}

type listener struct {
	scope string
	ch    chan Event
}

var (
	_ Notifier  = (*Broadcaster)(nil)
	_ Publisher = (*Broadcaster)(nil)
)

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[*listener]struct{})}
}

func (b *Broadcaster) Listen(ctx context.Context, scope string) (<-chan Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := &listener{scope: scope, ch: make(chan Event, listenerBuffer)}

	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.drop(l)
	}()

	return l.ch, nil
}

func (b *Broadcaster) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for l := range b.listeners {
		if !ev.Matches(l.scope) {
			continue
		}
		select {
		case l.ch <- ev:
		default:
		}
	}
	return nil
}

// Disconnect closes every open listener channel, as a dropped connection would.
func (b *Broadcaster) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for l := range b.listeners {
		delete(b.listeners, l)
		close(l.ch)
	}
}

// Listeners returns the number of open listeners.
func (b *Broadcaster) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *Broadcaster) drop(l *listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.listeners[l]; ok {
		delete(b.listeners, l)
		close(l.ch)
	}
}
