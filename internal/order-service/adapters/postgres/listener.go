package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jcmexdev/kitchen-orders/internal/changefeed"
)

// notifyConn is the part of *pgx.Conn the listener needs.
type notifyConn interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Listener implements changefeed.Notifier. The whole process shares one
// LISTEN connection, opened outside the pool on first use and fanned out to
// scoped listeners. When it breaks every listener channel closes, and the
// next Listen dials again.
type Listener struct {
	dial   func(ctx context.Context) (notifyConn, error)
	logger *slog.Logger

	mu     sync.Mutex
	hub    *changefeed.Broadcaster
	cancel context.CancelFunc
}

var _ changefeed.Notifier = (*Listener)(nil)

func NewListener(pool *pgxpool.Pool, logger *slog.Logger) *Listener {
	cfg := pool.Config().ConnConfig
	return newListener(func(ctx context.Context) (notifyConn, error) {
		conn, err := pgx.ConnectConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("postgres: connect listener: %w", err)
		}
		if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
			_ = conn.Close(context.Background())
			return nil, fmt.Errorf("postgres: listen %s: %w", Channel, err)
		}
		return conn, nil
	}, logger)
}

func newListener(dial func(ctx context.Context) (notifyConn, error), logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{dial: dial, logger: logger.With("component", "pg-listener")}
}

func (l *Listener) Listen(ctx context.Context, scope string) (<-chan changefeed.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hub == nil {
		conn, err := l.dial(ctx)
		if err != nil {
			return nil, err
		}
		runCtx, cancel := context.WithCancel(context.Background())
		l.hub, l.cancel = changefeed.NewBroadcaster(), cancel
		go l.run(runCtx, conn, l.hub)
	}
	return l.hub.Listen(ctx, scope)
}

// Close drops the shared connection. Open listener channels close with it.
func (l *Listener) Close() error {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (l *Listener) run(ctx context.Context, conn notifyConn, hub *changefeed.Broadcaster) {
	defer func() {
		l.mu.Lock()
		if l.hub == hub {
			l.cancel()
			l.hub, l.cancel = nil, nil
		}
		// under mu, so no Listen can register on a hub that is going away
		hub.Disconnect()
		l.mu.Unlock()

		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(cctx)
	}()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				l.logger.WarnContext(ctx, "notification wait failed", "error", err)
			}
			return
		}

		ev, err := decodeNotification(n.Payload)
		if err != nil {
			l.logger.WarnContext(ctx, "bad notification payload", "payload", n.Payload, "error", err)
			continue
		}
		_ = hub.Publish(ctx, ev)
	}
}

func decodeNotification(payload string) (changefeed.Event, error) {
	var ev changefeed.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return changefeed.Event{}, err
	}
	if ev.OrderID == "" {
		return changefeed.Event{}, fmt.Errorf("missing order_id")
	}
	return ev, nil
}
