// Package rabbitmq publishes committed status transitions to a fanout
// exchange for customer tracking and courier apps.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
)

// Exchange receives one message per applied transition.
const Exchange = "order_status_fanout"

const (
	publishTimeout = 5 * time.Second
	minBackoff     = time.Second
	maxBackoff     = 30 * time.Second
)

// Publisher keeps a connection open and reconnects in the background when the
// broker drops it. Publishing while disconnected fails fast.
type Publisher struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel

	closeOnce sync.Once
	closed    chan struct{}
	reconnect chan struct{}
}

var _ ports.StatusPublisher = (*Publisher)(nil)

// Dial connects once; further retries happen in the background watcher.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		url:       url,
		logger:    logger.With("component", "rabbitmq"),
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}

	if err := p.connectOnce(ctx); err != nil {
		return nil, fmt.Errorf("rabbitmq: connect: %w", err)
	}
	go p.watch()

	return p, nil
}

func (p *Publisher) PublishStatus(ctx context.Context, update ports.StatusUpdate) error {
	msg, err := publishing(update)
	if err != nil {
		return err
	}

	p.mu.RLock()
	conn, ch := p.conn, p.pubChan
	p.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: connection is not open")
	}
	if ch == nil || ch.IsClosed() {
		return errors.New("rabbitmq: publish channel is not open")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := ch.PublishWithContext(ctx, Exchange, "", false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", update.OrderID, err)
	}
	return nil
}

func publishing(update ports.StatusUpdate) (amqp.Publishing, error) {
	body, err := json.Marshal(update)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("rabbitmq: encode status update: %w", err)
	}
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    update.OrderID + ":" + update.NewStatus,
		Timestamp:    update.Timestamp,
		Type:         "order.status_changed",
		Headers: amqp.Table{
			"restaurant_id": update.RestaurantID,
		},
		Body: body,
	}, nil
}

func (p *Publisher) Close() {
	p.closeOnce.Do(func() { close(p.closed) })

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pubChan != nil {
		_ = p.pubChan.Close()
		p.pubChan = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) connectOnce(ctx context.Context) error {
	start := time.Now()

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(Exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	p.mu.Lock()
	p.conn = conn
	if p.pubChan != nil {
		_ = p.pubChan.Close()
	}
	p.pubChan = ch
	p.mu.Unlock()

	go func() {
		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-p.closed:
			return
		case <-connClosed:
		case <-chClosed:
		}
		select {
		case p.reconnect <- struct{}{}:
		default:
		}
	}()

	p.logger.InfoContext(ctx, "connected to rabbitmq", "exchange", Exchange, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// watch reconnects with exponential backoff until Close.
func (p *Publisher) watch() {
	backoff := minBackoff
	for {
		select {
		case <-p.closed:
			return
		case <-p.reconnect:
		}

		for {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := p.connectOnce(ctx)
			cancel()
			if err == nil {
				backoff = minBackoff
				break
			}

			p.logger.Error("rabbitmq reconnect failed", "error", err, "retry_in", backoff)
			select {
			case <-p.closed:
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}
	}
}
