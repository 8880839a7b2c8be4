package alerting

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jcmexdev/kitchen-orders/internal/changefeed"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
)

const DefaultSinkTimeout = 5 * time.Second

// Subscriber is satisfied by *changefeed.Feed.
type Subscriber interface {
	Subscribe(ctx context.Context, scope string, fn func(changefeed.Snapshot)) *changefeed.Subscription
}

// Coordinator watches snapshots and raises alerts for orders that just became
// Novo Pedido: either new rows or orders released from Aguardando Pagamento.
type Coordinator struct {
	sound    SoundSink
	notifier NotificationSink
	caps     CapabilityProvider
	queue    *PrintQueue
	logger   *slog.Logger
	timeout  time.Duration

	armed     atomic.Bool
	autoPrint atomic.Bool

	mu       sync.Mutex
	primed   bool
	previous map[string]domain.Status
}

type Option func(*Coordinator)

func WithSound(s SoundSink) Option {
	return func(c *Coordinator) { c.sound = s }
}

// WithNotifications sets the notification sink. A nil provider means
// notifications are always allowed.
func WithNotifications(n NotificationSink, caps CapabilityProvider) Option {
	return func(c *Coordinator) {
		c.notifier = n
		if caps != nil {
			c.caps = caps
		}
	}
}

// WithAutoPrint queues every alerted order on q.
func WithAutoPrint(q *PrintQueue) Option {
	return func(c *Coordinator) {
		c.queue = q
		c.autoPrint.Store(q != nil)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func WithSinkTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		caps:     StaticCapabilities(Capabilities{NotificationsEnabled: true, HasPermission: true}),
		logger:   slog.Default(),
		timeout:  DefaultSinkTimeout,
		previous: map[string]domain.Status{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "alerting")
	return c
}

// Arm enables sound. Hosts that block audio until a user gesture call it
// from that gesture.
func (c *Coordinator) Arm() { c.armed.Store(true) }

func (c *Coordinator) Armed() bool { return c.armed.Load() }

// SetAutoPrint toggles printing without touching the queue.
func (c *Coordinator) SetAutoPrint(on bool) { c.autoPrint.Store(on && c.queue != nil) }

// Reset forgets every previously seen status. The next snapshot only primes.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primed = false
	c.previous = map[string]domain.Status{}
}

// Watch resets the coordinator and subscribes it to feed.
func (c *Coordinator) Watch(ctx context.Context, feed Subscriber, scope string) *changefeed.Subscription {
	c.Reset()
	return feed.Subscribe(ctx, scope, func(snap changefeed.Snapshot) {
		c.HandleSnapshot(ctx, snap)
	})
}

// HandleSnapshot diffs snap against the previous one and fires the alerts.
// It returns the alerted orders, oldest first.
func (c *Coordinator) HandleSnapshot(ctx context.Context, snap changefeed.Snapshot) []domain.Order {
	alerts := c.diff(snap.Orders)
	if len(alerts) == 0 {
		return nil
	}

	newest := alerts[len(alerts)-1]
	c.logger.InfoContext(ctx, "new orders", "count", len(alerts), "newest", newest.ID, "trigger", string(snap.Trigger))

	c.ring(ctx)
	c.notify(ctx, newest, len(alerts))

	if c.autoPrint.Load() {
		for _, o := range alerts {
			c.queue.Enqueue(o)
		}
	}
	return alerts
}

func (c *Coordinator) diff(orders []domain.Order) []domain.Order {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]domain.Status, len(orders))
	for _, o := range orders {
		next[o.ID] = o.Status
	}

	if !c.primed {
		c.primed = true
		c.previous = next
		return nil
	}

	var alerts []domain.Order
	for _, o := range orders {
		if o.Status != domain.StatusNew {
			continue
		}
		if prev, seen := c.previous[o.ID]; seen && prev == domain.StatusNew {
			continue
		}
		alerts = append(alerts, o)
	}
	c.previous = next

	slices.SortStableFunc(alerts, func(a, b domain.Order) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return alerts
}

func (c *Coordinator) ring(ctx context.Context) {
	if c.sound == nil {
		return
	}
	if !c.armed.Load() {
		c.logger.DebugContext(ctx, "sound not armed, skipping")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.sound.Play(ctx); err != nil {
		c.logger.WarnContext(ctx, "sound failed", "error", err)
	}
}

func (c *Coordinator) notify(ctx context.Context, o domain.Order, count int) {
	if c.notifier == nil {
		return
	}
	if !c.caps.Capabilities().CanNotify() {
		c.logger.DebugContext(ctx, "notifications unavailable, skipping", "order_id", o.ID)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.notifier.Notify(ctx, newOrderNotification(o, count)); err != nil {
		c.logger.WarnContext(ctx, "notification failed", "order_id", o.ID, "error", err)
	}
}
