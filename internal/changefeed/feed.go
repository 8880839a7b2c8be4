package changefeed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
)

// Trigger says why a snapshot was taken.
type Trigger string

const (
	TriggerInitial   Trigger = "initial"
	TriggerPush      Trigger = "push"
	TriggerReconnect Trigger = "reconnect"
	TriggerPoll      Trigger = "poll"
)

// Snapshot is the full, freshly queried list of recent orders in a scope,
// newest first.
type Snapshot struct {
	Scope   string
	Orders  []domain.Order
	Trigger Trigger
	TakenAt time.Time
}

// Lister is the part of the order store the feed reads from.
type Lister interface {
	Query(ctx context.Context, filter ports.Filter) ([]domain.Order, error)
}

// Config tunes a Feed. Zero values fall back to the defaults below.
type Config struct {
	// Limit is the number of most recent orders in a snapshot.
	Limit int
	// PollInterval forces a refresh even without push events. Zero disables polling.
	PollInterval time.Duration
	// Timeout bounds every store query and every Listen call.
	Timeout time.Duration
	// MinBackoff and MaxBackoff bound the reconnect delay of the push channel.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

const (
	DefaultLimit      = ports.DefaultQueryLimit
	DefaultTimeout    = 15 * time.Second
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = DefaultMinBackoff
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = max(DefaultMaxBackoff, c.MinBackoff)
	}
	return c
}

// Feed hands out subscriptions over a store and a push channel.
type Feed struct {
	store    Lister
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
}

// New builds a Feed. notifier may be nil, in which case only the initial load
// and polling produce snapshots.
func New(store Lister, notifier Notifier, cfg Config, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		store:    store,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   logger.With("component", "changefeed"),
	}
}

// Subscription is a live feed for one scope. It runs a single goroutine that
// performs every refresh, so snapshots are never computed concurrently.
type Subscription struct {
	feed  *Feed
	scope string
	fn    func(Snapshot)

	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan Trigger

	alive atomic.Bool
	once  sync.Once
}

// Subscribe starts delivering snapshots for scope to fn. The first snapshot is
// the initial load. fn is always called from the subscription goroutine.
func (f *Feed) Subscribe(ctx context.Context, scope string, fn func(Snapshot)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)

	s := &Subscription{
		feed:    f,
		scope:   scope,
		fn:      fn,
		cancel:  cancel,
		done:    make(chan struct{}),
		trigger: make(chan Trigger, 1),
	}
	s.alive.Store(true)

	go s.run(ctx)
	return s
}

// Unsubscribe stops the subscription and waits for its goroutines to exit.
// Once it returns, fn is never invoked again. It must not be called from
// inside fn, which would wait on itself; use Stop there.
func (s *Subscription) Unsubscribe() {
	s.Stop()
	<-s.done
}

// Stop stops the subscription without waiting. No snapshot is delivered after
// Stop returns, except the one whose callback is already running.
func (s *Subscription) Stop() {
	s.once.Do(func() {
		s.alive.Store(false)
		s.cancel()
	})
}

// Done is closed when the subscription loop has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Scope is the restaurant id the subscription covers, empty for all.
func (s *Subscription) Scope() string { return s.scope }

func (s *Subscription) run(ctx context.Context) {
	var wg sync.WaitGroup
	defer close(s.done)
	defer wg.Wait()
	defer s.cancel()

	if s.feed.notifier != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.listen(ctx)
		}()
	}

	var tick <-chan time.Time
	if s.feed.cfg.PollInterval > 0 {
		ticker := time.NewTicker(s.feed.cfg.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.refresh(ctx, TriggerInitial)

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.trigger:
			s.refresh(ctx, t)
		case <-tick:
			s.refresh(ctx, TriggerPoll)
		}
	}
}

// kick schedules a refresh. A refresh already pending absorbs the new one.
func (s *Subscription) kick(t Trigger) {
	select {
	case s.trigger <- t:
	default:
	}
}

// listen keeps the push channel open, reconnecting with backoff whenever it
// drops. Any connect that follows a failure or a drop schedules a catch-up
// refresh for the changes made while the channel was down.
func (s *Subscription) listen(ctx context.Context) {
	log := s.feed.logger.With("scope", s.scope)
	bo := backoff{min: s.feed.cfg.MinBackoff, max: s.feed.cfg.MaxBackoff}
	missed := false

	for {
		events, stop, err := s.open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			missed = true
			delay := bo.next()
			log.WarnContext(ctx, "push channel listen failed", "error", err, "retry_in", delay)
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		if missed {
			log.InfoContext(ctx, "push channel reconnected")
			s.kick(TriggerReconnect)
			missed = false
		}
		bo.reset()

		for range events {
			s.kick(TriggerPush)
		}
		stop()

		if ctx.Err() != nil {
			return
		}

		missed = true
		delay := bo.next()
		log.WarnContext(ctx, "push channel dropped", "error", ErrChannelDisconnected, "retry_in", delay)
		if !sleep(ctx, delay) {
			return
		}
	}
}

// open runs one Listen attempt bounded by the configured timeout. The stream
// lives on its own child context, so a Listen that completes after the
// timeout is released instead of lingering for the life of the subscription.
func (s *Subscription) open(ctx context.Context) (<-chan Event, context.CancelFunc, error) {
	lctx, stop := context.WithCancel(ctx)

	type result struct {
		ch  <-chan Event
		err error
	}
	res := make(chan result, 1)
	go func() {
		ch, err := s.feed.notifier.Listen(lctx, s.scope)
		res <- result{ch, err}
	}()

	t := time.NewTimer(s.feed.cfg.Timeout)
	defer t.Stop()
	select {
	case r := <-res:
		if r.err != nil {
			stop()
			return nil, nil, r.err
		}
		return r.ch, stop, nil
	case <-t.C:
		stop()
		return nil, nil, errors.New("changefeed: listen timed out")
	case <-ctx.Done():
		stop()
		return nil, nil, ctx.Err()
	}
}

func (s *Subscription) refresh(ctx context.Context, t Trigger) {
	qctx, cancel := context.WithTimeout(ctx, s.feed.cfg.Timeout)
	defer cancel()

	orders, err := s.feed.store.Query(qctx, ports.Filter{RestaurantID: s.scope, Limit: s.feed.cfg.Limit})
	if err != nil {
		if ctx.Err() == nil {
			s.feed.logger.WarnContext(ctx, "snapshot refresh failed", "scope", s.scope, "trigger", t, "error", err)
		}
		return
	}

	if !s.alive.Load() {
		return
	}
	s.fn(Snapshot{Scope: s.scope, Orders: orders, Trigger: t, TakenAt: time.Now().UTC()})
}
