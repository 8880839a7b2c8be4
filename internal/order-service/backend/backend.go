// Package backend opens the store, status log and push channel selected by
// the configuration. Both the API server and the kitchen terminal use it, so
// they always agree on where orders live and how changes are announced.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jcmexdev/kitchen-orders/internal/changefeed"
	"github.com/jcmexdev/kitchen-orders/internal/changefeed/redisnotify"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/adapters/postgres"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/adapters/rabbitmq"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/adapters/sqlite"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/app"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
	"github.com/jcmexdev/kitchen-orders/internal/pkg/cache"
	"github.com/jcmexdev/kitchen-orders/internal/pkg/config"
	"github.com/jcmexdev/kitchen-orders/internal/statuslog"
	statussqlite "github.com/jcmexdev/kitchen-orders/internal/statuslog/sqlite"
)

// Backend bundles the storage side of the service.
type Backend struct {
	Store     ports.OrderStore
	Lister    changefeed.Lister
	StatusLog statuslog.Repository
	// Notifier is nil when nothing can push changes; feeds then rely on polling.
	Notifier changefeed.Notifier
	// Redis is nil when REDIS_ADDR is empty.
	Redis *redis.Client
	// Publisher is nil when RABBITMQ_URL is empty.
	Publisher ports.StatusPublisher

	closers []func() error
}

// Open wires the backend for cfg. With sqlite and no Redis, change events
// travel through an in-process broadcaster and only reach feeds of the same
// process.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{}

	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("backend: redis ping %s: %w", cfg.RedisAddr, err)
		}
		b.Redis = client
		b.closers = append(b.closers, client.Close)
	}

	if cfg.RabbitMQURL != "" {
		pub, err := rabbitmq.Dial(ctx, cfg.RabbitMQURL, logger)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Publisher = pub
		b.closers = append(b.closers, func() error {
			pub.Close()
			return nil
		})
	}

	var err error
	switch cfg.Store {
	case "postgres":
		err = b.openPostgres(ctx, cfg, logger)
	default:
		err = b.openSQLite(cfg, logger)
	}
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	logger.InfoContext(ctx, "backend ready", "store", cfg.Store, "redis", b.Redis != nil, "push", b.Notifier != nil)
	return b, nil
}

func (b *Backend) openSQLite(cfg *config.Config, logger *slog.Logger) error {
	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, store.Close)
	store.WithLogger(logger.With("component", "sqlite"))

	if b.Redis != nil {
		n := redisnotify.New(b.Redis, logger)
		store.WithPublisher(n)
		b.Notifier = n
	} else {
		bc := changefeed.NewBroadcaster()
		store.WithPublisher(bc)
		b.Notifier = bc
	}

	repo, err := statussqlite.New(store.DB())
	if err != nil {
		return err
	}

	b.Store, b.Lister, b.StatusLog = store, store, repo
	return nil
}

func (b *Backend) openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, closePool(pool))

	store := postgres.NewStore(pool)
	// the orders trigger notifies on every write, whichever process made it
	b.Store, b.Lister = store, store
	b.StatusLog = postgres.NewStatusLog(pool)
	listener := postgres.NewListener(pool, logger)
	b.closers = append(b.closers, listener.Close)
	b.Notifier = listener
	return nil
}

func closePool(pool *pgxpool.Pool) func() error {
	return func() error {
		pool.Close()
		return nil
	}
}

// EngineOptions wires the engine to the status log and, when configured, the
// status update exchange.
func (b *Backend) EngineOptions(cfg *config.Config, logger *slog.Logger) []app.EngineOption {
	opts := []app.EngineOption{
		app.WithStatusLog(b.StatusLog),
		app.WithLogger(logger),
		app.WithTimeout(cfg.RequestTimeout),
	}
	if b.Publisher != nil {
		opts = append(opts, app.WithStatusPublisher(b.Publisher))
	}
	return opts
}

// IdempotencyGuard returns the Redis guard, or nil without Redis.
func (b *Backend) IdempotencyGuard(cfg *config.Config) ports.IdempotencyGuard {
	if b.Redis == nil {
		return nil
	}
	return cache.NewGuard(b.Redis, cfg.ServiceName, cfg.IdempotencyTTL)
}

// Close releases everything in reverse opening order.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}
