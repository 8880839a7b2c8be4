package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
)

// DefaultTTL is how long a processed key is remembered. Payment providers
// retry webhooks for about a day.
const DefaultTTL = 48 * time.Hour

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// Guard remembers processed idempotency keys in Redis with SET NX.
type Guard struct {
	client      redis.Cmdable
	serviceName string
	ttl         time.Duration
	now         func() time.Time
}

var _ ports.IdempotencyGuard = (*Guard)(nil)

func NewGuard(client redis.Cmdable, serviceName string, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{client: client, serviceName: serviceName, ttl: ttl, now: time.Now}
}

// FirstSeen records key and reports whether nobody recorded it before.
func (g *Guard) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.GenerateKey("idempotency", key), g.now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: setnx %q: %w", key, err)
	}
	return ok, nil
}

// Forget drops key so a failed delivery can be retried.
func (g *Guard) Forget(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.GenerateKey("idempotency", key)).Err(); err != nil {
		return fmt.Errorf("redis: del %q: %w", key, err)
	}
	return nil
}

func (g *Guard) GenerateKey(operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", g.serviceName, operation, key)
}
