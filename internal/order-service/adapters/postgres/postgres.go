// Package postgres is the server-side order store. Writes fire a trigger that
// NOTIFYs orders_changes, which Listener turns into change feed events.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Channel is the NOTIFY channel written by the orders trigger.
const Channel = "orders_changes"

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id               TEXT        PRIMARY KEY,
    restaurant_id    TEXT        NOT NULL,
    restaurant_name  TEXT        NOT NULL DEFAULT '',
    customer_name    TEXT        NOT NULL DEFAULT '',
    customer_phone   TEXT        NOT NULL DEFAULT '',
    customer_address TEXT        NOT NULL DEFAULT '',
    items            JSONB       NOT NULL DEFAULT '[]',
    subtotal         BIGINT      NOT NULL DEFAULT 0,
    discount_amount  BIGINT      NOT NULL DEFAULT 0,
    delivery_fee     BIGINT      NOT NULL DEFAULT 0,
    total_price      BIGINT      NOT NULL DEFAULT 0,
    status           TEXT        NOT NULL,
    payment_status   TEXT        NOT NULL,
    payment_method   TEXT        NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_orders_restaurant_created ON orders(restaurant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_payment ON orders(restaurant_id, payment_method, payment_status);

CREATE TABLE IF NOT EXISTS order_payments (
    id       TEXT        PRIMARY KEY,
    order_id TEXT        NOT NULL REFERENCES orders(id),
    amount   BIGINT      NOT NULL,
    method   TEXT        NOT NULL DEFAULT '',
    paid_at  TIMESTAMPTZ NOT NULL,
    seq      BIGSERIAL
);

CREATE INDEX IF NOT EXISTS idx_order_payments_order ON order_payments(order_id, paid_at);

CREATE TABLE IF NOT EXISTS order_status_log (
    id          BIGSERIAL   PRIMARY KEY,
    order_id    TEXT        NOT NULL,
    from_status TEXT        NOT NULL DEFAULT '',
    to_status   TEXT        NOT NULL,
    changed_by  TEXT        NOT NULL DEFAULT '',
    notes       TEXT,
    trace_id    TEXT        NOT NULL DEFAULT '',
    span_id     TEXT        NOT NULL DEFAULT '',
    changed_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_status_log_order ON order_status_log(order_id, changed_at);

CREATE OR REPLACE FUNCTION notify_orders_changes() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('orders_changes', json_build_object(
        'op',            lower(TG_OP),
        'order_id',      NEW.id,
        'restaurant_id', NEW.restaurant_id,
        'at',            now()
    )::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS orders_changes ON orders;
CREATE TRIGGER orders_changes
    AFTER INSERT OR UPDATE ON orders
    FOR EACH ROW EXECUTE FUNCTION notify_orders_changes();
`

// NewPool configures pgxpool from dsn, verifies connectivity and applies the schema.
func NewPool(ctx context.Context, dsn string, logger *slog.Logger) (*pgxpool.Pool, error) {
	start := time.Now()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnIdleTime = 5 * time.Minute

	// keep sessions on UTC
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `SET TIME ZONE 'UTC'`)
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}

	if logger != nil {
		logger.InfoContext(ctx, "connected to postgres", "duration_ms", time.Since(start).Milliseconds())
	}
	return pool, nil
}
