package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/statuslog"
)

// StatusLog stores transition entries in order_status_log.
type StatusLog struct {
	pool *pgxpool.Pool
}

var _ statuslog.Repository = (*StatusLog)(nil)

func NewStatusLog(pool *pgxpool.Pool) *StatusLog {
	return &StatusLog{pool: pool}
}

func (r *StatusLog) Append(ctx context.Context, e *statuslog.Entry) error {
	var notes *string
	if e.Notes != "" {
		notes = &e.Notes
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO order_status_log
			(order_id, from_status, to_status, changed_by, notes, trace_id, span_id, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		e.OrderID, string(e.From), string(e.To), e.ChangedBy, notes, e.TraceID, e.SpanID, e.ChangedAt.UTC(),
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("postgres: append status log for %q: %w", e.OrderID, err)
	}
	return nil
}

func (r *StatusLog) List(ctx context.Context, orderID string) ([]statuslog.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, from_status, to_status, changed_by, COALESCE(notes, ''),
		       trace_id, span_id, changed_at
		FROM   order_status_log
		WHERE  order_id = $1
		ORDER  BY changed_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list status log for %q: %w", orderID, err)
	}
	defer rows.Close()

	var out []statuslog.Entry
	for rows.Next() {
		var (
			e        statuslog.Entry
			from, to string
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &from, &to, &e.ChangedBy, &e.Notes, &e.TraceID, &e.SpanID, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan status log: %w", err)
		}
		e.From, e.To = domain.Status(from), domain.Status(to)
		out = append(out, e)
	}
	return out, rows.Err()
}
