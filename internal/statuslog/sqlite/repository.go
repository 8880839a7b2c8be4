// Package sqlite stores the status log in the same SQLite file as the orders.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jcmexdev/kitchen-orders/internal/statuslog"
)

const schema = `
CREATE TABLE IF NOT EXISTS order_status_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id    TEXT    NOT NULL,
    from_status TEXT    NOT NULL DEFAULT '',
    to_status   TEXT    NOT NULL,
    changed_by  TEXT    NOT NULL DEFAULT '',
    notes       TEXT,

    -- W3C ids of the span that applied the transition
    trace_id    TEXT    NOT NULL DEFAULT '',
    span_id     TEXT    NOT NULL DEFAULT '',

    changed_at  TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_status_log_order ON order_status_log(order_id, changed_at);
CREATE INDEX IF NOT EXISTS idx_order_status_log_trace ON order_status_log(trace_id);
`

const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Repository struct {
	db *sql.DB
}

var _ statuslog.Repository = (*Repository)(nil)

// New applies the schema on db, typically the order store's handle.
func New(db *sql.DB) (*Repository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlite: apply status log schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Append(ctx context.Context, e *statuslog.Entry) error {
	const q = `
		INSERT INTO order_status_log
			(order_id, from_status, to_status, changed_by, notes, trace_id, span_id, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, q,
		e.OrderID,
		string(e.From),
		string(e.To),
		e.ChangedBy,
		nullableString(e.Notes),
		e.TraceID,
		e.SpanID,
		e.ChangedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append status log for %q: %w", e.OrderID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

func (r *Repository) List(ctx context.Context, orderID string) ([]statuslog.Entry, error) {
	const q = `
		SELECT id, order_id, from_status, to_status, changed_by, COALESCE(notes, ''),
		       trace_id, span_id, changed_at
		FROM   order_status_log
		WHERE  order_id = ?
		ORDER  BY changed_at, id`

	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list status log for %q: %w", orderID, err)
	}
	defer rows.Close()

	var out []statuslog.Entry
	for rows.Next() {
		var (
			e         statuslog.Entry
			changedAt string
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &e.From, &e.To, &e.ChangedBy, &e.Notes, &e.TraceID, &e.SpanID, &changedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan status log: %w", err)
		}
		if e.ChangedAt, err = time.Parse(time.RFC3339Nano, changedAt); err != nil {
			return nil, fmt.Errorf("sqlite: parse time %q: %w", changedAt, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// nullableString stores NULL instead of an empty note.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
