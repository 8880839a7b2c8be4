// Package sqlite is the embedded order store, backed by the pure-Go SQLite driver.
//
// WAL mode lets terminals keep reading snapshots while the engine writes.
// After every committed write the store publishes a change event so that
// subscribed change feeds refresh.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jcmexdev/kitchen-orders/internal/changefeed"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"

	// "sqlite" driver, no CGO.
	_ "modernc.org/sqlite"
)

// Store implements ports.OrderStore on SQLite.
type Store struct {
	db        *sql.DB
	publisher changefeed.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.OrderStore = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
//
//	store, err := sqlite.Open("./data/orders.db")
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// one writer; SQLite serialises writes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db, logger: slog.Default(), now: time.Now}, nil
}

// WithPublisher makes the store announce committed writes on p.
func (s *Store) WithPublisher(p changefeed.Publisher) *Store {
	s.publisher = p
	return s
}

// WithLogger replaces the default logger.
func (s *Store) WithLogger(l *slog.Logger) *Store {
	s.logger = l
	return s
}

// DB exposes the handle so the status log can share the same file.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, o *domain.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("sqlite: encode items of %q: %w", o.ID, err)
	}

	now := s.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	const q = `
		INSERT INTO orders
			(id, restaurant_id, restaurant_name, customer_name, customer_phone, customer_address,
			 items, subtotal, discount_amount, delivery_fee, total_price,
			 status, payment_status, payment_method, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, q,
		o.ID, o.RestaurantID, o.RestaurantName, o.CustomerName, o.CustomerPhone, o.CustomerAddress,
		string(items), int64(o.Subtotal), int64(o.DiscountAmount), int64(o.DeliveryFee), int64(o.TotalPrice),
		string(o.Status), string(o.PaymentStatus), o.PaymentMethod,
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert order %q: %w", o.ID, err)
	}

	s.announce(ctx, changefeed.OpInsert, o.ID, o.RestaurantID)
	return nil
}

const selectOrder = `
	SELECT id, restaurant_id, restaurant_name, customer_name, customer_phone, customer_address,
	       items, subtotal, discount_amount, delivery_fee, total_price,
	       status, payment_status, payment_method, created_at, updated_at
	FROM   orders`

func (s *Store) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, selectOrder+` WHERE id = ?`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: order %q: %w", id, domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get order %q: %w", id, err)
	}

	payments, err := s.payments(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Payments = payments[o.ID]

	return o, nil
}

func (s *Store) Query(ctx context.Context, f ports.Filter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.RestaurantID != "" {
		where = append(where, "restaurant_id = ?")
		args = append(args, f.RestaurantID)
	}
	if f.PaymentMethod != "" {
		where = append(where, "payment_method = ?")
		args = append(args, f.PaymentMethod)
	}
	if f.PaymentStatus != "" {
		where = append(where, "payment_status = ?")
		args = append(args, string(f.PaymentStatus))
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}

	limit := f.Limit
	if limit <= 0 {
		limit = ports.DefaultQueryLimit
	}

	var q strings.Builder
	q.WriteString(selectOrder)
	if len(where) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(where, " AND "))
	}
	q.WriteString(" ORDER BY created_at DESC, rowid DESC LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query orders: %w", err)
	}
	defer rows.Close()

	var (
		out []domain.Order
		ids []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan order: %w", err)
		}
		out = append(out, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query orders: %w", err)
	}
	// release the single connection before the payments query
	_ = rows.Close()

	if len(ids) == 0 {
		return out, nil
	}

	payments, err := s.payments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Payments = payments[out[i].ID]
	}

	return out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, expected, next domain.Status) (bool, error) {
	const q = `UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`

	res, err := s.db.ExecContext(ctx, q, string(next), formatTime(s.now()), id, string(expected))
	if err != nil {
		return false, fmt.Errorf("sqlite: update status of %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: update status of %q: %w", id, err)
	}
	if n == 0 {
		return false, nil
	}

	s.announceByID(ctx, id)
	return true, nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	const q = `UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ?`

	res, err := s.db.ExecContext(ctx, q, string(status), formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("sqlite: update payment status of %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("sqlite: update payment status of %q: %w", id, err)
	} else if n == 0 {
		return fmt.Errorf("sqlite: order %q: %w", id, domain.ErrOrderNotFound)
	}

	s.announceByID(ctx, id)
	return nil
}

func (s *Store) ReplaceItems(ctx context.Context, id string, editable []domain.Status, items []domain.Item, subtotal, total domain.Money) (bool, error) {
	if len(editable) == 0 {
		return false, nil
	}

	encoded, err := json.Marshal(items)
	if err != nil {
		return false, fmt.Errorf("sqlite: encode items of %q: %w", id, err)
	}

	q := `UPDATE orders SET items = ?, subtotal = ?, total_price = ?, updated_at = ?
	      WHERE id = ? AND status IN (` + placeholders(len(editable)) + `)`

	args := []any{string(encoded), int64(subtotal), int64(total), formatTime(s.now()), id}
	for _, st := range editable {
		args = append(args, string(st))
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: replace items of %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: replace items of %q: %w", id, err)
	}
	if n == 0 {
		return false, nil
	}

	s.announceByID(ctx, id)
	return true, nil
}

func (s *Store) AppendPayment(ctx context.Context, id string, p domain.PartialPayment, status domain.PaymentStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin append payment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("sqlite: append payment to %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: order %q: %w", id, domain.ErrOrderNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO order_payments (id, order_id, amount, method, paid_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, id, int64(p.Amount), p.Method, formatTime(p.PaidAt))
	if err != nil {
		return fmt.Errorf("sqlite: append payment to %q: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit payment for %q: %w", id, err)
	}

	s.announceByID(ctx, id)
	return nil
}

// payments loads tab payments for ids, in payment order.
func (s *Store) payments(ctx context.Context, ids []string) (map[string][]domain.PartialPayment, error) {
	q := `SELECT id, order_id, amount, method, paid_at FROM order_payments
	      WHERE order_id IN (` + placeholders(len(ids)) + `) ORDER BY paid_at, rowid`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load payments: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.PartialPayment)
	for rows.Next() {
		var (
			p       domain.PartialPayment
			orderID string
			amount  int64
			paidAt  string
		)
		if err := rows.Scan(&p.ID, &orderID, &amount, &p.Method, &paidAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan payment: %w", err)
		}
		p.Amount = domain.Money(amount)
		if p.PaidAt, err = parseTime(paidAt); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], p)
	}
	return out, rows.Err()
}

// announceByID looks up the restaurant of id and publishes an update event.
func (s *Store) announceByID(ctx context.Context, id string) {
	if s.publisher == nil {
		return
	}
	var restaurantID string
	if err := s.db.QueryRowContext(ctx, `SELECT restaurant_id FROM orders WHERE id = ?`, id).Scan(&restaurantID); err != nil {
		s.logger.WarnContext(ctx, "change event skipped", "order_id", id, "error", err)
		return
	}
	s.announce(ctx, changefeed.OpUpdate, id, restaurantID)
}

func (s *Store) announce(ctx context.Context, op changefeed.Op, id, restaurantID string) {
	if s.publisher == nil {
		return
	}
	ev := changefeed.Event{Op: op, OrderID: id, RestaurantID: restaurantID, At: s.now().UTC()}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "publish change event failed", "order_id", id, "error", err)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*domain.Order, error) {
	var (
		o                              domain.Order
		items                          string
		subtotal, discount, fee, total int64
		status, paymentStatus          string
		createdAt, updatedAt           string
	)
	err := row.Scan(
		&o.ID, &o.RestaurantID, &o.RestaurantName, &o.CustomerName, &o.CustomerPhone, &o.CustomerAddress,
		&items, &subtotal, &discount, &fee, &total,
		&status, &paymentStatus, &o.PaymentMethod, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, fmt.Errorf("sqlite: decode items of %q: %w", o.ID, err)
	}
	o.Subtotal = domain.Money(subtotal)
	o.DiscountAmount = domain.Money(discount)
	o.DeliveryFee = domain.Money(fee)
	o.TotalPrice = domain.Money(total)
	o.Status = domain.Status(status)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)

	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
