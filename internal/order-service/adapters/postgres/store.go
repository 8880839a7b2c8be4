package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
)

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ ports.OrderStore = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

func (s *Store) Insert(ctx context.Context, o *domain.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("postgres: encode items of %q: %w", o.ID, err)
	}

	now := s.now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err = s.pool.Exec(ctx, `
		INSERT INTO orders
			(id, restaurant_id, restaurant_name, customer_name, customer_phone, customer_address,
			 items, subtotal, discount_amount, delivery_fee, total_price,
			 status, payment_status, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		o.ID, o.RestaurantID, o.RestaurantName, o.CustomerName, o.CustomerPhone, o.CustomerAddress,
		string(items), int64(o.Subtotal), int64(o.DiscountAmount), int64(o.DeliveryFee), int64(o.TotalPrice),
		string(o.Status), string(o.PaymentStatus), o.PaymentMethod, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert order %q: %w", o.ID, err)
	}
	return nil
}

const selectOrder = `
	SELECT id, restaurant_id, restaurant_name, customer_name, customer_phone, customer_address,
	       items, subtotal, discount_amount, delivery_fee, total_price,
	       status, payment_status, payment_method, created_at, updated_at
	FROM   orders`

func (s *Store) Get(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, selectOrder+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: order %q: %w", id, domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get order %q: %w", id, err)
	}

	payments, err := s.payments(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Payments = payments[o.ID]
	return o, nil
}

// buildQuery turns f into a SELECT with positional arguments.
func buildQuery(f ports.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.RestaurantID != "" {
		where = append(where, "restaurant_id = "+arg(f.RestaurantID))
	}
	if f.PaymentMethod != "" {
		where = append(where, "payment_method = "+arg(f.PaymentMethod))
	}
	if f.PaymentStatus != "" {
		where = append(where, "payment_status = "+arg(string(f.PaymentStatus)))
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(statusStrings(f.Statuses))+")")
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
	q.WriteString(" ORDER BY created_at DESC, id DESC LIMIT " + arg(limit))
	return q.String(), args
}

func (s *Store) Query(ctx context.Context, f ports.Filter) ([]domain.Order, error) {
	q, args := buildQuery(f)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query orders: %w", err)
	}
	defer rows.Close()

	var (
		out []domain.Order
		ids []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query orders: %w", err)
	}
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
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(next), s.now().UTC(), id, string(expected))
	if err != nil {
		return false, fmt.Errorf("postgres: update status of %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET payment_status = $1, updated_at = $2 WHERE id = $3`,
		string(status), s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: update payment status of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: order %q: %w", id, domain.ErrOrderNotFound)
	}
	return nil
}

func (s *Store) ReplaceItems(ctx context.Context, id string, editable []domain.Status, items []domain.Item, subtotal, total domain.Money) (bool, error) {
	if len(editable) == 0 {
		return false, nil
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return false, fmt.Errorf("postgres: encode items of %q: %w", id, err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET items = $1::jsonb, subtotal = $2, total_price = $3, updated_at = $4
		WHERE id = $5 AND status = ANY($6)`,
		string(encoded), int64(subtotal), int64(total), s.now().UTC(), id, statusStrings(editable))
	if err != nil {
		return false, fmt.Errorf("postgres: replace items of %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendPayment(ctx context.Context, id string, p domain.PartialPayment, status domain.PaymentStatus) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin append payment: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE orders SET payment_status = $1, updated_at = $2 WHERE id = $3`,
		string(status), s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: append payment to %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: order %q: %w", id, domain.ErrOrderNotFound)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO order_payments (id, order_id, amount, method, paid_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, id, int64(p.Amount), p.Method, p.PaidAt.UTC())
	if err != nil {
		return fmt.Errorf("postgres: append payment to %q: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit payment for %q: %w", id, err)
	}
	return nil
}

func (s *Store) payments(ctx context.Context, ids []string) (map[string][]domain.PartialPayment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, amount, method, paid_at FROM order_payments
		WHERE order_id = ANY($1) ORDER BY paid_at, seq`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: load payments: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.PartialPayment)
	for rows.Next() {
		var (
			p       domain.PartialPayment
			orderID string
			amount  int64
		)
		if err := rows.Scan(&p.ID, &orderID, &amount, &p.Method, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("postgres: scan payment: %w", err)
		}
		p.Amount = domain.Money(amount)
		out[orderID] = append(out[orderID], p)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                              domain.Order
		items                          []byte
		subtotal, discount, fee, total int64
		status, paymentStatus          string
	)
	err := row.Scan(
		&o.ID, &o.RestaurantID, &o.RestaurantName, &o.CustomerName, &o.CustomerPhone, &o.CustomerAddress,
		&items, &subtotal, &discount, &fee, &total,
		&status, &paymentStatus, &o.PaymentMethod, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("postgres: decode items of %q: %w", o.ID, err)
	}
	o.Subtotal = domain.Money(subtotal)
	o.DiscountAmount = domain.Money(discount)
	o.DeliveryFee = domain.Money(fee)
	o.TotalPrice = domain.Money(total)
	o.Status = domain.Status(status)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	return &o, nil
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
