package ports

import (
	"context"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
)

// DefaultQueryLimit bounds snapshot queries when the filter sets no limit.
const DefaultQueryLimit = 100

// Filter selects orders. An empty RestaurantID means every restaurant (admin scope).
type Filter struct {
	RestaurantID  string
	PaymentMethod string
	PaymentStatus domain.PaymentStatus
	Statuses      []domain.Status
	// Limit caps the result; zero means DefaultQueryLimit. Results are newest first.
	Limit int
}

// OrderStore is the single source of truth for orders.
// Implementations return domain.ErrOrderNotFound for unknown ids.
type OrderStore interface {
	Insert(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	Query(ctx context.Context, filter Filter) ([]domain.Order, error)

	// UpdateStatus is a compare-and-swap: it writes next only while the stored
	// status still equals expected. applied=false means someone else won.
	UpdateStatus(ctx context.Context, id string, expected, next domain.Status) (applied bool, err error)

	UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error

	// ReplaceItems writes items, subtotal and total in a single update, guarded by
	// the order still being in one of the editable statuses.
	ReplaceItems(ctx context.Context, id string, editable []domain.Status, items []domain.Item, subtotal, total domain.Money) (applied bool, err error)

	// AppendPayment adds a tab payment and sets the payment status in one transaction.
	AppendPayment(ctx context.Context, id string, payment domain.PartialPayment, status domain.PaymentStatus) error
}
