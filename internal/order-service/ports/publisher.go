package ports

import (
	"context"
	"time"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
)

// StatusUpdate is broadcast after a status transition has been committed.
type StatusUpdate struct {
	OrderID      string    `json:"order_id"`
	RestaurantID string    `json:"restaurant_id"`
	OldStatus    string    `json:"old_status"`
	NewStatus    string    `json:"new_status"`
	ChangedBy    string    `json:"changed_by"`
	Timestamp    time.Time `json:"timestamp"`
}

// StatusPublisher fans status updates out to other systems (customer tracking,
// couriers). Publishing happens after commit; failures never undo a transition.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, update StatusUpdate) error
}

// IdempotencyGuard remembers keys that were already processed.
type IdempotencyGuard interface {
	// FirstSeen records key and reports true the first time it is seen.
	FirstSeen(ctx context.Context, key string) (bool, error)
	// Forget drops key so a failed delivery can be retried.
	Forget(ctx context.Context, key string) error
}

// NewStatusUpdate builds the message for a committed transition.
func NewStatusUpdate(order *domain.Order, from domain.Status, actor domain.Actor, at time.Time) StatusUpdate {
	return StatusUpdate{
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		OldStatus:    string(from),
		NewStatus:    string(order.Status),
		ChangedBy:    actor.String(),
		Timestamp:    at.UTC(),
	}
}
