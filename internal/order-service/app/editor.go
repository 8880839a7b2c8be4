package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
)

// Editor opens editing sessions on orders that are still being prepared.
type Editor struct {
	store   ports.OrderStore
	logger  *slog.Logger
	timeout time.Duration
	newID   func() string
}

func NewEditor(store ports.OrderStore, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{
		store:   store,
		logger:  logger.With("component", "editor"),
		timeout: DefaultTimeout,
		newID:   uuid.NewString,
	}
}

// EditSession is a working copy of an order's items. Nothing is written until
// Save. A session is not safe for concurrent use.
type EditSession struct {
	editor *Editor
	order  *domain.Order
	items  []domain.Item
}

// Open loads the order and starts a session. Only orders in an editable
// status can be opened.
func (ed *Editor) Open(ctx context.Context, orderID string) (*EditSession, error) {
	ctx, cancel := context.WithTimeout(ctx, ed.timeout)
	defer cancel()

	o, err := ed.store.Get(ctx, orderID)
	if err != nil {
		return nil, storeErr("get order", err)
	}
	if !o.Status.Editable() {
		return nil, fmt.Errorf("%w: order %s is %q", domain.ErrNotEditable, orderID, o.Status)
	}

	return &EditSession{
		editor: ed,
		order:  o,
		items:  domain.CloneItems(o.Items),
	}, nil
}

// Order is the order as it was when the session was opened.
func (s *EditSession) Order() *domain.Order { return s.order.Clone() }

// Items returns a copy of the working items.
func (s *EditSession) Items() []domain.Item { return domain.CloneItems(s.items) }

// SetQuantity changes a line's quantity. Zero or less removes the line.
func (s *EditSession) SetQuantity(lineID string, qty int) error {
	i := s.index(lineID)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrItemNotFound, lineID)
	}
	if qty <= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
		return nil
	}
	s.items[i].Quantity = qty
	return nil
}

// AddItem adds a line, or raises the quantity of the line with the same key.
func (s *EditSession) AddItem(it domain.Item) error {
	if err := validateItem(it); err != nil {
		return err
	}
	s.items = mergeItem(s.items, it, s.editor.newID)
	return nil
}

func (s *EditSession) RemoveItem(lineID string) error {
	return s.SetQuantity(lineID, 0)
}

func (s *EditSession) Subtotal() domain.Money {
	return domain.Subtotal(s.items)
}

// TotalPrice keeps the order's original discount and delivery fee.
func (s *EditSession) TotalPrice() domain.Money {
	return domain.TotalPrice(s.Subtotal(), s.order.DiscountAmount, s.order.DeliveryFee)
}

// Save writes the items and the recomputed totals in one guarded update. If
// the order left the editable statuses since Open, nothing is written and
// ErrNotEditable is returned.
func (s *EditSession) Save(ctx context.Context) (*domain.Order, error) {
	if len(s.items) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	ctx, cancel := context.WithTimeout(ctx, s.editor.timeout)
	defer cancel()

	subtotal, total := s.Subtotal(), s.TotalPrice()
	applied, err := s.editor.store.ReplaceItems(ctx, s.order.ID, domain.EditableStatuses, s.items, subtotal, total)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "replace items", Err: err}
	}

	if !applied {
		current, err := s.editor.store.Get(ctx, s.order.ID)
		if err != nil {
			return nil, storeErr("get order", err)
		}
		return nil, fmt.Errorf("%w: order %s moved to %q", domain.ErrNotEditable, s.order.ID, current.Status)
	}

	saved := s.order.Clone()
	saved.Items = domain.CloneItems(s.items)
	saved.Subtotal = subtotal
	saved.TotalPrice = total

	s.editor.logger.InfoContext(ctx, "order items saved",
		"order_id", saved.ID,
		"lines", len(saved.Items),
		"total", total.String(),
	)
	return saved, nil
}

func (s *EditSession) index(lineID string) int {
	for i := range s.items {
		if s.items[i].LineID == lineID {
			return i
		}
	}
	return -1
}
