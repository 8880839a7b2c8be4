package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
	"github.com/jcmexdev/kitchen-orders/internal/pkg/interceptors"
	"github.com/jcmexdev/kitchen-orders/internal/pkg/interceptors/constants"
	"github.com/jcmexdev/kitchen-orders/internal/statuslog"
)

// DefaultTimeout bounds a single engine operation, store round trips included.
const DefaultTimeout = 15 * time.Second

const tracerName = "github.com/jcmexdev/kitchen-orders/internal/order-service/app"

// Engine owns every status change. The store is the arbiter between
// concurrent writers: transitions are compare-and-swap on the status the
// engine last read.
type Engine struct {
	store     ports.OrderStore
	history   statuslog.Repository
	publisher ports.StatusPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
}

type EngineOption func(*Engine)

// WithStatusLog records every applied transition in repo.
func WithStatusLog(repo statuslog.Repository) EngineOption {
	return func(e *Engine) { e.history = repo }
}

// WithStatusPublisher announces applied transitions to other systems.
func WithStatusPublisher(p ports.StatusPublisher) EngineOption {
	return func(e *Engine) { e.publisher = p }
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store ports.OrderStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   store,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		timeout: DefaultTimeout,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")
	return e
}

// NewOrder is what checkout hands to the engine.
type NewOrder struct {
	RestaurantID    string
	RestaurantName  string
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	Items           []domain.Item
	DiscountAmount  domain.Money
	DeliveryFee     domain.Money
	PaymentMethod   string
	// AwaitPayment starts the order in "Aguardando Pagamento" until the
	// gateway confirms an online payment.
	AwaitPayment bool
}

// PlaceOrder validates and stores a new order. Lines with the same item key
// are merged.
func (e *Engine) PlaceOrder(ctx context.Context, in NewOrder) (*domain.Order, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.PlaceOrder", trace.WithAttributes(
		attribute.String("restaurant.id", in.RestaurantID),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := validateNewOrder(in); err != nil {
		return nil, fail(span, err)
	}

	var items []domain.Item
	for _, it := range in.Items {
		items = mergeItem(items, it, e.newID)
	}

	o := &domain.Order{
		ID:              e.newID(),
		RestaurantID:    in.RestaurantID,
		RestaurantName:  in.RestaurantName,
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.CustomerPhone,
		CustomerAddress: in.CustomerAddress,
		Items:           items,
		DiscountAmount:  in.DiscountAmount,
		DeliveryFee:     in.DeliveryFee,
		PaymentMethod:   in.PaymentMethod,
		Status:          domain.StatusNew,
		PaymentStatus:   domain.PaymentPaid,
		CreatedAt:       e.now().UTC(),
	}
	if in.AwaitPayment {
		o.Status = domain.StatusAwaitingPayment
	}
	if in.AwaitPayment || o.OnAccount() {
		o.PaymentStatus = domain.PaymentPending
	}
	o.Recompute()

	if err := e.store.Insert(ctx, o); err != nil {
		return nil, fail(span, &domain.PersistenceError{Op: "insert order", Err: err})
	}

	span.SetAttributes(attribute.String("order.id", o.ID))
	e.logger.InfoContext(ctx, "order placed",
		"order_id", o.ID,
		"restaurant_id", o.RestaurantID,
		"status", o.Status,
		"total", o.TotalPrice.String(),
		"request_id", requestID(ctx),
	)
	return o, nil
}

// Order returns the order if actor may see it.
func (e *Engine) Order(ctx context.Context, id string, actor domain.Actor) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	o, err := e.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(o.RestaurantID) {
		return nil, fmt.Errorf("%w: %s on order %s", domain.ErrForbidden, actor, id)
	}
	return o, nil
}

// ApplyStatusTransition moves an order to requested.
//
// Terminal orders reject every request, including their own status.
// Otherwise requesting the current status is a no-op. When another writer changes the
// order between our read and our write, the write is not applied and the
// caller gets the order as it is now if it already reached requested, or an
// *InvalidTransitionError otherwise. Store failures come back as
// *PersistenceError and are not retried.
func (e *Engine) ApplyStatusTransition(ctx context.Context, id string, requested domain.Status, actor domain.Actor) (*domain.Order, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.ApplyStatusTransition", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status.requested", string(requested)),
		attribute.String("actor", actor.String()),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	o, err := e.get(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	if !actor.CanAccess(o.RestaurantID) {
		return nil, fail(span, fmt.Errorf("%w: %s on order %s", domain.ErrForbidden, actor, id))
	}

	from := o.Status
	if from.Terminal() {
		return nil, fail(span, &domain.InvalidTransitionError{From: from, To: requested})
	}
	if from == requested {
		return o, nil
	}
	if !domain.CanTransition(from, requested) {
		return nil, fail(span, &domain.InvalidTransitionError{From: from, To: requested})
	}
	if !actor.MayTransition(from, requested) {
		return nil, fail(span, fmt.Errorf("%w: %s may not move %q to %q", domain.ErrForbidden, actor, from, requested))
	}

	applied, err := e.store.UpdateStatus(ctx, id, from, requested)
	if err != nil {
		return nil, fail(span, &domain.PersistenceError{Op: "update status", Err: err})
	}

	if !applied {
		// lost the race; report what the winner left behind
		current, err := e.get(ctx, id)
		if err != nil {
			return nil, fail(span, err)
		}
		if current.Status == requested {
			return current, nil
		}
		return nil, fail(span, &domain.InvalidTransitionError{From: current.Status, To: requested})
	}

	o.Status = requested
	o.UpdatedAt = e.now().UTC()

	e.logger.InfoContext(ctx, "order status changed",
		"order_id", id,
		"from", from,
		"to", requested,
		"actor", actor.String(),
		"request_id", requestID(ctx),
	)
	e.afterTransition(ctx, o, from, actor)

	return o, nil
}

// afterTransition writes the audit row and publishes the update. Both are
// best effort: the transition is already committed.
func (e *Engine) afterTransition(ctx context.Context, o *domain.Order, from domain.Status, actor domain.Actor) {
	if e.history != nil {
		entry := statuslog.NewEntry(ctx, o.ID, from, o.Status, actor, "")
		if err := e.history.Append(ctx, entry); err != nil {
			e.logger.ErrorContext(ctx, "status log append failed", "order_id", o.ID, "error", err)
		}
	}

	if e.publisher != nil {
		update := ports.NewStatusUpdate(o, from, actor, e.now())
		if err := e.publisher.PublishStatus(ctx, update); err != nil {
			e.logger.WarnContext(ctx, "status update publish failed", "order_id", o.ID, "error", err)
		}
	}
}

// RecordPayment sets the payment status only. It never touches the
// fulfillment status.
func (e *Engine) RecordPayment(ctx context.Context, id string, status domain.PaymentStatus) error {
	ctx, span := e.tracer.Start(ctx, "Engine.RecordPayment", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("payment.status", string(status)),
	))
	defer span.End()

	if !status.Valid() {
		return fail(span, fmt.Errorf("%w: unknown payment status %q", domain.ErrInvalidOrder, status))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.store.UpdatePaymentStatus(ctx, id, status); err != nil {
		return fail(span, storeErr("update payment status", err))
	}

	e.logger.InfoContext(ctx, "payment status recorded", "order_id", id, "payment_status", status)
	return nil
}

// AddPartialPayment adds a payment to an order's tab. Once the tab is fully
// paid the payment status becomes paid.
func (e *Engine) AddPartialPayment(ctx context.Context, id string, amount domain.Money, method string) (*domain.Order, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.AddPartialPayment", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.Int64("payment.amount", int64(amount)),
	))
	defer span.End()

	if amount <= 0 {
		return nil, fail(span, fmt.Errorf("%w: payment amount must be positive", domain.ErrInvalidOrder))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	o, err := e.get(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	if o.Status == domain.StatusCancelled {
		return nil, fail(span, fmt.Errorf("%w: order %s is cancelled", domain.ErrInvalidOrder, id))
	}

	p := domain.PartialPayment{ID: e.newID(), Amount: amount, Method: method, PaidAt: e.now().UTC()}
	o.Payments = append(o.Payments, p)

	// a tab payment never downgrades an order that is already paid
	status := o.PaymentStatus
	if o.Balance() == 0 {
		status = domain.PaymentPaid
	}
	if err := e.store.AppendPayment(ctx, id, p, status); err != nil {
		return nil, fail(span, &domain.PersistenceError{Op: "append payment", Err: err})
	}

	// a concurrent payment may have closed the tab without either side seeing it
	fresh, err := e.get(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	if fresh.Balance() == 0 && fresh.PaymentStatus != domain.PaymentPaid {
		if err := e.store.UpdatePaymentStatus(ctx, id, domain.PaymentPaid); err != nil {
			return nil, fail(span, &domain.PersistenceError{Op: "update payment status", Err: err})
		}
		fresh.PaymentStatus = domain.PaymentPaid
	}

	e.logger.InfoContext(ctx, "tab payment added",
		"order_id", id,
		"amount", amount.String(),
		"balance", fresh.Balance().String(),
	)
	return fresh, nil
}

// History returns the status log of an order, oldest first.
func (e *Engine) History(ctx context.Context, id string) ([]statuslog.Entry, error) {
	if e.history == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	entries, err := e.history.List(ctx, id)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list status log", Err: err}
	}
	return entries, nil
}

// get reads an order, keeping ErrOrderNotFound and wrapping anything else as
// a persistence failure.
func (e *Engine) get(ctx context.Context, id string) (*domain.Order, error) {
	o, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, storeErr("get order", err)
	}
	return o, nil
}

func validateNewOrder(in NewOrder) error {
	switch {
	case in.RestaurantID == "":
		return fmt.Errorf("%w: restaurant id is required", domain.ErrInvalidOrder)
	case len(in.Items) == 0:
		return fmt.Errorf("%w: %w", domain.ErrInvalidOrder, domain.ErrEmptyOrder)
	case in.DiscountAmount < 0 || in.DeliveryFee < 0:
		return fmt.Errorf("%w: discount and delivery fee must not be negative", domain.ErrInvalidOrder)
	}
	for _, it := range in.Items {
		if err := validateItem(it); err != nil {
			return err
		}
	}
	return nil
}

func validateItem(it domain.Item) error {
	switch {
	case it.Key.ProductID == "":
		return fmt.Errorf("%w: item %q has no product id", domain.ErrInvalidOrder, it.Name)
	case it.Quantity < 1:
		return fmt.Errorf("%w: item %q quantity must be at least 1", domain.ErrInvalidOrder, it.Name)
	case it.UnitPrice < 0:
		return fmt.Errorf("%w: item %q has a negative price", domain.ErrInvalidOrder, it.Name)
	}
	return nil
}

// mergeItem adds it to items, folding it into an existing line with the same key.
func mergeItem(items []domain.Item, it domain.Item, newID func() string) []domain.Item {
	it.Key = domain.NewItemKey(it.Key.ProductID, it.Key.Size, it.Key.AddOnIDs, it.Key.HalfIDs)
	for i := range items {
		if items[i].Key.Equal(it.Key) {
			items[i].Quantity += it.Quantity
			return items
		}
	}
	if it.LineID == "" {
		it.LineID = newID()
	}
	return append(items, it)
}

func requestID(ctx context.Context) string {
	return interceptors.GetMetadataValue(ctx, constants.HeaderXRequestId)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
