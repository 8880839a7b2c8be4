package httpx

import (
	"time"

	"github.com/jcmexdev/kitchen-orders/internal/board"
	"github.com/jcmexdev/kitchen-orders/internal/changefeed"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/app"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/statuslog"
)

// Amounts travel as integer centavos.

type CreateOrderRequest struct {
	RestaurantID    string        `json:"restaurant_id"`
	RestaurantName  string        `json:"restaurant_name"`
	CustomerName    string        `json:"customer_name"`
	CustomerPhone   string        `json:"customer_phone"`
	CustomerAddress string        `json:"customer_address"`
	Items           []ItemRequest `json:"items"`
	DiscountAmount  int64         `json:"discount_amount"`
	DeliveryFee     int64         `json:"delivery_fee"`
	PaymentMethod   string        `json:"payment_method"`
	AwaitPayment    bool          `json:"await_payment"`
}

type ItemRequest struct {
	ProductID   string   `json:"product_id"`
	Size        string   `json:"size,omitempty"`
	AddOnIDs    []string `json:"addon_ids,omitempty"`
	HalfIDs     []string `json:"half_ids,omitempty"`
	Name        string   `json:"name"`
	UnitPrice   int64    `json:"unit_price"`
	Quantity    int      `json:"quantity"`
	Description string   `json:"description,omitempty"`
}

func (r ItemRequest) toDomain() domain.Item {
	return domain.Item{
		Key:         domain.NewItemKey(r.ProductID, r.Size, r.AddOnIDs, r.HalfIDs),
		Name:        r.Name,
		UnitPrice:   domain.Money(r.UnitPrice),
		Quantity:    r.Quantity,
		Description: r.Description,
	}
}

func (r CreateOrderRequest) toNewOrder() app.NewOrder {
	items := make([]domain.Item, len(r.Items))
	for i, it := range r.Items {
		items[i] = it.toDomain()
	}
	return app.NewOrder{
		RestaurantID:    r.RestaurantID,
		RestaurantName:  r.RestaurantName,
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		CustomerAddress: r.CustomerAddress,
		Items:           items,
		DiscountAmount:  domain.Money(r.DiscountAmount),
		DeliveryFee:     domain.Money(r.DeliveryFee),
		PaymentMethod:   r.PaymentMethod,
		AwaitPayment:    r.AwaitPayment,
	}
}

type StatusRequest struct {
	Status string `json:"status"`
}

type PaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
}

type PartialPaymentRequest struct {
	Amount int64  `json:"amount"`
	Method string `json:"method"`
}

// EditRequest applies its operations in order and saves once.
type EditRequest struct {
	Ops []EditOp `json:"ops"`
}

type EditOp struct {
	// Op is "set_quantity", "add" or "remove".
	Op       string       `json:"op"`
	LineID   string       `json:"line_id,omitempty"`
	Quantity int          `json:"quantity,omitempty"`
	Item     *ItemRequest `json:"item,omitempty"`
}

// PaymentWebhookRequest is the gateway notification body.
type PaymentWebhookRequest struct {
	EventID           string `json:"event_id"`
	ExternalReference string `json:"external_reference"`
	Status            string `json:"status"`
}

type OrderResponse struct {
	ID              string            `json:"id"`
	RestaurantID    string            `json:"restaurant_id"`
	RestaurantName  string            `json:"restaurant_name"`
	CustomerName    string            `json:"customer_name"`
	CustomerPhone   string            `json:"customer_phone,omitempty"`
	CustomerAddress string            `json:"customer_address,omitempty"`
	Items           []domain.Item     `json:"items"`
	Subtotal        int64             `json:"subtotal"`
	DiscountAmount  int64             `json:"discount_amount"`
	DeliveryFee     int64             `json:"delivery_fee"`
	TotalPrice      int64             `json:"total_price"`
	TotalDisplay    string            `json:"total_display"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	PaymentMethod   string            `json:"payment_method"`
	Payments        []PaymentResponse `json:"payments,omitempty"`
	Balance         int64             `json:"balance"`
	NextStatuses    []string          `json:"next_statuses"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type PaymentResponse struct {
	ID     string    `json:"id"`
	Amount int64     `json:"amount"`
	Method string    `json:"method"`
	PaidAt time.Time `json:"paid_at"`
}

type HistoryEntryResponse struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedBy string    `json:"changed_by"`
	Notes     string    `json:"notes,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

type ColumnResponse struct {
	Status string          `json:"status"`
	Orders []OrderResponse `json:"orders"`
	Total  int64           `json:"total"`
}

type AccountResponse struct {
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	Outstanding   int64           `json:"outstanding"`
	Orders        []OrderResponse `json:"orders"`
}

type SettleResponse struct {
	Settled int   `json:"settled"`
	Amount  int64 `json:"amount"`
}

type SnapshotResponse struct {
	Scope   string          `json:"scope"`
	Trigger string          `json:"trigger"`
	TakenAt time.Time       `json:"taken_at"`
	Orders  []OrderResponse `json:"orders"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapOrderToResponse(o *domain.Order) OrderResponse {
	next := o.Status.Next()
	nextStrs := make([]string, len(next))
	for i, st := range next {
		nextStrs[i] = string(st)
	}

	var payments []PaymentResponse
	for _, p := range o.Payments {
		payments = append(payments, PaymentResponse{ID: p.ID, Amount: int64(p.Amount), Method: p.Method, PaidAt: p.PaidAt})
	}

	items := o.Items
	if items == nil {
		items = []domain.Item{}
	}

	return OrderResponse{
		ID:              o.ID,
		RestaurantID:    o.RestaurantID,
		RestaurantName:  o.RestaurantName,
		CustomerName:    o.CustomerName,
		CustomerPhone:   o.CustomerPhone,
		CustomerAddress: o.CustomerAddress,
		Items:           items,
		Subtotal:        int64(o.Subtotal),
		DiscountAmount:  int64(o.DiscountAmount),
		DeliveryFee:     int64(o.DeliveryFee),
		TotalPrice:      int64(o.TotalPrice),
		TotalDisplay:    o.TotalPrice.String(),
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		PaymentMethod:   o.PaymentMethod,
		Payments:        payments,
		Balance:         int64(o.Balance()),
		NextStatuses:    nextStrs,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func mapOrders(orders []domain.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i := range orders {
		out[i] = mapOrderToResponse(&orders[i])
	}
	return out
}

func mapHistory(entries []statuslog.Entry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntryResponse{
			From:      string(e.From),
			To:        string(e.To),
			ChangedBy: e.ChangedBy,
			Notes:     e.Notes,
			TraceID:   e.TraceID,
			ChangedAt: e.ChangedAt,
		}
	}
	return out
}

func mapColumns(cols []board.Column) []ColumnResponse {
	out := make([]ColumnResponse, len(cols))
	for i, c := range cols {
		out[i] = ColumnResponse{Status: string(c.Status), Orders: mapOrders(c.Orders), Total: int64(c.Total)}
	}
	return out
}

func mapAccounts(accounts []app.Account) []AccountResponse {
	out := make([]AccountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = AccountResponse{
			CustomerName:  a.CustomerName,
			CustomerPhone: a.CustomerPhone,
			Outstanding:   int64(a.Outstanding),
			Orders:        mapOrders(a.Orders),
		}
	}
	return out
}

func mapSnapshot(s changefeed.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		Scope:   s.Scope,
		Trigger: string(s.Trigger),
		TakenAt: s.TakenAt,
		Orders:  mapOrders(s.Orders),
	}
}
