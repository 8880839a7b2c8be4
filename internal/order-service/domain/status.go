package domain

// Status is the fulfillment state of an order.
type Status string

const (
	StatusAwaitingPayment Status = "Aguardando Pagamento"
	StatusNew             Status = "Novo Pedido"
	StatusPreparing       Status = "Preparando"
	StatusOnTheWay        Status = "A Caminho"
	StatusDelivered       Status = "Entregue"
	StatusCancelled       Status = "Cancelado"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusAwaitingPayment,
	StatusNew,
	StatusPreparing,
	StatusOnTheWay,
	StatusDelivered,
	StatusCancelled,
}

// EditableStatuses are the statuses in which line items may still change.
var EditableStatuses = []Status{StatusNew, StatusPreparing}

// edges is the complete transition table. Anything not listed is rejected.
var edges = map[Status][]Status{
	StatusAwaitingPayment: {StatusNew, StatusCancelled},
	StatusNew:             {StatusPreparing, StatusCancelled},
	StatusPreparing:       {StatusOnTheWay},
	StatusOnTheWay:        {StatusDelivered},
	StatusDelivered:       {},
	StatusCancelled:       {},
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := edges[s]
	return ok
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Editable reports whether orders in s accept line item edits.
func (s Status) Editable() bool {
	for _, e := range EditableStatuses {
		if e == s {
			return true
		}
	}
	return false
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	next := edges[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransition checks if from->to is one of the allowed edges.
func CanTransition(from, to Status) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentStatus tracks whether money has been confirmed. It is independent of Status.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
)

// Valid reports whether p is paid or pending.
func (p PaymentStatus) Valid() bool {
	return p == PaymentPaid || p == PaymentPending
}
