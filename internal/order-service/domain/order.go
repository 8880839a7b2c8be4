package domain

import "time"

// AccountPaymentMethod marks deferred ("fiado") payment tracked in the debt ledger.
const AccountPaymentMethod = "Marcar na minha conta"

type Order struct {
	ID              string
	RestaurantID    string
	RestaurantName  string
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	Items           []Item
	Subtotal        Money
	DiscountAmount  Money
	DeliveryFee     Money
	TotalPrice      Money
	Status          Status
	PaymentStatus   PaymentStatus
	PaymentMethod   string
	Payments        []PartialPayment
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PartialPayment is one entry of a table tab. Entries are only ever appended.
type PartialPayment struct {
	ID     string
	Amount Money
	Method string
	PaidAt time.Time
}

// Recompute derives Subtotal and TotalPrice from the items, discount and fee.
func (o *Order) Recompute() {
	o.Subtotal = Subtotal(o.Items)
	o.TotalPrice = TotalPrice(o.Subtotal, o.DiscountAmount, o.DeliveryFee)
}

// PaidSoFar sums the tab payments.
func (o *Order) PaidSoFar() Money {
	var sum Money
	for _, p := range o.Payments {
		sum += p.Amount
	}
	return sum
}

// Balance is what remains to be paid on the tab, never negative.
func (o *Order) Balance() Money {
	rest := o.TotalPrice - o.PaidSoFar()
	if rest < 0 {
		return 0
	}
	return rest
}

// OnAccount reports whether the order was placed on the customer's account.
func (o *Order) OnAccount() bool {
	return o.PaymentMethod == AccountPaymentMethod
}

// ShortID is the human-facing prefix of the order id used on receipts and alerts.
func (o *Order) ShortID() string {
	if len(o.ID) <= 8 {
		return o.ID
	}
	return o.ID[:8]
}

// Clone returns a deep copy so callers can mutate items without touching o.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = CloneItems(o.Items)
	if o.Payments != nil {
		c.Payments = append([]PartialPayment(nil), o.Payments...)
	}
	return &c
}

// CloneItems copies items including their key slices.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		it.Key.AddOnIDs = append([]string(nil), it.Key.AddOnIDs...)
		it.Key.HalfIDs = append([]string(nil), it.Key.HalfIDs...)
		out[i] = it
	}
	return out
}
