package domain

import "strings"

// PaymentEvent is a gateway notification about an order's payment.
type PaymentEvent struct {
	// EventID is the gateway's notification id, used to drop duplicate deliveries.
	EventID string
	// ExternalReference is the order id we sent when the payment was created.
	ExternalReference string
	// Status is the gateway's payment state, e.g. "approved", "pending", "rejected".
	Status string
}

// Approved reports whether the gateway confirmed the money.
func (e PaymentEvent) Approved() bool {
	return strings.EqualFold(strings.TrimSpace(e.Status), "approved")
}
