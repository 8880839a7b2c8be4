// Package statuslog is the audit trail of order status transitions.
//
// Every applied transition appends one row with who made it and the trace it
// ran under, so a row can be followed to the distributed trace of the request
// that caused it.
package statuslog

import (
	"time"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
)

// Entry is one applied transition.
type Entry struct {
	ID      int64
	OrderID string
	From    domain.Status
	To      domain.Status

	// ChangedBy is the actor string, e.g. "staff:u-17" or "system".
	ChangedBy string
	Notes     string

	// TraceID and SpanID come from the span active when the entry was written.
	// Both are empty outside a trace.
	TraceID string
	SpanID  string

	ChangedAt time.Time
}
