package statuslog

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
)

// TraceInfo holds the OTel identifiers found in a context.
type TraceInfo struct {
	TraceID string // 32 hex chars
	SpanID  string // 16 hex chars
}

// ExtractTraceInfo returns the ids of the span in ctx, or zero values when
// there is no valid span (tests, CLI calls without a tracer).
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// NewEntry builds an entry for a transition with the trace ids taken from ctx.
func NewEntry(ctx context.Context, orderID string, from, to domain.Status, actor domain.Actor, notes string) *Entry {
	ti := ExtractTraceInfo(ctx)
	return &Entry{
		OrderID:   orderID,
		From:      from,
		To:        to,
		ChangedBy: actor.String(),
		Notes:     notes,
		TraceID:   ti.TraceID,
		SpanID:    ti.SpanID,
		ChangedAt: time.Now().UTC(),
	}
}
