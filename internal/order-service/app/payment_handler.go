package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
)

// PaymentHandler applies payment gateway events. Gateways deliver at least
// once, so handling the same approval twice must leave the order unchanged.
type PaymentHandler struct {
	engine *Engine
	guard  ports.IdempotencyGuard
	logger *slog.Logger
}

// NewPaymentHandler builds a handler. guard may be nil; the engine's
// transitions are idempotent on their own and the guard only saves work.
func NewPaymentHandler(engine *Engine, guard ports.IdempotencyGuard, logger *slog.Logger) *PaymentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{engine: engine, guard: guard, logger: logger.With("component", "payments")}
}

// Handle processes one event. Approved payments mark the order paid and move
// it from "Aguardando Pagamento" to "Novo Pedido". Anything else is logged
// and ignored; a rejected payment never cancels an order.
func (h *PaymentHandler) Handle(ctx context.Context, ev domain.PaymentEvent) error {
	log := h.logger.With("order_id", ev.ExternalReference, "event_id", ev.EventID, "gateway_status", ev.Status)

	if ev.ExternalReference == "" {
		return fmt.Errorf("%w: payment event without external reference", domain.ErrInvalidOrder)
	}
	if !ev.Approved() {
		log.InfoContext(ctx, "payment event ignored")
		return nil
	}

	key := "payment:" + ev.EventID
	if h.guard != nil && ev.EventID != "" {
		first, err := h.guard.FirstSeen(ctx, key)
		switch {
		case err != nil:
			log.WarnContext(ctx, "idempotency check failed, processing anyway", "error", err)
		case !first:
			log.InfoContext(ctx, "duplicate payment event skipped")
			return nil
		}
	}

	if err := h.confirm(ctx, ev.ExternalReference, log); err != nil {
		if h.guard != nil && ev.EventID != "" {
			// let the gateway's retry through
			if ferr := h.guard.Forget(ctx, key); ferr != nil {
				log.WarnContext(ctx, "idempotency key not released", "error", ferr)
			}
		}
		return err
	}
	return nil
}

func (h *PaymentHandler) confirm(ctx context.Context, orderID string, log *slog.Logger) error {
	o, err := h.engine.Order(ctx, orderID, domain.SystemActor)
	if err != nil {
		return err
	}

	if o.Status == domain.StatusCancelled {
		// money arrived for a cancelled order; refunds are handled by people
		log.WarnContext(ctx, "approved payment for cancelled order")
		return nil
	}

	if o.PaymentStatus != domain.PaymentPaid {
		if err := h.engine.RecordPayment(ctx, orderID, domain.PaymentPaid); err != nil {
			return err
		}
	}

	if o.Status != domain.StatusAwaitingPayment {
		log.InfoContext(ctx, "payment confirmed, order already released", "status", o.Status)
		return nil
	}

	_, err = h.engine.ApplyStatusTransition(ctx, orderID, domain.StatusNew, domain.SystemActor)
	var ite *domain.InvalidTransitionError
	if errors.As(err, &ite) && ite.From != domain.StatusAwaitingPayment {
		// staff confirmed or cancelled it in the meantime
		log.InfoContext(ctx, "order moved before payment confirmation", "status", ite.From)
		return nil
	}
	if err != nil {
		return err
	}

	log.InfoContext(ctx, "payment confirmed, order released to kitchen")
	return nil
}
