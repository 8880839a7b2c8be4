package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/jcmexdev/kitchen-orders/internal/coordinator"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
)

// ledgerLimit bounds how many open account orders a restaurant can have listed.
const ledgerLimit = 1000

// Account is what one customer owes a restaurant on "Marcar na minha conta" orders.
type Account struct {
	CustomerName  string
	CustomerPhone string
	Orders        []domain.Order
	Outstanding   domain.Money
}

// Ledger reports and settles orders placed on a customer's account.
type Ledger struct {
	store  ports.OrderStore
	engine *Engine
}

func NewLedger(store ports.OrderStore, engine *Engine) *Ledger {
	return &Ledger{store: store, engine: engine}
}

var openAccountStatuses = []domain.Status{
	domain.StatusAwaitingPayment,
	domain.StatusNew,
	domain.StatusPreparing,
	domain.StatusOnTheWay,
	domain.StatusDelivered,
}

// Accounts groups a restaurant's unpaid account orders by customer phone,
// largest debt first. Cancelled orders are never owed.
func (l *Ledger) Accounts(ctx context.Context, restaurantID string) ([]Account, error) {
	orders, err := l.store.Query(ctx, ports.Filter{
		RestaurantID:  restaurantID,
		PaymentMethod: domain.AccountPaymentMethod,
		PaymentStatus: domain.PaymentPending,
		Statuses:      openAccountStatuses,
		Limit:         ledgerLimit,
	})
	if err != nil {
		return nil, &domain.PersistenceError{Op: "query account orders", Err: err}
	}

	byPhone := make(map[string]*Account)
	var keys []string
	for _, o := range orders {
		acc, ok := byPhone[o.CustomerPhone]
		if !ok {
			acc = &Account{CustomerName: o.CustomerName, CustomerPhone: o.CustomerPhone}
			byPhone[o.CustomerPhone] = acc
			keys = append(keys, o.CustomerPhone)
		}
		acc.Orders = append(acc.Orders, o)
		acc.Outstanding += o.Balance()
	}

	out := make([]Account, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byPhone[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Outstanding != out[j].Outstanding {
			return out[i].Outstanding > out[j].Outstanding
		}
		return out[i].CustomerName < out[j].CustomerName
	})
	return out, nil
}

// Settle marks every open account order of the customer as paid and returns
// how many orders and how much money were settled. It is all or nothing: if
// one order cannot be marked, the ones already marked go back to pending.
func (l *Ledger) Settle(ctx context.Context, restaurantID, phone string) (int, domain.Money, error) {
	accounts, err := l.Accounts(ctx, restaurantID)
	if err != nil {
		return 0, 0, err
	}

	for _, acc := range accounts {
		if acc.CustomerPhone != phone {
			continue
		}

		steps := make([]coordinator.Step, 0, len(acc.Orders))
		for _, o := range acc.Orders {
			id := o.ID
			steps = append(steps, coordinator.NewStep("mark_paid:"+id,
				func(ctx context.Context) error { return l.engine.RecordPayment(ctx, id, domain.PaymentPaid) },
				func(ctx context.Context) error { return l.engine.RecordPayment(ctx, id, domain.PaymentPending) },
			))
		}

		saga := coordinator.NewOrchestrator("settle_account", steps, l.engine.logger)
		if err := saga.Start(ctx); err != nil {
			return 0, 0, fmt.Errorf("settle account %s: %w", phone, err)
		}
		return len(acc.Orders), acc.Outstanding, nil
	}
	return 0, 0, nil
}
