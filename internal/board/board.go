// Package board groups orders into kanban columns.
package board

import (
	"slices"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
)

type Column struct {
	Status domain.Status  `json:"status"`
	Orders []domain.Order `json:"orders"`
	Total  domain.Money   `json:"total"`
}

type Options struct {
	// IncludeTerminal adds the Entregue and Cancelado columns.
	IncludeTerminal bool
}

// Build returns one column per status in lifecycle order, each sorted oldest
// first. Columns are present even when empty so the layout stays stable.
func Build(orders []domain.Order, opts Options) []Column {
	byStatus := make(map[domain.Status][]domain.Order, len(domain.Statuses))
	for _, o := range orders {
		byStatus[o.Status] = append(byStatus[o.Status], o)
	}

	columns := make([]Column, 0, len(domain.Statuses))
	for _, st := range domain.Statuses {
		if st.Terminal() && !opts.IncludeTerminal {
			continue
		}

		col := Column{Status: st, Orders: byStatus[st]}
		if col.Orders == nil {
			col.Orders = []domain.Order{}
		}
		slices.SortStableFunc(col.Orders, func(a, b domain.Order) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
		for _, o := range col.Orders {
			col.Total += o.TotalPrice
		}
		columns = append(columns, col)
	}
	return columns
}

// Find returns the column for st, or false when it is not on the board.
func Find(columns []Column, st domain.Status) (Column, bool) {
	for _, c := range columns {
		if c.Status == st {
			return c, true
		}
	}
	return Column{}, false
}
