package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
	"github.com/jcmexdev/kitchen-orders/internal/statuslog"
)

// memStore is an in-memory ports.OrderStore with injectable failures.
type memStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order

	failUpdate error
	failGet    error
	// failPayment fails UpdatePaymentStatus for the listed order ids.
	failPayment map[string]error
	// beforeCAS runs inside UpdateStatus before the compare, without the lock.
	beforeCAS func()
}

var _ ports.OrderStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]*domain.Order)}
}

func (m *memStore) Insert(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("duplicate id %s", o.ID)
	}
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("mem: order %q: %w", id, domain.ErrOrderNotFound)
	}
	return o.Clone(), nil
}

func (m *memStore) Query(_ context.Context, f ports.Filter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if f.RestaurantID != "" && o.RestaurantID != f.RestaurantID {
			continue
		}
		if f.PaymentMethod != "" && o.PaymentMethod != f.PaymentMethod {
			continue
		}
		if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, o.Status) {
			continue
		}
		out = append(out, *o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id string, expected, next domain.Status) (bool, error) {
	if m.beforeCAS != nil {
		m.beforeCAS()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return false, m.failUpdate
	}
	o, ok := m.orders[id]
	if !ok || o.Status != expected {
		return false, nil
	}
	o.Status = next
	return true, nil
}

func (m *memStore) UpdatePaymentStatus(_ context.Context, id string, status domain.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failPayment[id]; err != nil {
		return err
	}
	o, ok := m.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.PaymentStatus = status
	return nil
}

func (m *memStore) ReplaceItems(_ context.Context, id string, editable []domain.Status, items []domain.Item, subtotal, total domain.Money) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || !slices.Contains(editable, o.Status) {
		return false, nil
	}
	o.Items = domain.CloneItems(items)
	o.Subtotal = subtotal
	o.TotalPrice = total
	return true, nil
}

func (m *memStore) AppendPayment(_ context.Context, id string, p domain.PartialPayment, status domain.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Payments = append(o.Payments, p)
	o.PaymentStatus = status
	return nil
}

func (m *memStore) status(id string) domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

// put stores an order directly, bypassing the engine.
func (m *memStore) put(o *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o.Clone()
}

type memLog struct {
	mu      sync.Mutex
	entries []statuslog.Entry
	err     error
}

func (l *memLog) Append(_ context.Context, e *statuslog.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, *e)
	return nil
}

func (l *memLog) List(_ context.Context, orderID string) ([]statuslog.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []statuslog.Entry
	for _, e := range l.entries {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memPublisher struct {
	mu      sync.Mutex
	updates []ports.StatusUpdate
	err     error
}

func (p *memPublisher) PublishStatus(_ context.Context, u ports.StatusUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.updates = append(p.updates, u)
	return nil
}

type memGuard struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (g *memGuard) FirstSeen(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *memGuard) Forget(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	staff = domain.Actor{ID: "u1", Role: domain.RoleStaff, RestaurantID: "r1"}
	admin = domain.Actor{ID: "root", Role: domain.RoleAdmin}
)

func seedOrder(t *testing.T, store *memStore, id string, status domain.Status) *domain.Order {
	t.Helper()
	o := &domain.Order{
		ID:             id,
		RestaurantID:   "r1",
		RestaurantName: "Pizzaria Napoli",
		CustomerName:   "Ana",
		CustomerPhone:  "11999990000",
		Items: []domain.Item{
			{LineID: "l1", Key: domain.NewItemKey("pizza-1", "Grande", nil, nil), Name: "Margherita", UnitPrice: 1000, Quantity: 2},
			{LineID: "l2", Key: domain.NewItemKey("soda", "", nil, nil), Name: "Guaraná", UnitPrice: 500, Quantity: 1},
		},
		DiscountAmount: 500,
		DeliveryFee:    300,
		Status:         status,
		PaymentStatus:  domain.PaymentPaid,
		PaymentMethod:  "Pix",
		CreatedAt:      time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
	}
	o.Recompute()
	store.put(o)
	return o
}
