package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/kitchen-orders/internal/changefeed"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testOrder(id, restaurant string, created time.Time) *domain.Order {
	o := &domain.Order{
		ID:             id,
		RestaurantID:   restaurant,
		RestaurantName: "Pizzaria Napoli",
		CustomerName:   "Ana",
		CustomerPhone:  "11999990000",
		Items: []domain.Item{
			{LineID: "l1", Key: domain.NewItemKey("pizza-1", "Grande", []string{"b", "a"}, nil), Name: "Margherita", UnitPrice: 1000, Quantity: 2},
			{LineID: "l2", Key: domain.NewItemKey("soda", "", nil, nil), Name: "Guaraná", UnitPrice: 500, Quantity: 1},
		},
		DiscountAmount: 500,
		DeliveryFee:    300,
		Status:         domain.StatusNew,
		PaymentStatus:  domain.PaymentPaid,
		PaymentMethod:  "Pix",
		CreatedAt:      created,
	}
	o.Recompute()
	return o
}

func TestStore_InsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC)
	require.NoError(t, s.Insert(ctx, testOrder("o1", "r1", created)))

	got, err := s.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RestaurantID)
	assert.Equal(t, domain.Money(2500), got.Subtotal)
	assert.Equal(t, domain.Money(2300), got.TotalPrice)
	assert.Equal(t, domain.StatusNew, got.Status)
	assert.True(t, created.Equal(got.CreatedAt))
	require.Len(t, got.Items, 2)
	assert.Equal(t, "pizza-1|size=Grande|addons=a,b", got.Items[0].Key.String())
	assert.Equal(t, "Guaraná", got.Items[1].Name)
}

func TestStore_GetUnknown(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
}

func TestStore_QueryNewestFirstWithLimitAndScope(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, testOrder("a", "r1", base)))
	require.NoError(t, s.Insert(ctx, testOrder("b", "r2", base.Add(time.Minute))))
	require.NoError(t, s.Insert(ctx, testOrder("c", "r1", base.Add(2*time.Minute))))
	require.NoError(t, s.Insert(ctx, testOrder("d", "r1", base.Add(3*time.Minute))))

	got, err := s.Query(ctx, ports.Filter{RestaurantID: "r1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].ID)
	assert.Equal(t, "c", got[1].ID)

	all, err := s.Query(ctx, ports.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestStore_QueryByPayment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tab := testOrder("tab", "r1", now)
	tab.PaymentMethod = domain.AccountPaymentMethod
	tab.PaymentStatus = domain.PaymentPending
	require.NoError(t, s.Insert(ctx, tab))
	require.NoError(t, s.Insert(ctx, testOrder("cash", "r1", now)))

	got, err := s.Query(ctx, ports.Filter{
		RestaurantID:  "r1",
		PaymentMethod: domain.AccountPaymentMethod,
		PaymentStatus: domain.PaymentPending,
		Statuses:      []domain.Status{domain.StatusNew, domain.StatusDelivered},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tab", got[0].ID)
}

func TestStore_UpdateStatusIsCompareAndSwap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, testOrder("o1", "r1", time.Now())))

	applied, err := s.UpdateStatus(ctx, "o1", domain.StatusNew, domain.StatusPreparing)
	require.NoError(t, err)
	assert.True(t, applied)

	// stale expectation loses
	applied, err = s.UpdateStatus(ctx, "o1", domain.StatusNew, domain.StatusCancelled)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPreparing, got.Status)
}

func TestStore_ReplaceItemsGuardedByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, testOrder("o1", "r1", time.Now())))

	items := []domain.Item{{LineID: "l2", Key: domain.NewItemKey("soda", "", nil, nil), Name: "Guaraná", UnitPrice: 500, Quantity: 1}}
	applied, err := s.ReplaceItems(ctx, "o1", domain.EditableStatuses, items, 500, 300)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := s.Get(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, domain.Money(500), got.Subtotal)
	assert.Equal(t, domain.Money(300), got.TotalPrice)
	assert.Equal(t, domain.Money(500), got.DiscountAmount)

	_, err = s.UpdateStatus(ctx, "o1", domain.StatusNew, domain.StatusCancelled)
	require.NoError(t, err)

	applied, err = s.ReplaceItems(ctx, "o1", domain.EditableStatuses, got.Items, 500, 300)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestStore_AppendPayment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	o := testOrder("o1", "r1", time.Now())
	o.PaymentStatus = domain.PaymentPending
	require.NoError(t, s.Insert(ctx, o))

	paidAt := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendPayment(ctx, "o1", domain.PartialPayment{ID: "p1", Amount: 1000, Method: "Dinheiro", PaidAt: paidAt}, domain.PaymentPending))
	require.NoError(t, s.AppendPayment(ctx, "o1", domain.PartialPayment{ID: "p2", Amount: 1300, Method: "Pix", PaidAt: paidAt.Add(time.Minute)}, domain.PaymentPaid))

	got, err := s.Get(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, got.Payments, 2)
	assert.Equal(t, "p1", got.Payments[0].ID)
	assert.Equal(t, domain.Money(0), got.Balance())
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)

	err = s.AppendPayment(ctx, "missing", domain.PartialPayment{ID: "p3", Amount: 1, PaidAt: paidAt}, domain.PaymentPaid)
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
}

func TestStore_UpdatePaymentStatusUnknown(t *testing.T) {
	s := openTestStore(t)

	err := s.UpdatePaymentStatus(context.Background(), "missing", domain.PaymentPaid)
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
}

func TestStore_PublishesChangeEvents(t *testing.T) {
	bus := changefeed.NewBroadcaster()
	s := openTestStore(t).WithPublisher(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.Listen(ctx, "r1")
	require.NoError(t, err)

	require.NoError(t, s.Insert(ctx, testOrder("o1", "r1", time.Now())))
	_, err = s.UpdateStatus(ctx, "o1", domain.StatusNew, domain.StatusPreparing)
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, changefeed.OpInsert, first.Op)
	assert.Equal(t, "o1", first.OrderID)

	second := <-events
	assert.Equal(t, changefeed.OpUpdate, second.Op)
	assert.Equal(t, "r1", second.RestaurantID)
}
