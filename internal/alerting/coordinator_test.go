package alerting

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/kitchen-orders/internal/changefeed"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
	"github.com/jcmexdev/kitchen-orders/internal/receipt"
)

var base = time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func order(id string, st domain.Status, minute int) domain.Order {
	return domain.Order{
		ID:             id + "-0000-0000",
		RestaurantID:   "r1",
		RestaurantName: "Pizzaria Napoli",
		CustomerName:   "Ana",
		Items:          []domain.Item{{LineID: "l1", Name: "Margherita", UnitPrice: 2300, Quantity: 1}},
		Subtotal:       2300,
		TotalPrice:     2300,
		Status:         st,
		PaymentMethod:  "Pix",
		CreatedAt:      base.Add(time.Duration(minute) * time.Minute),
	}
}

func snap(orders ...domain.Order) changefeed.Snapshot {
	return changefeed.Snapshot{Scope: "r1", Orders: orders, Trigger: changefeed.TriggerPush}
}

type recorder struct {
	mu     sync.Mutex
	plays  int
	notes  []Notification
	docs   []Document
	err    error
	target *PrintTarget
	loaded []bool
}

func (r *recorder) Play(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays++
	return r.err
}

func (r *recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return r.err
}

func (r *recorder) Print(_ context.Context, doc Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
	if r.target != nil {
		cur, ok := r.target.Current()
		r.loaded = append(r.loaded, ok && cur.OrderID == doc.OrderID)
	}
	return r.err
}

func (r *recorder) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plays, len(r.notes), len(r.docs)
}

func newTestCoordinator(rec *recorder, caps Capabilities) (*Coordinator, *PrintQueue) {
	q := NewPrintQueue(rec, ReceiptRenderer(receipt.Options{Paper: receipt.Paper80mm}), quietLogger(), 0)
	rec.target = q.Target()
	c := NewCoordinator(
		WithSound(rec),
		WithNotifications(rec, StaticCapabilities(caps)),
		WithAutoPrint(q),
		WithLogger(quietLogger()),
	)
	c.Arm()
	return c, q
}

var allowAll = Capabilities{NotificationsEnabled: true, HasPermission: true}

func TestCoordinator_FirstSnapshotOnlyPrimes(t *testing.T) {
	rec := &recorder{}
	c, q := newTestCoordinator(rec, allowAll)

	alerts := c.HandleSnapshot(context.Background(), snap(order("a", domain.StatusNew, 1), order("b", domain.StatusNew, 2)))
	q.Close()

	assert.Empty(t, alerts)
	plays, notes, docs := rec.counts()
	assert.Zero(t, plays)
	assert.Zero(t, notes)
	assert.Zero(t, docs)
}

func TestCoordinator_AlertsNewAndReleasedOrders(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	c, q := newTestCoordinator(rec, allowAll)

	a := order("a", domain.StatusNew, 1)
	p := order("p", domain.StatusAwaitingPayment, 2)
	c.HandleSnapshot(ctx, snap(p, a))

	// p gets paid and a new order n arrives in the same snapshot
	released := p
	released.Status = domain.StatusNew
	n := order("n", domain.StatusNew, 3)
	alerts := c.HandleSnapshot(ctx, snap(n, released, a))
	q.Close()

	require.Len(t, alerts, 2)
	assert.Equal(t, p.ID, alerts[0].ID)
	assert.Equal(t, n.ID, alerts[1].ID)

	plays, notes, docs := rec.counts()
	assert.Equal(t, 1, plays, "one sound per snapshot")
	require.Equal(t, 1, notes)
	assert.Equal(t, Notification{Title: "2 novos pedidos!", Body: "Pedido #n-0000-0 - R$ 23,00", Tag: n.ID}, rec.notes[0])
	require.Equal(t, 2, docs, "every alerted order is printed")
	assert.Equal(t, p.ID, rec.docs[0].OrderID)
	assert.Equal(t, n.ID, rec.docs[1].OrderID)
	assert.Contains(t, rec.docs[0].Text, "PIZZARIA NAPOLI")
	assert.Equal(t, receipt.Paper80mm, rec.docs[0].Paper)
}

func TestCoordinator_RepeatedSnapshotsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	c, q := newTestCoordinator(rec, allowAll)

	c.HandleSnapshot(ctx, snap())
	s := snap(order("a", domain.StatusNew, 1))
	require.Len(t, c.HandleSnapshot(ctx, s), 1)
	assert.Empty(t, c.HandleSnapshot(ctx, s))
	assert.Empty(t, c.HandleSnapshot(ctx, s))

	// moving on does not alert either
	assert.Empty(t, c.HandleSnapshot(ctx, snap(order("a", domain.StatusPreparing, 1))))
	q.Close()

	plays, notes, docs := rec.counts()
	assert.Equal(t, 1, plays)
	assert.Equal(t, 1, notes)
	assert.Equal(t, 1, docs)
}

func TestCoordinator_RespectsCapabilitiesAndArm(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	q := NewPrintQueue(rec, ReceiptRenderer(receipt.Options{}), quietLogger(), 0)
	c := NewCoordinator(
		WithSound(rec),
		WithNotifications(rec, StaticCapabilities(Capabilities{NotificationsEnabled: true})),
		WithAutoPrint(q),
		WithLogger(quietLogger()),
	)
	c.SetAutoPrint(false)

	c.HandleSnapshot(ctx, snap())
	require.Len(t, c.HandleSnapshot(ctx, snap(order("a", domain.StatusNew, 1))), 1)
	q.Close()

	plays, notes, docs := rec.counts()
	assert.Zero(t, plays, "not armed")
	assert.Zero(t, notes, "no permission")
	assert.Zero(t, docs, "auto-print off")
	assert.False(t, c.Armed())
}

func TestCoordinator_SinkErrorsDoNotStopAlerts(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{err: errors.New("device busy")}
	c, q := newTestCoordinator(rec, allowAll)

	c.HandleSnapshot(ctx, snap())
	c.HandleSnapshot(ctx, snap(order("a", domain.StatusNew, 1)))
	c.HandleSnapshot(ctx, snap(order("b", domain.StatusNew, 2), order("a", domain.StatusNew, 1)))
	q.Close()

	plays, notes, docs := rec.counts()
	assert.Equal(t, 2, plays)
	assert.Equal(t, 2, notes)
	assert.Equal(t, 2, docs)
}

func TestCoordinator_ResetPrimesAgain(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(WithLogger(quietLogger()))

	c.HandleSnapshot(ctx, snap())
	require.Len(t, c.HandleSnapshot(ctx, snap(order("a", domain.StatusNew, 1))), 1)

	c.Reset()
	assert.Empty(t, c.HandleSnapshot(ctx, snap(order("b", domain.StatusNew, 2))))
	assert.Len(t, c.HandleSnapshot(ctx, snap(order("c", domain.StatusNew, 3), order("b", domain.StatusNew, 2))), 1)
}

type staticLister struct {
	mu     sync.Mutex
	orders []domain.Order
	calls  int
}

func (l *staticLister) Query(context.Context, ports.Filter) ([]domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return append([]domain.Order(nil), l.orders...), nil
}

func (l *staticLister) set(orders ...domain.Order) {
	l.mu.Lock()
	l.orders = orders
	l.mu.Unlock()
}

func TestCoordinator_WatchFeed(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	c := NewCoordinator(WithSound(rec), WithLogger(quietLogger()))
	c.Arm()

	lister := &staticLister{}
	lister.set(order("a", domain.StatusNew, 1))
	bus := changefeed.NewBroadcaster()
	feed := changefeed.New(lister, bus, changefeed.Config{}, quietLogger())

	sub := c.Watch(ctx, feed, "r1")
	defer sub.Unsubscribe()
	require.Eventually(t, func() bool {
		lister.mu.Lock()
		defer lister.mu.Unlock()
		return lister.calls > 0 && bus.Listeners() == 1
	}, time.Second, 5*time.Millisecond)

	lister.set(order("b", domain.StatusNew, 2), order("a", domain.StatusNew, 1))
	require.NoError(t, bus.Publish(ctx, changefeed.Event{Op: changefeed.OpInsert, OrderID: "b", RestaurantID: "r1"}))

	require.Eventually(t, func() bool {
		plays, _, _ := rec.counts()
		return plays == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPrintQueue_FIFOAndTargetLifecycle(t *testing.T) {
	rec := &recorder{}
	q := NewPrintQueue(rec, ReceiptRenderer(receipt.Options{Paper: receipt.Paper58mm}), quietLogger(), 4)
	rec.target = q.Target()

	for i, id := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(order(id, domain.StatusNew, i)))
	}
	q.Close()

	require.Len(t, rec.docs, 3)
	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id+"-0000-0000", rec.docs[i].OrderID)
	}
	assert.Equal(t, []bool{true, true, true}, rec.loaded, "target is populated while printing")

	_, ok := q.Target().Current()
	assert.False(t, ok, "target is cleared after printing")
	assert.False(t, q.Enqueue(order("d", domain.StatusNew, 4)))
}

func TestDirPrinter(t *testing.T) {
	dir := t.TempDir()
	p := DirPrinter{Dir: dir, Now: func() time.Time { return base }}

	require.NoError(t, p.Print(context.Background(), Document{OrderID: "o1", Text: "hello\n", Paper: receipt.Paper58mm}))

	data, err := os.ReadFile(filepath.Join(dir, "20260301T190000-o1-58mm.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestTerminalSinks(t *testing.T) {
	var out strings.Builder
	require.NoError(t, Bell{W: &out}.Play(context.Background()))
	assert.Equal(t, "\a", out.String())

	out.Reset()
	wp := &WriterPrinter{W: &out}
	require.NoError(t, wp.Print(context.Background(), Document{Text: "receipt"}))
	assert.Equal(t, "receipt\n", out.String())

	require.NoError(t, LogNotifier{Logger: quietLogger()}.Notify(context.Background(), Notification{Title: "t"}))
}
