package kitchenctl

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/adapters/sqlite"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/app"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "kitchenctl", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"watch", "board", "advance", "receipt", "accounts"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	restaurant := cmd.PersistentFlags().Lookup("restaurant")
	require.NotNil(t, restaurant)
	assert.Equal(t, "r", restaurant.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"board", "--format", "yaml"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.ErrorContains(t, cmd.Execute(), "invalid format")
}

func TestParseStatus(t *testing.T) {
	st, err := parseStatus("on-the-way")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnTheWay, st)

	st, err = parseStatus("Preparando")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPreparing, st)

	_, err = parseStatus("lost")
	assert.Error(t, err)
}

func TestNextStep(t *testing.T) {
	st, err := nextStep(domain.StatusNew)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPreparing, st)

	st, err = nextStep(domain.StatusAwaitingPayment)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, st)

	_, err = nextStep(domain.StatusDelivered)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

// testEnv points the configuration at a fresh sqlite file and returns it.
func testEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.db")
	t.Setenv("STORE", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("PRINT_DIR", "")
	t.Setenv("AUTO_PRINT", "true")
	t.Setenv("PAPER_WIDTH", "58mm")
	t.Setenv("FEED_POLL_INTERVAL", "50ms")
	return path
}

func placeOrder(t *testing.T, path, restaurant, customer string) *domain.Order {
	t.Helper()
	return placeOrderWith(t, path, restaurant, customer, nil)
}

func placeOrderWith(t *testing.T, path, restaurant, customer string, edit func(*app.NewOrder)) *domain.Order {
	t.Helper()
	store, err := sqlite.Open(path)
	require.NoError(t, err)
	defer store.Close()

	engine := app.NewEngine(store, app.WithLogger(quiet))
	in := app.NewOrder{
		RestaurantID:   restaurant,
		RestaurantName: "Pizzaria Napoli",
		CustomerName:   customer,
		CustomerPhone:  "11999990000",
		Items: []domain.Item{
			{Key: domain.NewItemKey("pizza-1", "Grande", nil, nil), Name: "Margherita", UnitPrice: 1000, Quantity: 2},
		},
		DiscountAmount: 500,
		DeliveryFee:    300,
		PaymentMethod:  "Pix",
	}
	if edit != nil {
		edit(&in)
	}
	o, err := engine.PlaceOrder(context.Background(), in)
	require.NoError(t, err)
	return o
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func execute(t *testing.T, ctx context.Context, out io.Writer, args ...string) error {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(ctx)
}

func TestBoardAdvanceReceipt(t *testing.T) {
	path := testEnv(t)
	o := placeOrder(t, path, "r1", "Ana")
	placeOrder(t, path, "r2", "Bia")
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, execute(t, ctx, &out, "board", "-r", "r1"))
	assert.Contains(t, out.String(), "Novo Pedido (1) R$ 18,00")
	assert.Contains(t, out.String(), "#"+o.ShortID())
	assert.NotContains(t, out.String(), "Bia")

	out.Reset()
	require.NoError(t, execute(t, ctx, &out, "advance", o.ID, "-r", "r1"))
	assert.Equal(t, "#"+o.ShortID()+": Novo Pedido -> Preparando\n", out.String())

	out.Reset()
	err := execute(t, ctx, &out, "advance", o.ID, "-r", "r2")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	out.Reset()
	err = execute(t, ctx, &out, "advance", o.ID, "cancel", "-r", "r1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	out.Reset()
	require.NoError(t, execute(t, ctx, &out, "receipt", o.ID, "--tz", "UTC", "--paper", "80mm"))
	assert.Contains(t, out.String(), "PIZZARIA NAPOLI")
	assert.Contains(t, out.String(), "Pedido #"+o.ShortID())
}

func TestAccounts(t *testing.T) {
	testEnv(t)
	var out bytes.Buffer
	err := execute(t, context.Background(), &out, "accounts")
	assert.ErrorContains(t, err, "--restaurant")

	require.NoError(t, execute(t, context.Background(), &out, "accounts", "-r", "r1"))
	assert.Empty(t, out.String())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch_AlertsAndPrintsOnlyNewArrivals(t *testing.T) {
	path := testEnv(t)
	existing := placeOrder(t, path, "r1", "Ana")

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- execute(t, ctx, out, "watch", "-r", "r1") }()

	// let the initial snapshot prime the coordinator
	time.Sleep(300 * time.Millisecond)
	assert.NotContains(t, out.String(), "\a")

	fresh := placeOrder(t, path, "r1", "Caio")
	placeOrder(t, path, "r2", "Duda")

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("Pedido #"+fresh.ShortID()))
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}

	got := out.String()
	assert.Contains(t, got, "\a")
	assert.NotContains(t, got, "Pedido #"+existing.ShortID())
	assert.NotContains(t, got, "Cliente: Duda")
}

func TestWatch_AlertsWhenPaymentReleasesOrder(t *testing.T) {
	path := testEnv(t)
	awaiting := placeOrderWith(t, path, "r1", "Eva", func(in *app.NewOrder) {
		in.PaymentMethod = "Mercado Pago"
		in.AwaitPayment = true
	})
	require.Equal(t, domain.StatusAwaitingPayment, awaiting.Status)

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- execute(t, ctx, out, "watch", "-r", "r1") }()

	// an order still waiting for its money is not the kitchen's business yet
	time.Sleep(300 * time.Millisecond)
	assert.NotContains(t, out.String(), "\a")

	store, err := sqlite.Open(path)
	require.NoError(t, err)
	engine := app.NewEngine(store, app.WithLogger(quiet))
	payments := app.NewPaymentHandler(engine, nil, quiet)
	ev := domain.PaymentEvent{EventID: "evt-1", ExternalReference: awaiting.ID, Status: "approved"}
	require.NoError(t, payments.Handle(context.Background(), ev))
	require.NoError(t, payments.Handle(context.Background(), ev))

	released, err := store.Get(context.Background(), awaiting.ID)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.Equal(t, domain.StatusNew, released.Status)
	assert.Equal(t, domain.PaymentPaid, released.PaymentStatus)

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("Pedido #"+awaiting.ShortID()))
	}, 3*time.Second, 20*time.Millisecond)

	// let a few more polls run; the same arrival must not ring twice
	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}

	got := out.String()
	assert.Equal(t, 1, strings.Count(got, "\a"))
	assert.Equal(t, 1, strings.Count(got, "Pedido #"+awaiting.ShortID()))
}
