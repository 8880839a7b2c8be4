package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_AllPairs(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusAwaitingPayment, StatusNew}:       true,
		{StatusAwaitingPayment, StatusCancelled}: true,
		{StatusNew, StatusPreparing}:             true,
		{StatusNew, StatusCancelled}:             true,
		{StatusPreparing, StatusOnTheWay}:        true,
		{StatusOnTheWay, StatusDelivered}:        true,
	}

	for _, from := range Statuses {
		for _, to := range Statuses {
			name := fmt.Sprintf("%s->%s", from, to)
			t.Run(name, func(t *testing.T) {
				assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to))
			})
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range Statuses {
		if s.Terminal() {
			assert.Empty(t, s.Next(), "terminal status %s must have no edges", s)
		} else {
			assert.NotEmpty(t, s.Next(), "status %s must have an edge", s)
		}
	}
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, Status("Pronto").Valid())
}

func TestStatus_Editable(t *testing.T) {
	assert.True(t, StatusNew.Editable())
	assert.True(t, StatusPreparing.Editable())
	assert.False(t, StatusAwaitingPayment.Editable())
	assert.False(t, StatusOnTheWay.Editable())
	assert.False(t, StatusDelivered.Editable())
}

func TestItemKey_EqualIgnoresOrder(t *testing.T) {
	a := NewItemKey("pizza-12", "Grande", []string{"9", "3"}, []string{"17", "12"})
	b := ItemKey{ProductID: "pizza-12", Size: "Grande", AddOnIDs: []string{"3", "9"}, HalfIDs: []string{"12", "17"}}

	assert.True(t, a.Equal(b))
	assert.Equal(t, "pizza-12|size=Grande|addons=3,9|halves=12,17", a.String())
	assert.Equal(t, a.String(), b.String())

	c := NewItemKey("pizza-12", "Media", []string{"3", "9"}, nil)
	assert.False(t, a.Equal(c))
	assert.Equal(t, "pizza-12|size=Media|addons=3,9", c.String())
}

func TestOrder_RecomputeScenario(t *testing.T) {
	o := &Order{
		Items: []Item{
			{LineID: "1", UnitPrice: 1000, Quantity: 2},
			{LineID: "2", UnitPrice: 500, Quantity: 1},
		},
		DiscountAmount: 500,
		DeliveryFee:    300,
	}
	o.Recompute()
	assert.Equal(t, Money(2500), o.Subtotal)
	assert.Equal(t, Money(2300), o.TotalPrice)

	o.Items = o.Items[1:]
	o.Recompute()
	assert.Equal(t, Money(500), o.Subtotal)
	assert.Equal(t, Money(300), o.TotalPrice)
}

func TestTotalPrice_DiscountNeverNegative(t *testing.T) {
	assert.Equal(t, Money(300), TotalPrice(200, 1000, 300))
	assert.Equal(t, Money(0), TotalPrice(0, 0, 0))
}

func TestOrder_Balance(t *testing.T) {
	o := &Order{TotalPrice: 5000}
	assert.Equal(t, Money(5000), o.Balance())

	o.Payments = append(o.Payments, PartialPayment{Amount: 2000}, PartialPayment{Amount: 1000})
	assert.Equal(t, Money(3000), o.PaidSoFar())
	assert.Equal(t, Money(2000), o.Balance())

	o.Payments = append(o.Payments, PartialPayment{Amount: 4000})
	assert.Equal(t, Money(0), o.Balance())
}

func TestOrder_CloneIsDeep(t *testing.T) {
	o := &Order{Items: []Item{{LineID: "1", Key: NewItemKey("p", "", []string{"a"}, nil), Quantity: 1}}}
	c := o.Clone()
	c.Items[0].Quantity = 5
	c.Items[0].Key.AddOnIDs[0] = "z"

	assert.Equal(t, 1, o.Items[0].Quantity)
	assert.Equal(t, "a", o.Items[0].Key.AddOnIDs[0])
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "R$ 23,00", Money(2300).String())
	assert.Equal(t, "R$ 0,05", Money(5).String())
	assert.Equal(t, "R$ 1.234,50", Money(123450).String())
	assert.Equal(t, "-R$ 3,10", Money(-310).String())
	assert.Equal(t, Money(1999), MoneyFromFloat(19.99))
}

func TestInvalidTransitionError_Is(t *testing.T) {
	err := fmt.Errorf("apply: %w", &InvalidTransitionError{From: StatusDelivered, To: StatusCancelled})
	require.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "terminal")

	var ite *InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, StatusDelivered, ite.From)
}

func TestPersistenceError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &PersistenceError{Op: "update status", Err: cause}
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsPersistence(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsPersistence(cause))
}

func TestActor(t *testing.T) {
	staff := Actor{ID: "u1", Role: RoleStaff, RestaurantID: "r1"}
	assert.True(t, staff.CanAccess("r1"))
	assert.False(t, staff.CanAccess("r2"))
	assert.True(t, Actor{Role: RoleAdmin}.CanAccess("r2"))
	assert.False(t, Actor{Role: "guest"}.CanAccess("r1"))
	assert.False(t, Actor{ID: "u2", Role: RoleStaff}.CanAccess("r1"))

	assert.True(t, SystemActor.MayTransition(StatusAwaitingPayment, StatusNew))
	assert.False(t, SystemActor.MayTransition(StatusNew, StatusPreparing))
	assert.Equal(t, "staff:u1", staff.String())
}

func TestPaymentEvent_Approved(t *testing.T) {
	assert.True(t, PaymentEvent{Status: "approved"}.Approved())
	assert.True(t, PaymentEvent{Status: " APPROVED "}.Approved())
	assert.False(t, PaymentEvent{Status: "pending"}.Approved())
	assert.False(t, PaymentEvent{Status: "rejected"}.Approved())
}
