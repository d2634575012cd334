package services

import (
	"context"
	"errors"
	"testing"

	"conveniencia/internal/models"
	"conveniencia/internal/relay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tabWithTotal opens a tab holding a single line worth total.
func tabWithTotal(t *testing.T, env *testEnv, name, total string) *models.Tab {
	t.Helper()
	p := env.product(t, "Item "+name, total)
	tab := env.tab(t, name)
	env.add(t, tab.ID, OrderItemInput{ProductID: p.ID, Quantity: 1})
	return env.persisted(t, tab.ID)
}

func TestPartialValue_StaysOpenUntilExplicitClose(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tab := tabWithTotal(t, env, "Mesa 9", "30.00")

	res, err := env.payments.Settle(ctx, SettlementRequest{TabID: tab.ID, Mode: ModePartialValue, Method: models.MethodPix, Amount: dec("10")})
	require.NoError(t, err)
	assert.False(t, res.Closed)
	assert.Equal(t, "20.00", res.Quote.Remaining.StringFixed(2))

	got := env.persisted(t, tab.ID)
	assert.Equal(t, "20.00", got.Total.StringFixed(2))
	assert.True(t, got.IsOpen())

	_, err = env.payments.Settle(ctx, SettlementRequest{TabID: tab.ID, Mode: ModePartialValue, Method: models.MethodCard, Amount: dec("20")})
	require.NoError(t, err)

	got = env.persisted(t, tab.ID)
	assert.Equal(t, "0.00", got.Total.StringFixed(2))
	assert.True(t, got.IsOpen(), "a zero balance does not close the tab")
	assert.True(t, env.notifier.has(relay.PartialPayment))

	txs, err := env.kv.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "10.00", txs[0].Amount.StringFixed(2))
	assert.Equal(t, models.PaymentPartial, txs[0].Kind)
}

func TestPartialValue_Monotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tab := tabWithTotal(t, env, "Mesa 1", "15.00")

	for _, amount := range []string{"0", "-5"} {
		_, err := env.payments.Settle(ctx, SettlementRequest{TabID: tab.ID, Mode: ModePartialValue, Method: models.MethodPix, Amount: dec(amount)})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
	assert.Equal(t, "15.00", env.persisted(t, tab.ID).Total.StringFixed(2))

	_, err := env.payments.Settle(ctx, SettlementRequest{TabID: tab.ID, Mode: ModePartialValue, Method: models.MethodPix, Amount: dec("100")})
	require.NoError(t, err)

	got := env.persisted(t, tab.ID)
	assert.Equal(t, "0.00", got.Total.StringFixed(2))
	assert.Equal(t, "15.00", got.PaidAmount.StringFixed(2), "only the outstanding part is discharged")
	env.checkInvariant(t, tab.ID)
}

func TestCash_InsufficientFundsMutatesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tab := tabWithTotal(t, env, "Mesa 1", "50.00")

	_, err := env.payments.Settle(ctx, SettlementRequest{TabID: tab.ID, Mode: ModeFull, Method: models.MethodCash, Tendered: decPtr("40.00")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	var funds *InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, "10.00", funds.Missing().StringFixed(2))

	got := env.persisted(t, tab.ID)
	assert.True(t, got.IsOpen())
	assert.Equal(t, "50.00", got.Total.StringFixed(2))
	txs, err := env.kv.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, err = env.payments.Settle(ctx, SettlementRequest{TabID: tab.ID, Mode: ModeFull, Method: models.MethodCash})
	assert.ErrorIs(t, err, ErrValidation, "cash needs a tendered amount")
}

func TestCash_ChangeIsExact(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tab := tabWithTotal(t, env, "Mesa 1", "37.50")

	res, err := env.payments.Settle(ctx, SettlementRequest{TabID: tab.ID, Mode: ModeFull, Method: models.MethodCash, Tendered: decPtr("50.00")})
	require.NoError(t, err)
	require.NotNil(t, res.Quote.Change)
	assert.Equal(t, "12.50", res.Quote.Change.StringFixed(2))
	assert.True(t, res.Closed)
}

func TestCard_SkipsTendered(t *testing.T) {
	env := newTestEnv(t)
	tab := tabWithTotal(t, env, "Mesa 1", "50.00")

	q, err := env.payments.Quote(context.Background(), SettlementRequest{TabID: tab.ID, Mode: ModeFull, Method: models.MethodCard, Tendered: decPtr("1")})
	require.NoError(t, err)
	assert.Nil(t, q.Change)
}

func TestSplit_RecomputesWithoutMutating(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tab := tabWithTotal(t, env, "Mesa 1", "100.00")

	q, err := env.payments.Quote(ctx, SettlementRequest{TabID: tab.ID, Mode: ModeSplit, Method: models.MethodPix, People: 4})
	require.NoError(t, err)
	assert.Equal(t, "25.00", q.PerPerson.StringFixed(2))

	q, err = env.payments.Quote(ctx, SettlementRequest{TabID: tab.ID, Mode: ModeSplit, Method: models.MethodPix, People: 3})
	require.NoError(t, err)
	assert.Equal(t, "33.33", q.PerPerson.StringFixed(2))
	assert.False(t, q.PerPerson.Equal(dec("33.33")), "the per-person share is kept exact")
	require.NotNil(t, q.PerPersonRounded)
	assert.Equal(t, "33.33", q.PerPersonRounded.String(), "the displayed share has two decimals")
	assert.Equal(t, "100.00", q.Due.StringFixed(2))

	assert.Equal(t, "100.00", env.persisted(t, tab.ID).Total.StringFixed(2))

	_, err = env.payments.Quote(ctx, SettlementRequest{TabID: tab.ID, Mode: ModeSplit, Method: models.MethodPix, People: 1})
	assert.ErrorIs(t, err, ErrValidation)

	res, err := env.payments.Settle(ctx, SettlementRequest{TabID: tab.ID, Mode: ModeSplit, Method: models.MethodCash, People: 4, Tendered: decPtr("30")})
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, "5.00", res.Quote.Change.StringFixed(2))
	assert.Equal(t, models.TabClosed, env.persisted(t, tab.ID).Status)
}

func TestServiceCharge_OnRemainingBaseOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tab := tabWithTotal(t, env, "Mesa 1", "100.00")

	_, err := env.payments.Settle(ctx, SettlementRequest{TabID: tab.ID, Mode: ModePartialValue, Method: models.MethodPix, Amount: dec("40")})
	require.NoError(t, err)

	q, err := env.payments.Quote(ctx, SettlementRequest{TabID: tab.ID, Mode: ModeFull, Method: models.MethodPix, ServiceCharge: true})
	require.NoError(t, err)
	assert.Equal(t, "60.00", q.Base.StringFixed(2))
	assert.Equal(t, "6.00", q.ServiceCharge.StringFixed(2))
	assert.Equal(t, "66.00", q.Due.StringFixed(2))

	q, err = env.payments.Quote(ctx, SettlementRequest{TabID: tab.ID, Mode: ModePartialValue, Method: models.MethodPix, Amount: dec("20"), ServiceCharge: true})
	require.NoError(t, err)
	assert.Equal(t, "2.00", q.ServiceCharge.StringFixed(2))
	assert.Equal(t, "22.00", q.Due.StringFixed(2))

	res, err := env.payments.Settle(ctx, SettlementRequest{TabID: tab.ID, Mode: ModeFull, Method: models.MethodCash, ServiceCharge: true, Tendered: decPtr("70")})
	require.NoError(t, err)
	assert.Equal(t, "4.00", res.Quote.Change.StringFixed(2))
	assert.Equal(t, "6.00", env.persisted(t, tab.ID).ServiceCharge.StringFixed(2))
}

func TestPartialItems_KeyedByLine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	beer := env.product(t, "Cerveja", "5.00")
	tab := env.tab(t, "Mesa 1")

	// two separate lines for the same product
	first := env.add(t, tab.ID, OrderItemInput{ProductID: beer.ID, Quantity: 2})[0]
	second := env.add(t, tab.ID, OrderItemInput{ProductID: beer.ID, Quantity: 3})[0]

	res, err := env.payments.Settle(ctx, SettlementRequest{
		TabID: tab.ID, Mode: ModePartialItems, Method: models.MethodPix,
		Items: []ItemSelection{{LineID: first.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "10.00", res.Quote.Base.StringFixed(2))
	assert.Equal(t, "15.00", env.persisted(t, tab.ID).Total.StringFixed(2))
	require.Len(t, res.Transaction.Items, 1)
	assert.Equal(t, first.ID, res.Transaction.Items[0].LineID)

	paid, err := env.payments.PaidQuantities(ctx, tab.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{first.ID: 2}, paid)

	// the first line is fully paid, the second is untouched
	_, err = env.payments.Settle(ctx, SettlementRequest{
		TabID: tab.ID, Mode: ModePartialItems, Method: models.MethodPix,
		Items: []ItemSelection{{LineID: first.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.payments.Settle(ctx, SettlementRequest{
		TabID: tab.ID, Mode: ModePartialItems, Method: models.MethodPix,
		Items: []ItemSelection{{LineID: second.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, "0.00", env.persisted(t, tab.ID).Total.StringFixed(2))
	env.checkInvariant(t, tab.ID)

	_, err = env.payments.Quote(ctx, SettlementRequest{
		TabID: tab.ID, Mode: ModePartialItems, Method: models.MethodPix,
		Items: []ItemSelection{{LineID: "missing", Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrLineNotFound)
}

func TestFullSettlement_ClosesAndRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	beer := env.product(t, "Cerveja", "5.00")
	tab := env.tab(t, "Mesa 1")
	lines := env.add(t, tab.ID, OrderItemInput{ProductID: beer.ID, Quantity: 2}, OrderItemInput{ProductID: beer.ID, Quantity: 1})

	_, err := env.payments.Settle(ctx, SettlementRequest{
		TabID: tab.ID, Mode: ModePartialItems, Method: models.MethodPix,
		Items: []ItemSelection{{LineID: lines[0].ID, Quantity: 1}},
	})
	require.NoError(t, err)

	res, err := env.payments.Settle(ctx, SettlementRequest{TabID: tab.ID, Mode: ModeFull, Method: models.MethodCard})
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, "10.00", res.Quote.Due.StringFixed(2))
	assert.Equal(t, models.PaymentTotal, res.Transaction.Kind)
	assert.Len(t, res.Transaction.Items, 2)

	assert.Equal(t, models.TabClosed, env.persisted(t, tab.ID).Status)
	paid, err := env.payments.PaidQuantities(ctx, tab.ID)
	require.NoError(t, err)
	assert.Empty(t, paid)
	assert.True(t, env.notifier.has(relay.TabFinalized))

	_, err = env.payments.Settle(ctx, SettlementRequest{TabID: tab.ID, Mode: ModeFull, Method: models.MethodCard})
	assert.ErrorIs(t, err, ErrTabNotOpen)
}

func TestSettle_RejectsUnknownModeAndMethod(t *testing.T) {
	env := newTestEnv(t)
	tab := tabWithTotal(t, env, "Mesa 1", "10.00")
	ctx := context.Background()

	_, err := env.payments.Quote(ctx, SettlementRequest{TabID: tab.ID, Mode: "barter", Method: models.MethodPix})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.payments.Quote(ctx, SettlementRequest{TabID: tab.ID, Mode: ModeFull, Method: "cheque"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.payments.Quote(ctx, SettlementRequest{TabID: "missing", Mode: ModeFull, Method: models.MethodPix})
	assert.ErrorIs(t, err, ErrTabNotFound)
}

func TestAddMiscItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tab := env.tab(t, "Mesa 1")

	line, err := env.payments.AddMiscItem(ctx, tab.ID, "Gelo", dec("3.5"), "saco grande")
	require.NoError(t, err)
	assert.Equal(t, "Gelo - R$ 3.50 | saco grande", line.Notes)
	assert.Nil(t, line.Status)
	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, "3.50", env.persisted(t, tab.ID).Total.StringFixed(2))

	again, err := env.payments.AddMiscItem(ctx, tab.ID, "Carvão", dec("20"), "")
	require.NoError(t, err)
	assert.Equal(t, line.ProductID, again.ProductID, "the generic product is reused")
	assert.Equal(t, "Carvão - R$ 20.00", again.Notes)
	assert.Equal(t, "23.50", env.persisted(t, tab.ID).Total.StringFixed(2))

	generic, err := env.productRepo.GetByID(ctx, line.ProductID)
	require.NoError(t, err)
	assert.Equal(t, models.GenericProductName, generic.Name)

	_, err = env.payments.AddMiscItem(ctx, tab.ID, " ", dec("1"), "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.payments.AddMiscItem(ctx, tab.ID, "Gelo", dec("0"), "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	res, err := env.payments.Settle(ctx, SettlementRequest{TabID: tab.ID, Mode: ModeFull, Method: models.MethodPix})
	require.NoError(t, err)
	names := []string{}
	for _, item := range res.Transaction.Items {
		names = append(names, item.Name)
	}
	assert.ElementsMatch(t, []string{"Gelo", "Carvão"}, names)
}
