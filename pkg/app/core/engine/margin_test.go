package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
)

// openMargin has bob borrow 1000 AAA against 2000 COIN and sell it to the
// COIN/AAA pool for at least 900 COIN
func openMargin(t *testing.T, e *Engine, opts ...func(*MarginRequest)) uint64 {
	t.Helper()
	fund(t, e, bob, asset.New(2000, coin))
	req := MarginRequest{
		Owner:      bob,
		OrderID:    "m1",
		Collateral: asset.New(2000, coin),
		Debt:       asset.New(1000, symA),
		SellPrice:  asset.NewPrice(asset.New(1000, symA), asset.New(900, coin)),
	}
	for _, opt := range opts {
		opt(&req)
	}
	var id uint64
	require.NoError(t, e.Apply(func() error {
		var err error
		id, err = e.PlaceMarginOrder(req)
		return err
	}))
	return id
}

// aaaPerCoin is a debt/position trigger price
func aaaPerCoin(aaa, c int64) asset.Price {
	return asset.NewPrice(asset.New(aaa, symA), asset.New(c, coin))
}

// moveCoin has dave trade 20k into the COIN/AAA pool: selling COIN
// cheapens the position, buying it makes the position worth more
func moveCoin(t *testing.T, e *Engine, sellCoin bool) {
	t.Helper()
	in := asset.New(20_000, symA)
	receive := coin
	if sellCoin {
		in, receive = asset.New(20_000, coin), symA
	}
	fund(t, e, dave, in)
	_, err := e.LiquidityExchange(dave, in, receive, account.NullAccount)
	require.NoError(t, err)
}

func marginCloses(e *Engine) []state.MarginClose {
	var out []state.MarginClose
	for _, ev := range eventsOf(e, state.EventMarginClose) {
		out = append(out, ev.Data.(state.MarginClose))
	}
	return out
}

func TestMarginOrder_OpensAgainstPool(t *testing.T) {
	e := lendingMarket(t)
	id := openMargin(t, e)

	o, ok := e.State().Book.GetMargin(id)
	require.True(t, ok)
	assert.True(t, o.DebtBalance.IsZero(), "the whole debt was sold")
	assert.True(t, o.PositionBalance.IsPositive())
	assert.Equal(t, asset.New(2000, coin), o.Collateral)
	assert.Zero(t, liquid(e, bob, coin))

	cp, _ := e.State().Pools.Credit(symA)
	assert.Equal(t, int64(1000), cp.BorrowedBalance)
	require.NoError(t, e.AuditSupply())

	_, err := e.PlaceMarginOrder(MarginRequest{
		Owner:      bob,
		OrderID:    "m1",
		Collateral: asset.New(1, coin),
		Debt:       asset.New(1, symA),
		SellPrice:  asset.NewPrice(asset.New(1, symA), asset.New(1, coin)),
	})
	require.ErrorIs(t, err, ErrOrderExists)
}

func TestMarginOrder_UnderCollateralOpenRatio(t *testing.T) {
	e := lendingMarket(t)
	fund(t, e, bob, asset.New(100, coin))
	err := e.Apply(func() error {
		_, err := e.PlaceMarginOrder(MarginRequest{
			Owner:      bob,
			OrderID:    "m1",
			Collateral: asset.New(100, coin),
			Debt:       asset.New(1000, symA),
			SellPrice:  asset.NewPrice(asset.New(1000, symA), asset.New(900, coin)),
		})
		return err
	})
	require.Error(t, err)
	assert.Equal(t, int64(100), liquid(e, bob, coin))
	require.NoError(t, e.AuditSupply())
}

func TestMarginOrder_CancelReturnsNetValueToDeposit(t *testing.T) {
	e := lendingMarket(t)
	openMargin(t, e)

	require.NoError(t, e.Apply(func() error { return e.CancelMarginOrder(bob, "m1") }))
	_, ok := e.State().Book.MarginByAccount(bob, "m1")
	assert.False(t, ok)

	closes := marginCloses(e)
	require.Len(t, closes, 1)
	c := closes[0]
	assert.Equal(t, CloseCancelled, c.Reason)
	assert.Equal(t, coin, c.Returned.Symbol)
	assert.Greater(t, c.Returned.Amount, int64(1990), "only the round trip's rounding is lost")
	assert.Equal(t, 10_000+c.Returned.Amount, e.State().Pools.Collateral(bob, coin).Collateral)

	cp, _ := e.State().Pools.Credit(symA)
	assert.Zero(t, cp.BorrowedBalance)
	require.NoError(t, e.AuditSupply())
}

func TestMarginOrder_ClosedWhenCollateralizationFalls(t *testing.T) {
	e := lendingMarket(t)
	id := openMargin(t, e)

	// doubling the pool's COIN quarters what the position and collateral buy
	fund(t, e, dave, asset.New(1_000_000, coin))
	_, err := e.LiquidityExchange(dave, asset.New(1_000_000, coin), symA, account.NullAccount)
	require.NoError(t, err)

	require.NoError(t, e.RunMaintenance(e.Params().MarginInterval, genesisTime+60))

	_, ok := e.State().Book.GetMargin(id)
	assert.False(t, ok)
	closes := marginCloses(e)
	require.Len(t, closes, 1)
	assert.Equal(t, CloseCollateralization, closes[0].Reason)
	assert.True(t, closes[0].Shortfall.IsPositive())
	assert.Equal(t, 10_000+closes[0].Returned.Amount, e.State().Pools.Collateral(bob, coin).Collateral)

	cp, _ := e.State().Pools.Credit(symA)
	assert.Zero(t, cp.BorrowedBalance)
	require.NoError(t, e.AuditSupply())
}

func TestMarginOrder_StopLossCloses(t *testing.T) {
	e := lendingMarket(t)
	id := openMargin(t, e, func(r *MarginRequest) { r.StopLoss = aaaPerCoin(99, 100) })

	require.NoError(t, e.RunMaintenance(e.Params().MarginInterval, genesisTime+60))
	_, ok := e.State().Book.GetMargin(id)
	require.True(t, ok, "the pool still pays about one AAA per COIN")

	moveCoin(t, e, true)
	require.NoError(t, e.RunMaintenance(2*e.Params().MarginInterval, genesisTime+120))

	_, ok = e.State().Book.GetMargin(id)
	assert.False(t, ok)
	closes := marginCloses(e)
	require.Len(t, closes, 1)
	assert.Equal(t, CloseStopLoss, closes[0].Reason)
	// the position buys back about 961 AAA; collateral covers the rest
	assert.True(t, closes[0].Shortfall.IsPositive())
	assert.Less(t, closes[0].Returned.Amount, int64(2000))
	assert.Greater(t, closes[0].Returned.Amount, int64(1900))
	assert.Equal(t, 10_000+closes[0].Returned.Amount, e.State().Pools.Collateral(bob, coin).Collateral)
	cp, _ := e.State().Pools.Credit(symA)
	assert.Zero(t, cp.BorrowedBalance)
	require.NoError(t, e.AuditSupply())
}

func TestMarginOrder_TakeProfitCloses(t *testing.T) {
	e := lendingMarket(t)
	id := openMargin(t, e, func(r *MarginRequest) { r.TakeProfit = aaaPerCoin(101, 100) })

	moveCoin(t, e, false)
	require.NoError(t, e.RunMaintenance(e.Params().MarginInterval, genesisTime+60))

	_, ok := e.State().Book.GetMargin(id)
	assert.False(t, ok)
	closes := marginCloses(e)
	require.Len(t, closes, 1)
	assert.Equal(t, CloseTakeProfit, closes[0].Reason)
	assert.Greater(t, closes[0].Returned.Amount, int64(2000), "the position sold for more than its debt")
	assert.Equal(t, 10_000+closes[0].Returned.Amount, e.State().Pools.Collateral(bob, coin).Collateral)
	require.NoError(t, e.AuditSupply())
}

func TestMarginOrder_LimitStopLossRestsAtTrigger(t *testing.T) {
	e := lendingMarket(t)
	trigger := aaaPerCoin(99, 100)
	id := openMargin(t, e, func(r *MarginRequest) { r.LimitStopLoss = trigger })
	before, _ := e.State().Book.GetMargin(id)

	moveCoin(t, e, true)
	require.NoError(t, e.RunMaintenance(e.Params().MarginInterval, genesisTime+60))

	o, ok := e.State().Book.GetMargin(id)
	require.True(t, ok)
	assert.True(t, o.Liquidating)
	assert.True(t, o.SellPrice.Equal(trigger.Invert()), "sells the position for debt at the trigger")
	assert.Equal(t, before.PositionBalance, o.PositionBalance, "the pool pays under the trigger")
	assert.Empty(t, marginCloses(e))
	require.NoError(t, e.AuditSupply())
}
