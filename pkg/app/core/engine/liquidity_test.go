package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/pool"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
)

func product(p pool.LiquidityPool) *big.Int {
	return new(big.Int).Mul(big.NewInt(p.BalanceA), big.NewInt(p.BalanceB))
}

func TestLiquidityExchange_KeepsProduct(t *testing.T) {
	e := newEngine(t)
	fund(t, e, carol, asset.Units(1000, symA), asset.Units(1000, symB))
	require.NoError(t, e.LiquidityPoolCreate(carol, asset.Units(1000, symA), asset.Units(1000, symB)))
	before, _ := e.State().Pools.Liquidity(symA, symB)
	fund(t, e, bob, asset.Units(10, symA))

	out, err := e.LiquidityExchange(bob, asset.Units(10, symA), symB, account.NullAccount)
	require.NoError(t, err)
	// 1000 × 10 / 1010, rounded down
	assert.Equal(t, asset.New(990_099_009, symB), out)
	assert.Equal(t, out.Amount, liquid(e, bob, symB))
	assert.Zero(t, liquid(e, bob, symA))

	after, _ := e.State().Pools.Liquidity(symA, symB)
	assert.Equal(t, asset.Units(1010, symA), after.Balance(symA))
	assert.Equal(t, asset.Units(1000, symB).Sub(out), after.Balance(symB))
	assert.GreaterOrEqual(t, product(after).Cmp(product(before)), 0)
	assert.Len(t, eventsOf(e, state.EventLiquidityExchange), 1)
	require.NoError(t, e.AuditSupply())

	err = e.Apply(func() error {
		_, err := e.LiquidityExchange(bob, asset.New(1, symB), "NOPE", account.NullAccount)
		return err
	})
	require.ErrorIs(t, err, ErrNoRoute)
	assert.Equal(t, out.Amount, liquid(e, bob, symB))
}

func TestLiquidityFundAndWithdraw(t *testing.T) {
	e := newEngine(t)
	share := pool.LiquiditySymbol(symA, symB)
	fund(t, e, carol, asset.New(1000, symA), asset.New(1000, symB))
	require.NoError(t, e.LiquidityPoolCreate(carol, asset.New(1000, symA), asset.New(1000, symB)))
	assert.Equal(t, int64(1000), liquid(e, carol, share), "√(1000×1000) shares")
	require.ErrorIs(t, e.LiquidityPoolCreate(carol, asset.New(1, symB), asset.New(1, symA)), pool.ErrPoolExists)

	// one-sided deposit: 1000 × (√2000000 − 1000) / 1000
	fund(t, e, alice, asset.New(1000, symA))
	require.NoError(t, e.LiquidityFund(alice, asset.New(1000, symA), symB))
	assert.Equal(t, int64(414), liquid(e, alice, share))
	require.NoError(t, e.AuditSupply())

	require.NoError(t, e.LiquidityWithdraw(alice, asset.New(414, share), symA))
	assert.Equal(t, int64(1000), liquid(e, alice, symA))
	assert.Zero(t, liquid(e, alice, share))

	// burning every share empties and removes the pool
	require.NoError(t, e.LiquidityWithdraw(carol, asset.New(1000, share), symA))
	assert.Equal(t, int64(1000), liquid(e, carol, symA))
	assert.Equal(t, int64(1000), liquid(e, carol, symB))
	_, ok := e.State().Pools.Liquidity(symA, symB)
	assert.False(t, ok)
	require.NoError(t, e.AuditSupply())
}

func TestLiquidityAcquire_PaysQuotedInput(t *testing.T) {
	e := newEngine(t)
	fund(t, e, carol, asset.Units(1000, symA), asset.Units(1000, symB))
	require.NoError(t, e.LiquidityPoolCreate(carol, asset.Units(1000, symA), asset.Units(1000, symB)))
	fund(t, e, bob, asset.Units(20, symA))

	p, _ := e.State().Pools.Liquidity(symA, symB)
	want, err := p.Input(asset.Units(10, symB), symA)
	require.NoError(t, err)

	paid, err := e.LiquidityAcquire(bob, asset.Units(10, symB), symA, account.NullAccount)
	require.NoError(t, err)
	assert.Equal(t, want, paid)
	assert.Equal(t, asset.Units(20, symA).Sub(paid).Amount, liquid(e, bob, symA))
	assert.GreaterOrEqual(t, liquid(e, bob, symB), asset.Units(10, symB).Amount)
	require.NoError(t, e.AuditSupply())
}

func TestUpdateMedianLiquidity_TracksUpperMedian(t *testing.T) {
	e := newEngine(t)
	fund(t, e, carol, asset.Units(1000, symA), asset.Units(1000, symB))
	require.NoError(t, e.LiquidityPoolCreate(carol, asset.Units(1000, symA), asset.Units(1000, symB)))
	require.NoError(t, e.UpdateMedianLiquidity())

	fund(t, e, bob, asset.Units(100, symA))
	_, err := e.LiquidityExchange(bob, asset.Units(100, symA), symB, account.NullAccount)
	require.NoError(t, err)
	require.NoError(t, e.UpdateMedianLiquidity())
	require.NoError(t, e.UpdateMedianLiquidity())

	p, _ := e.State().Pools.Liquidity(symA, symB)
	require.Len(t, p.PriceHistory, 3)
	assert.Zero(t, p.DayMedianPrice.Cmp(p.CurrentPrice()), "two of three samples are after the trade")
	assert.Zero(t, p.HourMedianPrice.Cmp(p.CurrentPrice()))
}
