package pool

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

const (
	symA asset.Symbol = "AAA"
	symB asset.Symbol = "BBB"
)

func newPool(t *testing.T, a, b int64) LiquidityPool {
	t.Helper()
	p, err := NewLiquidityPool(1, asset.New(a, symA), asset.New(b, symB))
	require.NoError(t, err)
	return p
}

func TestNewLiquidityPool(t *testing.T) {
	// symbols are sorted regardless of argument order
	p, err := NewLiquidityPool(1, asset.New(400, symB), asset.New(100, symA))
	require.NoError(t, err)
	assert.Equal(t, symA, p.SymbolA)
	assert.Equal(t, int64(100), p.BalanceA)
	assert.Equal(t, int64(200), p.BalanceLiquid) // √(100×400)
	assert.Equal(t, LiquiditySymbol(symA, symB), p.SymbolLiquid)

	_, err = NewLiquidityPool(1, asset.New(0, symA), asset.New(1, symB))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLiquidityPool_Output(t *testing.T) {
	p := newPool(t, asset.Units(1000, symA).Amount, asset.Units(1000, symB).Amount)
	out, err := p.Output(asset.Units(10, symA))
	require.NoError(t, err)
	// 1000 × 10 / 1010
	assert.Equal(t, asset.New(990_099_009, symB), out)
}

func TestLiquidityPool_InputInvertsOutput(t *testing.T) {
	p := newPool(t, 1_000_000, 2_000_000)
	want := asset.New(10_000, symB)
	in, err := p.Input(want, symA)
	require.NoError(t, err)
	out, err := p.Output(in)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.Amount, want.Amount)

	less, err := p.Output(in.Sub(asset.New(1, symA)))
	require.NoError(t, err)
	assert.Less(t, less.Amount, want.Amount)

	_, err = p.Input(asset.New(2_000_000, symB), symA)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestLiquidityPool_LimitInput(t *testing.T) {
	p := newPool(t, 1_000_000, 1_000_000)

	// drive the B-per-A price from 1 down to 1/4: ib must double
	x, err := p.LimitInput(symA, asset.NewPrice(asset.New(1, symB), asset.New(4, symA)))
	require.NoError(t, err)
	assert.Equal(t, asset.New(1_000_000, symA), x)

	_, err = p.LimitInput(symA, asset.NewPrice(asset.New(1, symB), asset.New(1, symA)))
	require.ErrorIs(t, err, ErrPriceBelowLimit)

	_, err = p.LimitInput(symA, asset.NewPrice(asset.New(1, symA), asset.New(1, symB)))
	require.ErrorIs(t, err, asset.ErrInvalidPrice)
}

func TestLiquidityPool_FundAndWithdraw(t *testing.T) {
	p := newPool(t, 1_000_000, 1_000_000)
	require.Equal(t, int64(1_000_000), p.BalanceLiquid)

	// quadrupling one side doubles √k, so it doubles the share supply
	minted, err := p.FundShares(asset.New(3_000_000, symA))
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), minted.Amount)

	// burning half the shares from one side keeps a quarter of it
	out, err := p.WithdrawOutput(asset.New(500_000, p.SymbolLiquid), symA)
	require.NoError(t, err)
	assert.Equal(t, int64(750_000), out.Amount)

	// all shares return the whole side
	out, err = p.WithdrawOutput(p.Liquid(), symB)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), out.Amount)

	_, err = p.WithdrawOutput(asset.New(1_000_001, p.SymbolLiquid), symB)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestLiquidityPool_RecordPrice(t *testing.T) {
	p := newPool(t, 100, 100)
	prices := []int64{100, 300, 200, 500, 400}
	for _, a := range prices {
		p.BalanceA = a
		p.RecordPrice(4, 2)
	}
	require.Len(t, p.PriceHistory, 4)
	// history is 300, 200, 500, 400 (A per 100 B)
	assert.Equal(t, int64(400), p.DayMedianPrice.Base.Amount)
	assert.Equal(t, int64(500), p.HourMedianPrice.Base.Amount)

	// the stored history never aliases the previous slice
	before := p.PriceHistory
	p.RecordPrice(4, 2)
	assert.NotSame(t, &before[0], &p.PriceHistory[0])
}

func TestCreditPool_LendWithdraw(t *testing.T) {
	p := NewCreditPool(1, asset.CoinSymbol)
	assert.Equal(t, asset.UnitPrice(asset.CoinSymbol, p.CreditSymbol), p.Price())

	shares, err := p.LendShares(asset.New(1000, asset.CoinSymbol))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), shares.Amount)
	p.BaseBalance += 1000
	p.CreditBalance += shares.Amount

	require.NoError(t, p.Borrow(asset.New(600, asset.CoinSymbol)))
	assert.Equal(t, int64(6000), p.UtilizationBps())
	assert.Equal(t, int64(100+2000*6000/10000), p.InterestRate(100, 2000))

	// interest raises the credit token price
	p.Accrue(asset.New(100, asset.CoinSymbol))
	out, err := p.WithdrawOutput(asset.New(100, p.CreditSymbol))
	require.NoError(t, err)
	assert.Equal(t, int64(110), out.Amount)

	// only unborrowed base can leave
	_, err = p.WithdrawOutput(asset.New(500, p.CreditSymbol))
	var le *LiquidityError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, int64(400), le.Available.Amount)

	require.Error(t, p.Borrow(asset.New(401, asset.CoinSymbol)))
	require.NoError(t, p.Repay(asset.New(700, asset.CoinSymbol)))
	assert.Equal(t, int64(0), p.BorrowedBalance)
	assert.Equal(t, int64(1100), p.BaseBalance)
}

func TestAccrueInterest(t *testing.T) {
	debt := asset.Units(1000, asset.USDSymbol)
	// 10% for a full year
	assert.Equal(t, asset.Units(100, asset.USDSymbol), AccrueInterest(debt, 1000, SecondsPerYear))
	// one second on a tiny debt rounds to nothing
	assert.True(t, AccrueInterest(asset.New(10, asset.USDSymbol), 1000, 1).IsZero())
}

func TestAccrueInterestCarry(t *testing.T) {
	small := asset.New(10, asset.USDSymbol)
	half := SecondsPerYear / 2

	got, carry := AccrueInterestCarry(small, 1000, half, 0)
	assert.True(t, got.IsZero())
	assert.Equal(t, 10*1000*half, carry)

	// the second half year completes the unit
	got, carry = AccrueInterestCarry(small, 1000, half, carry)
	assert.Equal(t, asset.New(1, asset.USDSymbol), got)
	assert.Zero(t, carry)

	got, carry = AccrueInterestCarry(small, 0, half, 7)
	assert.True(t, got.IsZero())
	assert.Equal(t, int64(7), carry, "no accrual keeps the carry")
}

func TestStore_LookupByPair(t *testing.T) {
	s := NewStore()
	p := newPool(t, 10, 10)
	require.NoError(t, s.InsertLiquidity(p))
	got, ok := s.Liquidity(symB, symA)
	require.True(t, ok)
	assert.Equal(t, p.ID, got.ID)
	_, ok = s.LiquidityByShare(p.SymbolLiquid)
	assert.True(t, ok)

	dup := p
	dup.ID = 2
	require.ErrorIs(t, s.InsertLiquidity(dup), ErrPoolExists)

	require.NoError(t, s.SetCollateral(CreditCollateral{Symbol: symA, Collateral: 5}))
	assert.Equal(t, int64(5), s.Collateral([20]byte{}, symA).Collateral)
	require.NoError(t, s.SetCollateral(CreditCollateral{Symbol: symA}))
	n := 0
	s.ScanCollateral(func(CreditCollateral) bool { n++; return true })
	assert.Zero(t, n)
}

func TestLiquidityPool_ProductNonDecreasing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Int64Range(1, 1_000_000_000_000).Draw(t, "a").(int64)
		b := rapid.Int64Range(1, 1_000_000_000_000).Draw(t, "b").(int64)
		in := rapid.Int64Range(1, 1_000_000_000_000).Draw(t, "in").(int64)
		p, err := NewLiquidityPool(1, asset.New(a, symA), asset.New(b, symB))
		if err != nil {
			t.Fatal(err)
		}
		out, err := p.Output(asset.New(in, symA))
		if err != nil {
			t.Fatal(err)
		}
		before := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
		after := new(big.Int).Mul(big.NewInt(a+in), big.NewInt(b-out.Amount))
		if after.Cmp(before) < 0 {
			t.Fatalf("product decreased: %v -> %v", before, after)
		}
		if out.Amount >= b {
			t.Fatalf("pool drained: out %d of %d", out.Amount, b)
		}
	})
}
