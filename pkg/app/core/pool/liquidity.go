// Package pool holds the automated counterparties of the exchange:
// two-asset constant-product liquidity pools and single-asset credit pools,
// together with the loans and collateral positions drawn against them.
//
// Functions here are pure math over pool values. Moving balances in and out
// of accounts, and paying fees, is the engine's job.
package pool

import (
	"fmt"
	"slices"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

// LiquidityPool is a constant-product pool of SymbolA/SymbolB (A < B)
type LiquidityPool struct {
	ID            uint64       `json:"id"`
	SymbolA       asset.Symbol `json:"symbol_a"`
	SymbolB       asset.Symbol `json:"symbol_b"`
	BalanceA      int64        `json:"balance_a"`
	BalanceB      int64        `json:"balance_b"`
	SymbolLiquid  asset.Symbol `json:"symbol_liquid"`
	BalanceLiquid int64        `json:"balance_liquid"`

	// Medians are A/B prices sampled every median interval
	HourMedianPrice asset.Price   `json:"hour_median_price"`
	DayMedianPrice  asset.Price   `json:"day_median_price"`
	PriceHistory    []asset.Price `json:"price_history"`
}

// LiquiditySymbol names the share token of a pair
func LiquiditySymbol(a, b asset.Symbol) asset.Symbol {
	a, b = SortPair(a, b)
	return asset.Symbol("LIQUID." + string(a) + "." + string(b))
}

// SortPair returns the two symbols in pool order
func SortPair(a, b asset.Symbol) (asset.Symbol, asset.Symbol) {
	if b < a {
		return b, a
	}
	return a, b
}

// NewLiquidityPool seeds a pool and its share supply.
// Formula: liquid = √(a × b)
func NewLiquidityPool(id uint64, first, second asset.Asset) (LiquidityPool, error) {
	if !first.IsPositive() || !second.IsPositive() || first.Symbol == second.Symbol {
		return LiquidityPool{}, fmt.Errorf("%w: pool seed %s / %s", ErrInvalidAmount, first, second)
	}
	a, b := first, second
	if b.Symbol < a.Symbol {
		a, b = b, a
	}
	k := new(uint256.Int).Mul(u256(a.Amount), u256(b.Amount))
	liquid := new(uint256.Int).Sqrt(k)
	return LiquidityPool{
		ID:            id,
		SymbolA:       a.Symbol,
		SymbolB:       b.Symbol,
		BalanceA:      a.Amount,
		BalanceB:      b.Amount,
		SymbolLiquid:  LiquiditySymbol(a.Symbol, b.Symbol),
		BalanceLiquid: int64(liquid.Uint64()),
	}, nil
}

// Has reports whether the pool trades symbol
func (p LiquidityPool) Has(symbol asset.Symbol) bool {
	return symbol == p.SymbolA || symbol == p.SymbolB
}

// Other returns the opposite symbol of the pair
func (p LiquidityPool) Other(symbol asset.Symbol) asset.Symbol {
	if symbol == p.SymbolA {
		return p.SymbolB
	}
	return p.SymbolA
}

// Balance returns the pool's holding of symbol
func (p LiquidityPool) Balance(symbol asset.Symbol) asset.Asset {
	switch symbol {
	case p.SymbolA:
		return asset.New(p.BalanceA, p.SymbolA)
	case p.SymbolB:
		return asset.New(p.BalanceB, p.SymbolB)
	}
	return asset.Zero(symbol)
}

// Liquid returns the outstanding share supply
func (p LiquidityPool) Liquid() asset.Asset {
	return asset.New(p.BalanceLiquid, p.SymbolLiquid)
}

// Name is a readable pair label
func (p LiquidityPool) Name() string {
	return string(p.SymbolA) + "/" + string(p.SymbolB)
}

// Add moves a (signed) amount into the pool's balance of its symbol
func (p *LiquidityPool) Add(delta asset.Asset) error {
	switch delta.Symbol {
	case p.SymbolA:
		if p.BalanceA+delta.Amount < 0 {
			return &LiquidityError{Pool: p.Name(), Requested: delta.Neg(), Available: p.Balance(p.SymbolA)}
		}
		p.BalanceA += delta.Amount
	case p.SymbolB:
		if p.BalanceB+delta.Amount < 0 {
			return &LiquidityError{Pool: p.Name(), Requested: delta.Neg(), Available: p.Balance(p.SymbolB)}
		}
		p.BalanceB += delta.Amount
	default:
		return fmt.Errorf("pool %s does not hold %s", p.Name(), delta.Symbol)
	}
	return nil
}

// CurrentPrice is the instantaneous A/B price
func (p LiquidityPool) CurrentPrice() asset.Price {
	return asset.NewPrice(asset.New(p.BalanceA, p.SymbolA), asset.New(p.BalanceB, p.SymbolB))
}

// ExchangePrice is the instantaneous price a seller of in receives,
// expressed as receive/in (more is better for the seller)
func (p LiquidityPool) ExchangePrice(in asset.Symbol) asset.Price {
	return asset.NewPrice(p.Balance(p.Other(in)), p.Balance(in))
}

// Output returns what a net input buys.
// Formula: out = rb × in / (ib + in)
func (p LiquidityPool) Output(in asset.Asset) (asset.Asset, error) {
	if !p.Has(in.Symbol) || !in.IsPositive() {
		return asset.Asset{}, fmt.Errorf("%w: %s into %s", ErrInvalidAmount, in, p.Name())
	}
	ib := p.Balance(in.Symbol)
	rb := p.Balance(p.Other(in.Symbol))
	num := new(uint256.Int).Mul(u256(rb.Amount), u256(in.Amount))
	den := new(uint256.Int).Add(u256(ib.Amount), u256(in.Amount))
	out := new(uint256.Int).Div(num, den)
	return asset.New(int64(out.Uint64()), rb.Symbol), nil
}

// Input returns the net input needed to receive exactly out (rounded up).
// Formula: in = ⌈ib × out / (rb − out)⌉
func (p LiquidityPool) Input(out asset.Asset, in asset.Symbol) (asset.Asset, error) {
	if !p.Has(out.Symbol) || !p.Has(in) || out.Symbol == in || !out.IsPositive() {
		return asset.Asset{}, fmt.Errorf("%w: acquire %s with %s from %s", ErrInvalidAmount, out, in, p.Name())
	}
	rb := p.Balance(out.Symbol)
	if out.Amount >= rb.Amount {
		return asset.Asset{}, &LiquidityError{Pool: p.Name(), Requested: out, Available: rb}
	}
	ib := p.Balance(in)
	num := new(uint256.Int).Mul(u256(ib.Amount), u256(out.Amount))
	den := u256(rb.Amount - out.Amount)
	return asset.New(ceilDiv(num, den), in), nil
}

// LimitInput is the largest net input of in that keeps the pool's marginal
// receive/in price at or above limit (limit is receive/in).
// Formula: x = √(ib × rb × limit.quote / limit.base) − ib
func (p LiquidityPool) LimitInput(in asset.Symbol, limit asset.Price) (asset.Asset, error) {
	receive := p.Other(in)
	if !p.Has(in) || limit.Base.Symbol != receive || limit.Quote.Symbol != in {
		return asset.Asset{}, fmt.Errorf("%w: limit %s for %s", asset.ErrInvalidPrice, limit, p.Name())
	}
	if !p.ExchangePrice(in).Greater(limit) {
		return asset.Asset{}, ErrPriceBelowLimit
	}
	ib := p.Balance(in).Amount
	rb := p.Balance(receive).Amount
	k := new(uint256.Int).Mul(u256(ib), u256(rb))
	k.Mul(k, u256(limit.Quote.Amount))
	k.Div(k, u256(limit.Base.Amount))
	root := new(uint256.Int).Sqrt(k)
	if !root.IsUint64() || root.Uint64() <= uint64(ib) {
		return asset.Zero(in), nil
	}
	x := root.Uint64() - uint64(ib)
	if x > uint64(asset.MaxAmount) {
		x = uint64(asset.MaxAmount)
	}
	return asset.New(int64(x), in), nil
}

// FundShares returns the share tokens minted for a one-sided deposit.
// Formula: minted = S × (√k' − √k) / √k
func (p LiquidityPool) FundShares(in asset.Asset) (asset.Asset, error) {
	if !p.Has(in.Symbol) || !in.IsPositive() {
		return asset.Asset{}, fmt.Errorf("%w: fund %s into %s", ErrInvalidAmount, in, p.Name())
	}
	bal := p.Balance(in.Symbol).Amount
	other := p.Balance(p.Other(in.Symbol)).Amount
	k := new(uint256.Int).Mul(u256(bal), u256(other))
	k2 := new(uint256.Int).Mul(new(uint256.Int).Add(u256(bal), u256(in.Amount)), u256(other))
	sk := new(uint256.Int).Sqrt(k)
	sk2 := new(uint256.Int).Sqrt(k2)
	if sk.IsZero() {
		return asset.Asset{}, &LiquidityError{Pool: p.Name(), Requested: in, Available: asset.Zero(in.Symbol)}
	}
	minted := new(uint256.Int).Sub(sk2, sk)
	minted.Mul(minted, u256(p.BalanceLiquid))
	minted.Div(minted, sk)
	return asset.New(toInt64(minted), p.SymbolLiquid), nil
}

// WithdrawOutput returns how much of symbol burning liquid shares redeems.
// Formula: out = bal − bal × ((S − L) / S)²
func (p LiquidityPool) WithdrawOutput(liquid asset.Asset, symbol asset.Symbol) (asset.Asset, error) {
	if liquid.Symbol != p.SymbolLiquid || !liquid.IsPositive() || !p.Has(symbol) {
		return asset.Asset{}, fmt.Errorf("%w: withdraw %s as %s from %s", ErrInvalidAmount, liquid, symbol, p.Name())
	}
	if liquid.Amount > p.BalanceLiquid {
		return asset.Asset{}, &LiquidityError{Pool: p.Name(), Requested: liquid, Available: p.Liquid()}
	}
	bal := p.Balance(symbol).Amount
	rest := u256(p.BalanceLiquid - liquid.Amount)
	s := u256(p.BalanceLiquid)
	remain := new(uint256.Int).Mul(u256(bal), rest)
	remain.Mul(remain, rest)
	remain.Div(remain, new(uint256.Int).Mul(s, s))
	return asset.New(bal-toInt64(remain), symbol), nil
}

// RecordPrice appends the current price to a history bounded to max samples
// and recomputes the medians: hour over the newest hourSamples, day over all
func (p *LiquidityPool) RecordPrice(max, hourSamples int) {
	history := make([]asset.Price, 0, min(len(p.PriceHistory)+1, max))
	start := 0
	if len(p.PriceHistory)+1 > max {
		start = len(p.PriceHistory) + 1 - max
	}
	history = append(history, p.PriceHistory[start:]...)
	history = append(history, p.CurrentPrice())
	p.PriceHistory = history

	hour := history
	if len(hour) > hourSamples {
		hour = hour[len(hour)-hourSamples:]
	}
	p.HourMedianPrice = MedianPrice(hour)
	p.DayMedianPrice = MedianPrice(history)
}

// MedianPrice returns the upper median of a non-empty set of same-pair prices
func MedianPrice(prices []asset.Price) asset.Price {
	if len(prices) == 0 {
		return asset.Price{}
	}
	sorted := slices.Clone(prices)
	slices.SortFunc(sorted, func(a, b asset.Price) int { return a.Cmp(b) })
	return sorted[len(sorted)/2]
}

func u256(v int64) *uint256.Int {
	asset.Assert(v >= 0, "pool_math", "negative operand %d", v)
	return uint256.NewInt(uint64(v))
}

func ceilDiv(n, d *uint256.Int) int64 {
	q, r := new(uint256.Int).DivMod(n, d, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return toInt64(q)
}

func toInt64(v *uint256.Int) int64 {
	asset.Assert(v.IsUint64() && v.Uint64() <= uint64(asset.MaxAmount), "pool_math", "result overflows int64")
	return int64(v.Uint64())
}
