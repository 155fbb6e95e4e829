package asset

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// Price is the exchange ratio Base/Quote between two different symbols.
// Its value reads as "base per quote": a limit order selling COIN for USD
// at Price{100 COIN, 150 USD} offers 100/150 COIN for each USD.
//
// Prices of the same pair are totally ordered by cross-multiplication
// (256-bit intermediates, no rounding):
//
//	p < q  ⇔  p.Base × q.Quote < q.Base × p.Quote
type Price struct {
	Base  Asset `json:"base"`
	Quote Asset `json:"quote"`
}

// NewPrice builds base/quote
func NewPrice(base, quote Asset) Price {
	return Price{Base: base, Quote: quote}
}

// MaxPrice is the largest representable base/quote price
func MaxPrice(base, quote Symbol) Price {
	return Price{Base: Asset{MaxAmount, base}, Quote: Asset{1, quote}}
}

// MinPrice is the smallest representable base/quote price
func MinPrice(base, quote Symbol) Price {
	return Price{Base: Asset{1, base}, Quote: Asset{MaxAmount, quote}}
}

// UnitPrice is 1:1 between two symbols
func UnitPrice(base, quote Symbol) Price {
	return Price{Base: Asset{1, base}, Quote: Asset{1, quote}}
}

// IsNull reports an unset price (zero value)
func (p Price) IsNull() bool {
	return p.Base.Amount == 0 || p.Quote.Amount == 0
}

// Validate checks both sides are positive and of different symbols
func (p Price) Validate() error {
	if p.Base.Amount <= 0 || p.Quote.Amount <= 0 {
		return fmt.Errorf("%w: non-positive side %s", ErrInvalidPrice, p)
	}
	if p.Base.Symbol == p.Quote.Symbol {
		return fmt.Errorf("%w: same symbol on both sides %s", ErrInvalidPrice, p.Base.Symbol)
	}
	return nil
}

// Invert swaps base and quote (~p)
func (p Price) Invert() Price {
	return Price{Base: p.Quote, Quote: p.Base}
}

// SamePair reports whether both prices are base/quote of the same symbols
func (p Price) SamePair(q Price) bool {
	return p.Base.Symbol == q.Base.Symbol && p.Quote.Symbol == q.Quote.Symbol
}

// Cmp compares two prices of the same pair
func (p Price) Cmp(q Price) int {
	if !p.SamePair(q) {
		panicf("price_compare", "pair mismatch: %s/%s vs %s/%s",
			p.Base.Symbol, p.Quote.Symbol, q.Base.Symbol, q.Quote.Symbol)
	}
	l := new(uint256.Int).Mul(u256(p.Base.Amount), u256(q.Quote.Amount))
	r := new(uint256.Int).Mul(u256(q.Base.Amount), u256(p.Quote.Amount))
	return l.Cmp(r)
}

func (p Price) Less(q Price) bool    { return p.Cmp(q) < 0 }
func (p Price) LessEq(q Price) bool  { return p.Cmp(q) <= 0 }
func (p Price) Greater(q Price) bool { return p.Cmp(q) > 0 }
func (p Price) GreaterEq(q Price) bool {
	return p.Cmp(q) >= 0
}

// Equal compares by value (100/200 == 1/2)
func (p Price) Equal(q Price) bool { return p.Cmp(q) == 0 }

// Mul converts a into the other side of p, rounding down.
// If a is the base symbol the result is in quote symbol (a × quote / base),
// if a is the quote symbol the result is in base symbol (a × base / quote).
func (a Asset) Mul(p Price) Asset {
	return a.mulPrice(p, false)
}

// MulCeil is Mul rounding up
func (a Asset) MulCeil(p Price) Asset {
	return a.mulPrice(p, true)
}

func (a Asset) mulPrice(p Price, roundUp bool) Asset {
	if p.IsNull() {
		panicf("mul_price", "null price")
	}
	if a.Amount < 0 {
		panicf("mul_price", "negative amount %d", a.Amount)
	}
	switch a.Symbol {
	case p.Base.Symbol:
		return Asset{Amount: mulDiv(uint64(a.Amount), uint64(p.Quote.Amount), uint64(p.Base.Amount), roundUp), Symbol: p.Quote.Symbol}
	case p.Quote.Symbol:
		return Asset{Amount: mulDiv(uint64(a.Amount), uint64(p.Base.Amount), uint64(p.Quote.Amount), roundUp), Symbol: p.Base.Symbol}
	}
	panicf("mul_price", "asset %s not in price %s/%s", a.Symbol, p.Base.Symbol, p.Quote.Symbol)
	return Asset{}
}

// NewPriceRatio builds a price num/den between two symbols, reduced by their
// gcd and halved on both sides until each fits an int64.
func NewPriceRatio(base, quote Symbol, num, den *uint256.Int) Price {
	if num.IsZero() || den.IsZero() {
		panicf("price_ratio", "zero side")
	}
	n, d := num.Clone(), den.Clone()
	g := gcd(n, d)
	if !g.Eq(uint256.NewInt(1)) {
		n.Div(n, g)
		d.Div(d, g)
	}
	limit := uint256.NewInt(math.MaxInt64)
	for n.Gt(limit) || d.Gt(limit) {
		n.Rsh(n, 1)
		d.Rsh(d, 1)
	}
	if n.IsZero() {
		n.SetUint64(1)
	}
	if d.IsZero() {
		d.SetUint64(1)
	}
	return Price{
		Base:  Asset{Amount: int64(n.Uint64()), Symbol: base},
		Quote: Asset{Amount: int64(d.Uint64()), Symbol: quote},
	}
}

// Scale multiplies the base side by baseNum and the quote side by quoteNum
// Example: settlement.Scale(1000, 1500) divides the value by 1.5
func (p Price) Scale(baseNum, quoteNum int64) Price {
	n := new(uint256.Int).Mul(u256(p.Base.Amount), u256(baseNum))
	d := new(uint256.Int).Mul(u256(p.Quote.Amount), u256(quoteNum))
	return NewPriceRatio(p.Base.Symbol, p.Quote.Symbol, n, d)
}

func gcd(a, b *uint256.Int) *uint256.Int {
	x, y := a.Clone(), b.Clone()
	for !y.IsZero() {
		x, y = y, new(uint256.Int).Mod(x, y)
	}
	return x
}

func u256(v int64) *uint256.Int {
	if v < 0 {
		panicf("u256", "negative value %d", v)
	}
	return uint256.NewInt(uint64(v))
}
