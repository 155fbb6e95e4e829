package asset

import (
	"math"

	"github.com/holiman/uint256"
)

// Symbol identifies an asset on the ledger (e.g. "COIN", "USD")
type Symbol string

// Well-known symbols
const (
	CoinSymbol   Symbol = "COIN"   // Core network asset, backs stablecoins
	EquitySymbol Symbol = "EQUITY" // Network equity asset
	USDSymbol    Symbol = "USD"    // Default stablecoin
	CreditSymbol Symbol = "CREDIT" // Network credit asset, used to cover loan defaults
)

// Fixed-point constants shared by the whole ledger
const (
	// Precision is the number of smallest units in one whole unit (8 decimals)
	Precision int64 = 100_000_000
	Decimals  int32 = 8

	// Percent100 is 100% in basis points
	Percent100 int64 = 10_000
	Percent1   int64 = 100

	// MaxAmount bounds every single amount
	MaxAmount int64 = math.MaxInt64
)

// Asset is an integer amount of smallest units of a symbol
type Asset struct {
	Amount int64  `json:"amount"`
	Symbol Symbol `json:"symbol"`
}

// New creates an asset of amount smallest units
func New(amount int64, symbol Symbol) Asset {
	return Asset{Amount: amount, Symbol: symbol}
}

// Zero returns the zero asset of a symbol
func Zero(symbol Symbol) Asset {
	return Asset{Symbol: symbol}
}

// Units creates an asset of whole units (units × Precision)
func Units(units int64, symbol Symbol) Asset {
	return Asset{Amount: checkedMul(units, Precision), Symbol: symbol}
}

func (a Asset) IsZero() bool     { return a.Amount == 0 }
func (a Asset) IsPositive() bool { return a.Amount > 0 }
func (a Asset) IsNegative() bool { return a.Amount < 0 }

func (a Asset) Neg() Asset {
	if a.Amount == math.MinInt64 {
		panicf("neg", "amount overflow")
	}
	return Asset{Amount: -a.Amount, Symbol: a.Symbol}
}

// Add returns a + b; symbols must match
func (a Asset) Add(b Asset) Asset {
	a.mustMatch("add", b)
	if (b.Amount > 0 && a.Amount > math.MaxInt64-b.Amount) ||
		(b.Amount < 0 && a.Amount < math.MinInt64-b.Amount) {
		panicf("add", "amount overflow: %d + %d %s", a.Amount, b.Amount, a.Symbol)
	}
	return Asset{Amount: a.Amount + b.Amount, Symbol: a.Symbol}
}

// Sub returns a - b; symbols must match
func (a Asset) Sub(b Asset) Asset {
	a.mustMatch("sub", b)
	return a.Add(b.Neg())
}

// Compare returns -1, 0 or +1; symbols must match
func (a Asset) Compare(b Asset) int {
	a.mustMatch("compare", b)
	switch {
	case a.Amount < b.Amount:
		return -1
	case a.Amount > b.Amount:
		return 1
	}
	return 0
}

func (a Asset) Less(b Asset) bool   { return a.Compare(b) < 0 }
func (a Asset) LessEq(b Asset) bool { return a.Compare(b) <= 0 }

// Min returns the smaller of a and b
func Min(a, b Asset) Asset {
	if b.Less(a) {
		return b
	}
	return a
}

// Max returns the larger of a and b
func Max(a, b Asset) Asset {
	if a.Less(b) {
		return b
	}
	return a
}

// Times multiplies by an integer factor
func (a Asset) Times(n int64) Asset {
	return Asset{Amount: checkedMul(a.Amount, n), Symbol: a.Symbol}
}

// Scale returns a × num / den rounded toward zero
func (a Asset) Scale(num, den int64) Asset {
	return Asset{Amount: signedMulDiv(a.Amount, num, den, false), Symbol: a.Symbol}
}

// ScaleCeil returns a × num / den rounded away from zero
func (a Asset) ScaleCeil(num, den int64) Asset {
	return Asset{Amount: signedMulDiv(a.Amount, num, den, true), Symbol: a.Symbol}
}

// Percent returns a × bps / Percent100 (floor)
// Example: Asset{10000}.Percent(25) = 25 (0.25%)
func (a Asset) Percent(bps int64) Asset {
	return a.Scale(bps, Percent100)
}

// WholeUnits reports whether the amount is a multiple of Precision
func (a Asset) WholeUnits() bool {
	return a.Amount%Precision == 0
}

func (a Asset) mustMatch(op string, b Asset) {
	if a.Symbol != b.Symbol {
		panic(&PreconditionError{Op: op, Msg: "symbol mismatch: " + string(a.Symbol) + " vs " + string(b.Symbol)})
	}
}

func checkedMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	c := a * b
	if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		panicf("mul", "amount overflow: %d × %d", a, b)
	}
	return c
}

// signedMulDiv computes a × num / den with 256-bit intermediates.
// num and den must be positive; the sign of a is preserved.
func signedMulDiv(a, num, den int64, roundUp bool) int64 {
	if num < 0 || den <= 0 {
		panicf("scale", "invalid ratio %d/%d", num, den)
	}
	if a < 0 {
		if a == math.MinInt64 {
			panicf("scale", "amount overflow")
		}
		return -mulDiv(uint64(-a), uint64(num), uint64(den), roundUp)
	}
	return mulDiv(uint64(a), uint64(num), uint64(den), roundUp)
}

// mulDiv computes x × y / d as int64, floor or ceil
func mulDiv(x, y, d uint64, roundUp bool) int64 {
	if d == 0 {
		panicf("mul_div", "division by zero")
	}
	prod := new(uint256.Int).Mul(uint256.NewInt(x), uint256.NewInt(y))
	return divToInt64(prod, uint256.NewInt(d), roundUp)
}

func divToInt64(n, d *uint256.Int, roundUp bool) int64 {
	q := new(uint256.Int).Div(n, d)
	if roundUp && !new(uint256.Int).Mod(n, d).IsZero() {
		q.Add(q, uint256.NewInt(1))
	}
	if !q.IsUint64() || q.Uint64() > math.MaxInt64 {
		panicf("mul_div", "result overflows int64")
	}
	return int64(q.Uint64())
}
