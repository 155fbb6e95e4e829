package asset

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimal returns the amount as a decimal of whole units
func (a Asset) Decimal() decimal.Decimal {
	return decimal.New(a.Amount, -Decimals)
}

// String renders "12.50000000 COIN"
func (a Asset) String() string {
	return a.Decimal().StringFixed(Decimals) + " " + string(a.Symbol)
}

// ParseAsset parses "12.5 COIN" into smallest units
func ParseAsset(s string) (Asset, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Asset{}, fmt.Errorf("%w: %q (want \"<amount> <SYMBOL>\")", ErrParse, s)
	}
	d, err := decimal.NewFromString(fields[0])
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %q: %v", ErrParse, s, err)
	}
	units := d.Shift(Decimals)
	if !units.IsInteger() {
		return Asset{}, fmt.Errorf("%w: %q has more than %d decimals", ErrParse, s, Decimals)
	}
	if units.GreaterThan(decimal.NewFromInt(MaxAmount)) || units.LessThan(decimal.NewFromInt(-MaxAmount)) {
		return Asset{}, fmt.Errorf("%w: %q out of range", ErrParse, s)
	}
	return Asset{Amount: units.IntPart(), Symbol: Symbol(fields[1])}, nil
}

// MustParse is ParseAsset for constants and tests
func MustParse(s string) Asset {
	a, err := ParseAsset(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Real returns base/quote as a decimal with 16 digits of precision (display only)
func (p Price) Real() decimal.Decimal {
	if p.IsNull() {
		return decimal.Zero
	}
	return decimal.NewFromInt(p.Base.Amount).DivRound(decimal.NewFromInt(p.Quote.Amount), 16)
}

// String renders "1.5 USD/COIN"
func (p Price) String() string {
	if p.IsNull() {
		return "null"
	}
	return p.Real().String() + " " + string(p.Base.Symbol) + "/" + string(p.Quote.Symbol)
}
