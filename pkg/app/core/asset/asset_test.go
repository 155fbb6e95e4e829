package asset

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsset_Arithmetic(t *testing.T) {
	tests := []struct {
		name string
		got  Asset
		want Asset
	}{
		{"add", New(100, CoinSymbol).Add(New(50, CoinSymbol)), New(150, CoinSymbol)},
		{"sub to negative", New(100, CoinSymbol).Sub(New(150, CoinSymbol)), New(-50, CoinSymbol)},
		{"units", Units(3, USDSymbol), New(300_000_000, USDSymbol)},
		{"percent floors", New(9_999, CoinSymbol).Percent(25), New(24, CoinSymbol)},
		{"scale ceil", New(10, CoinSymbol).ScaleCeil(1, 3), New(4, CoinSymbol)},
		{"scale negative keeps sign", New(-10, CoinSymbol).Scale(1, 3), New(-3, CoinSymbol)},
		{"times", New(7, CoinSymbol).Times(6), New(42, CoinSymbol)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestAsset_MinMax(t *testing.T) {
	a, b := New(1, CoinSymbol), New(2, CoinSymbol)
	assert.Equal(t, a, Min(a, b))
	assert.Equal(t, b, Max(a, b))
	assert.True(t, a.Less(b))
	assert.True(t, a.LessEq(a))
}

func TestAsset_SymbolMismatchPanics(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(*PreconditionError)
		require.True(t, ok, "panic value %T", r)
		assert.True(t, errors.Is(err, ErrPrecondition))
	}()
	New(1, CoinSymbol).Add(New(1, USDSymbol))
}

func TestAsset_OverflowPanics(t *testing.T) {
	require.Panics(t, func() { New(math.MaxInt64, CoinSymbol).Add(New(1, CoinSymbol)) })
	require.Panics(t, func() { New(math.MaxInt64, CoinSymbol).Times(2) })
	require.Panics(t, func() { New(1, CoinSymbol).Scale(1, 0) })
}

func TestParseAsset(t *testing.T) {
	tests := []struct {
		in      string
		want    Asset
		wantErr bool
	}{
		{in: "12.5 COIN", want: New(1_250_000_000, CoinSymbol)},
		{in: "0.00000001 USD", want: New(1, USDSymbol)},
		{in: "-3 CREDIT", want: New(-300_000_000, CreditSymbol)},
		{in: "0.000000001 USD", wantErr: true},
		{in: "12.5", wantErr: true},
		{in: "abc COIN", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAsset(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAsset_String(t *testing.T) {
	assert.Equal(t, "12.50000000 COIN", New(1_250_000_000, CoinSymbol).String())
	assert.Equal(t, "-0.00000001 USD", New(-1, USDSymbol).String())
}
