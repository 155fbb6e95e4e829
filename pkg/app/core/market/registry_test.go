package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(AssetObject{Symbol: asset.CoinSymbol, Type: Currency}))
	require.NoError(t, r.Register(AssetObject{Symbol: asset.USDSymbol, Type: Stablecoin}))
	require.NoError(t, r.RegisterStablecoin(StablecoinData{Symbol: asset.USDSymbol, BackingSymbol: asset.CoinSymbol}))
	return r
}

func TestRegistry_Register(t *testing.T) {
	r := newRegistry(t)
	assert.Equal(t, 2, r.Count())
	require.Error(t, r.Register(AssetObject{Symbol: asset.CoinSymbol}))
	require.Error(t, r.Register(AssetObject{Symbol: "FEE", MarketFeePercent: asset.Percent100 + 1}))

	require.Error(t, r.RegisterStablecoin(StablecoinData{Symbol: asset.CoinSymbol, BackingSymbol: asset.USDSymbol}))
	assert.True(t, r.IsStablecoin(asset.USDSymbol))
	assert.False(t, r.IsStablecoin(asset.CoinSymbol))
}

func TestRegistry_StatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *StablecoinData)
		wantErr bool
	}{
		{
			name:    "settle without price",
			mutate:  func(s *StablecoinData) { s.Status = Settled },
			wantErr: true,
		},
		{
			name: "settle with price",
			mutate: func(s *StablecoinData) {
				s.Status = Settled
				s.SettlementPrice = asset.NewPrice(asset.New(2, asset.USDSymbol), asset.New(1, asset.CoinSymbol))
				s.SettlementFund = 10
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t)
			s, ok := r.Stablecoin(asset.USDSymbol)
			require.True(t, ok)
			tt.mutate(&s)
			err := r.UpdateStablecoin(s)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRegistry_ReviveRequiresEmptyFund(t *testing.T) {
	r := newRegistry(t)
	s, _ := r.Stablecoin(asset.USDSymbol)
	s.Status = Settled
	s.SettlementPrice = asset.NewPrice(asset.New(2, asset.USDSymbol), asset.New(1, asset.CoinSymbol))
	s.SettlementFund = 10
	require.NoError(t, r.UpdateStablecoin(s))

	s.Status = Normal
	require.Error(t, r.UpdateStablecoin(s))

	s.SettlementFund = 0
	require.NoError(t, r.UpdateStablecoin(s))

	got, _ := r.Stablecoin(asset.USDSymbol)
	assert.False(t, got.IsSettled())
}
