package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

// takerFees is what a taker fill pays out of the amount it receives
type takerFees struct {
	Market    asset.Asset // To the issuer's reward balance
	Network   asset.Asset
	Interface asset.Asset
}

func (f takerFees) total() asset.Asset {
	return f.Market.Add(f.Network).Add(f.Interface)
}

func (e *Engine) computeTakerFees(receives asset.Asset, iface common.Address) (takerFees, error) {
	a, ok := e.st.Registry.Get(receives.Symbol)
	if !ok {
		return takerFees{}, fmt.Errorf("%w: %s", ErrUnknownAsset, receives.Symbol)
	}
	trading := receives.Percent(e.params.TradingFeePercent)
	f := takerFees{
		Market:    receives.Percent(a.MarketFeePercent),
		Interface: asset.Zero(receives.Symbol),
	}
	if !isNull(iface) {
		f.Interface = trading.Percent(e.params.InterfaceFeeShare)
	}
	f.Network = trading.Sub(f.Interface)
	return f, nil
}

// payTakerFees releases the fees on a taker's pending receipt and returns
// what is left for the taker
func (e *Engine) payTakerFees(receives asset.Asset, iface common.Address) (asset.Asset, error) {
	f, err := e.computeTakerFees(receives, iface)
	if err != nil {
		return asset.Asset{}, err
	}
	if f.Market.IsPositive() {
		a, _ := e.st.Registry.Get(receives.Symbol)
		if err := e.st.Ledger.AdjustPendingSupply(f.Market.Neg()); err != nil {
			return asset.Asset{}, err
		}
		if err := e.st.Ledger.AdjustRewardBalance(a.Issuer, f.Market); err != nil {
			return asset.Asset{}, err
		}
	}
	if err := e.release(iface, f.Interface); err != nil {
		return asset.Asset{}, err
	}
	if err := e.release(account.NullAccount, f.Network); err != nil {
		return asset.Asset{}, err
	}
	return receives.Sub(f.total()), nil
}

// poolFees splits a liquidity pool fee taken from an input
type poolFees struct {
	Pool      asset.Asset // Left in the pool for liquidity providers
	Network   asset.Asset
	Interface asset.Asset
}

func (e *Engine) computePoolFees(in asset.Asset, iface common.Address) poolFees {
	fee := in.Percent(e.params.PoolFeePercent)
	f := poolFees{
		Pool:      fee.Percent(e.params.PoolFeeShare),
		Interface: asset.Zero(in.Symbol),
	}
	if !isNull(iface) {
		f.Interface = fee.Percent(e.params.InterfaceFeeShare)
	}
	f.Network = fee.Sub(f.Pool).Sub(f.Interface)
	return f
}

func (f poolFees) total() asset.Asset {
	return f.Pool.Add(f.Network).Add(f.Interface)
}

// grossInput returns the largest gross input whose net after pool fees does
// not exceed net
func (e *Engine) grossInput(net asset.Asset) asset.Asset {
	return net.Scale(asset.Percent100, asset.Percent100-e.params.PoolFeePercent)
}

// grossUp returns the smallest gross input whose net after pool fees
// covers net
func (e *Engine) grossUp(net asset.Asset) asset.Asset {
	f := e.params.PoolFeePercent
	gross := net.ScaleCeil(asset.Percent100, asset.Percent100-f)
	for gross.Sub(gross.Percent(f)).Less(net) {
		gross = gross.Add(asset.New(1, gross.Symbol))
	}
	return gross
}
