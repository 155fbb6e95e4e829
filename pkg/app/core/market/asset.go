package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

// AssetType defines how an asset is issued and what it can back
type AssetType int8

const (
	Currency      AssetType = iota // Network-issued (COIN, EQUITY)
	Standard                       // User-issued
	Stablecoin                     // Issued against call-order collateral
	LiquidityPool                  // Pool share token
	CreditPool                     // Credit pool share token
	Option                         // Option contract token
	Credit                         // Network credit
)

func (t AssetType) String() string {
	switch t {
	case Currency:
		return "Currency"
	case Standard:
		return "Standard"
	case Stablecoin:
		return "Stablecoin"
	case LiquidityPool:
		return "LiquidityPool"
	case CreditPool:
		return "CreditPool"
	case Option:
		return "Option"
	case Credit:
		return "Credit"
	default:
		return "Unknown"
	}
}

// Tradable reports whether the asset may back credit and liquidity pools
func (t AssetType) Tradable() bool {
	return t == Currency || t == Standard || t == Stablecoin || t == Credit
}

// StablecoinStatus is the settlement state of a stablecoin
type StablecoinStatus int8

const (
	Normal  StablecoinStatus = iota // Calls and trading enabled
	Settled                         // Globally settled, redeemable from the settlement fund
)

func (s StablecoinStatus) String() string {
	switch s {
	case Normal:
		return "Normal"
	case Settled:
		return "Settled"
	default:
		return "Unknown"
	}
}

// AssetObject describes an asset registered on the ledger
type AssetObject struct {
	Symbol asset.Symbol   `json:"symbol"`
	Issuer common.Address `json:"issuer"`
	Type   AssetType      `json:"type"`

	// MarketFeePercent (basis points) is charged to takers receiving this
	// asset and paid to the issuer's reward balance
	MarketFeePercent int64 `json:"market_fee_percent"`

	// MaxSupply bounds issuer issuance (0 = unbounded)
	MaxSupply int64 `json:"max_supply"`

	// BuybackPrice (COIN per unit) is the price the network defends through
	// credit buybacks; set only on the network credit asset
	BuybackPrice asset.Price `json:"buyback_price"`
}

// Validate checks registration parameters
func (a AssetObject) Validate() error {
	if a.Symbol == "" {
		return fmt.Errorf("asset symbol is empty")
	}
	if a.MarketFeePercent < 0 || a.MarketFeePercent > asset.Percent100 {
		return fmt.Errorf("market fee %d bps out of range for %s", a.MarketFeePercent, a.Symbol)
	}
	if a.MaxSupply < 0 {
		return fmt.Errorf("negative max supply for %s", a.Symbol)
	}
	return nil
}

// StablecoinData carries the collateral state of a stablecoin
type StablecoinData struct {
	Symbol        asset.Symbol     `json:"symbol"`
	BackingSymbol asset.Symbol     `json:"backing_symbol"`
	Feed          asset.PriceFeed  `json:"feed"`
	Status        StablecoinStatus `json:"status"`

	// Set by global settlement: supply / collateral gathered
	SettlementPrice asset.Price `json:"settlement_price"`
	SettlementFund  int64       `json:"settlement_fund"`

	// Force settlement: delay (seconds) and discount against the feed (bps)
	ForceSettleDelay  int64 `json:"force_settle_delay"`
	ForceSettleOffset int64 `json:"force_settle_offset"`
}

// IsSettled reports whether the asset has been globally settled
func (s StablecoinData) IsSettled() bool { return s.Status == Settled }

// HasValidFeed reports whether a usable feed has been published
func (s StablecoinData) HasValidFeed() bool {
	return !s.Feed.IsNull() && s.Feed.Validate() == nil
}

// SettlementFundAsset returns the collateral held for redemptions
func (s StablecoinData) SettlementFundAsset() asset.Asset {
	return asset.New(s.SettlementFund, s.BackingSymbol)
}
