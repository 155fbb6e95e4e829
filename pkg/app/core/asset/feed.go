package asset

import "fmt"

// Collateral ratios are expressed per-mille
const (
	CollateralRatioDenom   int64 = 1000
	MinCollateralRatio     int64 = 1001  // lower than this could result in divide by 0
	MaxCollateralRatio     int64 = 32000 // higher than this is unnecessary
	DefaultMaintenanceCR   int64 = 1750  // call when collateral only pays off 175% the debt
	DefaultMaxShortSqueeze int64 = 1500  // stop calling when collateral only pays off 150% of the debt
)

// PriceFeed is the published valuation of a stablecoin against its backing asset
type PriceFeed struct {
	// SettlementPrice is debt/collateral (e.g. USD/COIN), the fair value used for
	// force settlement and global settlement
	SettlementPrice Price `json:"settlement_price"`

	// MaintenanceCollateralRatio (per-mille): a call order whose collateral/debt
	// drops to MCR/1000 of the settlement value is margin called
	MaintenanceCollateralRatio int64 `json:"maintenance_collateral_ratio"`

	// MaximumShortSqueezeRatio (per-mille): margin calls never pay more than
	// MSSR/1000 times the settlement value in collateral
	MaximumShortSqueezeRatio int64 `json:"maximum_short_squeeze_ratio"`

	// CoreExchangeRate converts fees between the stablecoin and COIN
	CoreExchangeRate Price `json:"core_exchange_rate"`

	PublishTime int64 `json:"publish_time"`
}

// NewPriceFeed creates a feed with default ratios
func NewPriceFeed(settlement Price) PriceFeed {
	return PriceFeed{
		SettlementPrice:            settlement,
		MaintenanceCollateralRatio: DefaultMaintenanceCR,
		MaximumShortSqueezeRatio:   DefaultMaxShortSqueeze,
		CoreExchangeRate:           settlement,
	}
}

// IsNull reports a feed that was never published
func (f PriceFeed) IsNull() bool {
	return f.SettlementPrice.IsNull()
}

// Validate checks the price and ratio bounds
func (f PriceFeed) Validate() error {
	if err := f.SettlementPrice.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFeed, err)
	}
	if f.MaintenanceCollateralRatio < MinCollateralRatio || f.MaintenanceCollateralRatio > MaxCollateralRatio {
		return fmt.Errorf("%w: maintenance collateral ratio %d out of range", ErrInvalidFeed, f.MaintenanceCollateralRatio)
	}
	if f.MaximumShortSqueezeRatio < MinCollateralRatio || f.MaximumShortSqueezeRatio > MaxCollateralRatio {
		return fmt.Errorf("%w: max short squeeze ratio %d out of range", ErrInvalidFeed, f.MaximumShortSqueezeRatio)
	}
	return nil
}

// MaxShortSqueezePrice is the worst debt/collateral price a margin call may
// be filled at.
// Formula: settlement × 1000 / MSSR (debt per collateral)
func (f PriceFeed) MaxShortSqueezePrice() Price {
	return f.SettlementPrice.Scale(CollateralRatioDenom, f.MaximumShortSqueezeRatio)
}

// MaintenanceCollateralization is the collateral/debt ratio at or below which
// a call order is margin called.
// Formula: ~settlement × MCR / 1000 (collateral per debt)
func (f PriceFeed) MaintenanceCollateralization() Price {
	return f.SettlementPrice.Invert().Scale(f.MaintenanceCollateralRatio, CollateralRatioDenom)
}

// DebtSymbol is the stablecoin side of the feed
func (f PriceFeed) DebtSymbol() Symbol { return f.SettlementPrice.Base.Symbol }

// CollateralSymbol is the backing side of the feed
func (f PriceFeed) CollateralSymbol() Symbol { return f.SettlementPrice.Quote.Symbol }
