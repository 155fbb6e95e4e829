package params

import (
	"fmt"
	"time"
)

// Engine holds the consensus constants of the trading and credit engine.
// Every node must run with identical values. Percentages are basis points
// (10000 = 100%) unless noted.
type Engine struct {
	// Trading fees paid by takers
	TradingFeePercent int64 `mapstructure:"trading_fee_percent"`
	InterfaceFeeShare int64 `mapstructure:"interface_fee_share"` // Share of each fee paid to the order's interface

	// Liquidity pools
	PoolFeePercent     int64 `mapstructure:"pool_fee_percent"`
	PoolFeeShare       int64 `mapstructure:"pool_fee_share"`  // Share of pool fees left in the pool
	MedianInterval     int64 `mapstructure:"median_interval"` // Blocks between price samples
	PriceHistoryLength int   `mapstructure:"price_history_length"`
	HourSamples        int   `mapstructure:"hour_samples"`

	// Credit pools, loans and margin orders
	CreditCheckMultiplier  int64 `mapstructure:"credit_check_multiplier"`
	MaxCreditRatio         int64 `mapstructure:"max_credit_ratio"`
	CreditFixedRate        int64 `mapstructure:"credit_fixed_rate"`
	CreditVariableRate     int64 `mapstructure:"credit_variable_rate"`
	CreditOpenRatio        int64 `mapstructure:"credit_open_ratio"`        // Minimum collateral/debt to open a loan
	CreditLiquidationRatio int64 `mapstructure:"credit_liquidation_ratio"` // Loans below this are liquidated
	MarginOpenRatio        int64 `mapstructure:"margin_open_ratio"`        // Minimum equity/debt to open a margin order
	MarginLiquidationRatio int64 `mapstructure:"margin_liquidation_ratio"` // Margin orders below this are closed
	MarginInterval         int64 `mapstructure:"margin_interval"`          // Blocks between margin and loan updates

	// Network credit holder interest, per balance bucket
	CreditInterval       int64 `mapstructure:"credit_interval"` // Blocks between interest payments and buybacks
	CreditLiquidFixed    int64 `mapstructure:"credit_liquid_fixed"`
	CreditLiquidVariable int64 `mapstructure:"credit_liquid_variable"`
	CreditStakedFixed    int64 `mapstructure:"credit_staked_fixed"`
	CreditStakedVariable int64 `mapstructure:"credit_staked_variable"`
	CreditSavingsFixed   int64 `mapstructure:"credit_savings_fixed"`
	CreditSavingsVar     int64 `mapstructure:"credit_savings_variable"`
	CreditMinRate        int64 `mapstructure:"credit_min_rate"`
	CreditMaxRate        int64 `mapstructure:"credit_max_rate"`

	// Auctions
	AuctionInterval int64 `mapstructure:"auction_interval"`

	// Stablecoins
	ForceSettleDelay  time.Duration `mapstructure:"force_settle_delay"`
	ForceSettleOffset int64         `mapstructure:"force_settle_offset"`

	// Account movements
	UnstakeIntervals     int64         `mapstructure:"unstake_intervals"`
	UnstakeInterval      time.Duration `mapstructure:"unstake_interval"`
	SavingsWithdrawDelay time.Duration `mapstructure:"savings_withdraw_delay"`
	MinRecurringInterval time.Duration `mapstructure:"min_recurring_interval"`

	// ValidateInvariants runs a full supply audit after every block
	ValidateInvariants bool `mapstructure:"validate_invariants"`
}

// DefaultEngine returns production values
func DefaultEngine() Engine {
	return Engine{
		TradingFeePercent: 10, // 0.1%
		InterfaceFeeShare: 2500,

		PoolFeePercent:     30, // 0.3%
		PoolFeeShare:       5000,
		MedianInterval:     20,
		PriceHistoryLength: 1440,
		HourSamples:        60,

		CreditCheckMultiplier:  10,
		MaxCreditRatio:         5000,
		CreditFixedRate:        500,
		CreditVariableRate:     1000,
		CreditOpenRatio:        15000,
		CreditLiquidationRatio: 12500,
		MarginOpenRatio:        2500,
		MarginLiquidationRatio: 2000,
		MarginInterval:         20,

		CreditInterval:       1200,
		CreditLiquidFixed:    0,
		CreditLiquidVariable: 200,
		CreditStakedFixed:    300,
		CreditStakedVariable: 400,
		CreditSavingsFixed:   500,
		CreditSavingsVar:     600,
		CreditMinRate:        0,
		CreditMaxRate:        2000,

		AuctionInterval: 1200,

		ForceSettleDelay:  24 * time.Hour,
		ForceSettleOffset: 100,

		UnstakeIntervals:     4,
		UnstakeInterval:      7 * 24 * time.Hour,
		SavingsWithdrawDelay: 3 * 24 * time.Hour,
		MinRecurringInterval: time.Hour,
	}
}

// Validate rejects parameter sets the engine cannot run with
func (e Engine) Validate() error {
	bps := map[string]int64{
		"trading_fee_percent":      e.TradingFeePercent,
		"interface_fee_share":      e.InterfaceFeeShare,
		"pool_fee_percent":         e.PoolFeePercent,
		"pool_fee_share":           e.PoolFeeShare,
		"max_credit_ratio":         e.MaxCreditRatio,
		"force_settle_offset":      e.ForceSettleOffset,
		"margin_liquidation_ratio": e.MarginLiquidationRatio,
	}
	for name, v := range bps {
		if v < 0 || v > 10000 {
			return fmt.Errorf("%s = %d out of range [0, 10000]", name, v)
		}
	}
	if e.PoolFeeShare+e.InterfaceFeeShare > 10000 {
		return fmt.Errorf("pool_fee_share + interface_fee_share exceeds 10000")
	}
	for name, v := range map[string]int64{
		"median_interval":         e.MedianInterval,
		"margin_interval":         e.MarginInterval,
		"credit_interval":         e.CreditInterval,
		"auction_interval":        e.AuctionInterval,
		"unstake_intervals":       e.UnstakeIntervals,
		"credit_check_multiplier": e.CreditCheckMultiplier,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if e.PriceHistoryLength <= 0 || e.HourSamples <= 0 || e.HourSamples > e.PriceHistoryLength {
		return fmt.Errorf("invalid price history: length %d, hour samples %d", e.PriceHistoryLength, e.HourSamples)
	}
	if e.MarginOpenRatio < e.MarginLiquidationRatio {
		return fmt.Errorf("margin_open_ratio below margin_liquidation_ratio")
	}
	if e.CreditOpenRatio < e.CreditLiquidationRatio {
		return fmt.Errorf("credit_open_ratio below credit_liquidation_ratio")
	}
	if e.CreditMinRate > e.CreditMaxRate {
		return fmt.Errorf("credit_min_rate above credit_max_rate")
	}
	return nil
}
