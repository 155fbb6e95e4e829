package engine

import (
	"fmt"

	"go.uber.org/zap"
)

type task struct {
	name     string
	interval int64 // blocks; 0 runs every block
	run      func() error
}

func (e *Engine) tasks() []task {
	p := e.params
	return []task{
		{"clear_expired_orders", 0, e.ClearExpiredOrders},
		{"asset_staking", 0, e.ProcessAssetStaking},
		{"savings_withdraws", 0, e.ProcessSavingsWithdraws},
		{"recurring_transfers", 0, e.ProcessRecurringTransfers},
		{"settlement_orders", 0, e.ProcessSettlementOrders},
		{"collateral_bids", 0, e.ProcessCollateralBids},
		{"option_orders", 0, e.ProcessOptionOrders},
		{"median_liquidity", p.MedianInterval, e.UpdateMedianLiquidity},
		{"margin_updates", p.MarginInterval, e.ProcessMarginUpdates},
		{"credit_updates", p.MarginInterval, e.ProcessCreditUpdates},
		{"auction_orders", p.AuctionInterval, e.ProcessAuctionOrders},
		{"credit_interest", p.CreditInterval, e.ProcessCreditInterest},
		{"credit_buybacks", p.CreditInterval, e.ProcessCreditBuybacks},
	}
}

// RunMaintenance moves the head to (height, unix) and runs the block's
// scheduled work. Each task is its own transaction: a failing task is
// rolled back and logged, and the rest still run.
//
// With ValidateInvariants set, the supply audit runs afterwards and its
// failure is returned.
func (e *Engine) RunMaintenance(height, unix int64) error {
	e.SetHead(height, unix)
	for _, t := range e.tasks() {
		if t.interval > 0 && height%t.interval != 0 {
			continue
		}
		if err := e.Apply(t.run); err != nil {
			e.log.Warn("maintenance task rolled back",
				zap.String("task", t.name),
				zap.Int64("height", height),
				zap.Error(err))
			e.metrics.MaintenanceFailed(t.name)
		}
	}
	if !e.params.ValidateInvariants {
		return nil
	}
	if err := e.AuditSupply(); err != nil {
		e.log.Error("supply audit failed", zap.Int64("height", height), zap.Error(err))
		return fmt.Errorf("block %d: %w", height, err)
	}
	return nil
}
