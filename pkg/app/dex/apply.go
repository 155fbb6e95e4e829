package dex

import (
	"fmt"

	"github.com/uhyunpark/hypercredit/pkg/app/core/engine"
	tx "github.com/uhyunpark/hypercredit/pkg/app/core/transaction"
)

// decoded runs fn with the transaction's payload decoded as T
func decoded[T any](t *tx.Transaction, fn func(T) error) error {
	p, err := tx.Decode[T](t)
	if err != nil {
		return err
	}
	return fn(p)
}

func discard[T any](_ T, err error) error { return err }

// applyTx routes a transaction to its engine operation; it runs inside
// engine.Apply, which rolls back a failed operation
func (a *App) applyTx(t *tx.Transaction) error {
	e, from := a.eng, t.Sender
	switch t.Type {
	case tx.TxCreateAsset:
		return decoded(t, func(p tx.CreateAsset) error {
			p.Asset.Issuer = from
			if p.Backing != "" {
				return e.CreateStablecoin(p.Asset, p.Backing)
			}
			return e.CreateAsset(p.Asset)
		})
	case tx.TxIssue:
		return decoded(t, func(p tx.Movement) error { return e.Issue(from, p.To, p.Amount) })
	case tx.TxBurn:
		return decoded(t, func(p tx.Amount) error { return e.Burn(from, p.Amount) })
	case tx.TxTransfer:
		return decoded(t, func(p tx.Movement) error { return e.Transfer(from, p.To, p.Amount) })
	case tx.TxTransferToSavings:
		return decoded(t, func(p tx.Movement) error { return e.TransferToSavings(from, p.To, p.Amount) })
	case tx.TxSavingsWithdraw:
		return decoded(t, func(p tx.SavingsWithdraw) error {
			return e.TransferFromSavings(from, p.RequestID, p.To, p.Amount)
		})
	case tx.TxCancelWithdraw:
		return decoded(t, func(p tx.CancelOrder) error { return e.CancelTransferFromSavings(from, p.OrderID) })
	case tx.TxStake:
		return decoded(t, func(p tx.Amount) error { return e.Stake(from, p.Amount) })
	case tx.TxUnstake:
		return decoded(t, func(p tx.Amount) error { return e.Unstake(from, p.Amount) })
	case tx.TxDelegate:
		return decoded(t, func(p tx.Movement) error { return e.Delegate(from, p.To, p.Amount) })
	case tx.TxUndelegate:
		return decoded(t, func(p tx.Movement) error { return e.Undelegate(from, p.To, p.Amount) })
	case tx.TxClaimReward:
		return decoded(t, func(p tx.Amount) error { return e.ClaimReward(from, p.Amount) })
	case tx.TxRecurringTransfer:
		return decoded(t, func(p tx.RecurringTransfer) error {
			return e.SetRecurringTransfer(from, p.To, p.Amount, p.Interval, p.Payments)
		})

	case tx.TxPublishFeed:
		return decoded(t, func(p tx.PublishFeed) error { return e.PublishFeed(from, p.Symbol, p.Feed) })
	case tx.TxCallOrderUpdate:
		return decoded(t, func(p tx.CallOrderUpdate) error {
			return e.CallOrderUpdate(from, p.DeltaCollateral, p.DeltaDebt, p.TargetCollateralRatio)
		})
	case tx.TxAssetSettle:
		return decoded(t, func(p tx.AssetSettle) error { return e.AssetSettle(from, p.Amount, p.Interface) })
	case tx.TxBidCollateral:
		return decoded(t, func(p tx.BidCollateral) error { return e.BidCollateral(from, p.Collateral, p.DebtCovered) })

	case tx.TxPoolCreate:
		return decoded(t, func(p tx.PoolCreate) error { return e.LiquidityPoolCreate(from, p.A, p.B) })
	case tx.TxPoolFund:
		return decoded(t, func(p tx.PoolFund) error { return e.LiquidityFund(from, p.In, p.Pair) })
	case tx.TxPoolWithdraw:
		return decoded(t, func(p tx.PoolWithdraw) error { return e.LiquidityWithdraw(from, p.Liquid, p.Receive) })
	case tx.TxPoolExchange:
		return decoded(t, func(p tx.PoolExchange) error {
			return discard(e.LiquidityExchange(from, p.In, p.Receive, p.Interface))
		})
	case tx.TxPoolAcquire:
		return decoded(t, func(p tx.PoolAcquire) error {
			return discard(e.LiquidityAcquire(from, p.Out, p.Pay, p.Interface))
		})
	case tx.TxPoolLimit:
		return decoded(t, func(p tx.PoolLimit) error {
			return discard(e.LiquidityLimitExchange(from, p.In, p.Limit, p.Interface))
		})
	case tx.TxCreditLend:
		return decoded(t, func(p tx.Amount) error { return e.CreditPoolLend(from, p.Amount) })
	case tx.TxCreditWithdraw:
		return decoded(t, func(p tx.Amount) error { return e.CreditPoolWithdraw(from, p.Amount) })
	case tx.TxCreditDeposit:
		return decoded(t, func(p tx.Amount) error { return e.CreditCollateralUpdate(from, p.Amount) })
	case tx.TxCreditBorrow:
		return decoded(t, func(p tx.CreditBorrow) error {
			return e.CreditPoolBorrow(from, p.LoanID, p.Debt, p.Collateral)
		})
	case tx.TxRepayDefault:
		return decoded(t, func(p tx.Amount) error { return e.RepayLoanDefault(from, p.Amount) })
	case tx.TxExerciseOption:
		return decoded(t, func(p tx.Amount) error { return e.ExerciseOption(from, p.Amount) })

	case tx.TxLimitOrder:
		return decoded(t, func(p tx.LimitOrder) error {
			return discard(e.PlaceLimitOrder(engine.LimitRequest{
				Owner:        from,
				OrderID:      p.OrderID,
				AmountToSell: p.AmountToSell,
				MinToReceive: p.MinToReceive,
				FillOrKill:   p.FillOrKill,
				Expiration:   p.Expiration,
				Interface:    p.Interface,
			}))
		})
	case tx.TxMarginOrder:
		return decoded(t, func(p tx.MarginOrder) error {
			return discard(e.PlaceMarginOrder(engine.MarginRequest{
				Owner:           from,
				OrderID:         p.OrderID,
				Collateral:      p.Collateral,
				Debt:            p.Debt,
				SellPrice:       p.SellPrice,
				StopLoss:        p.StopLoss,
				TakeProfit:      p.TakeProfit,
				LimitStopLoss:   p.LimitStopLoss,
				LimitTakeProfit: p.LimitTakeProfit,
				Expiration:      p.Expiration,
				Interface:       p.Interface,
			}))
		})
	case tx.TxAuctionOrder:
		return decoded(t, func(p tx.AuctionOrder) error {
			return discard(e.PlaceAuctionOrder(engine.AuctionRequest{
				Owner:        from,
				OrderID:      p.OrderID,
				AmountToSell: p.AmountToSell,
				MinToReceive: p.MinToReceive,
				Expiration:   p.Expiration,
				Interface:    p.Interface,
			}))
		})
	case tx.TxOptionOrder:
		return decoded(t, func(p tx.OptionOrder) error {
			return discard(e.PlaceOptionOrder(engine.OptionRequest{
				Owner:      from,
				OrderID:    p.OrderID,
				Units:      p.Units,
				Strike:     p.Strike,
				Call:       p.Call,
				Expiration: p.Expiration,
				Interface:  p.Interface,
			}))
		})

	case tx.TxCancelLimit:
		return decoded(t, func(p tx.CancelOrder) error { return e.CancelLimitOrder(from, p.OrderID) })
	case tx.TxCancelMargin:
		return decoded(t, func(p tx.CancelOrder) error { return e.CancelMarginOrder(from, p.OrderID) })
	case tx.TxCancelAuction:
		return decoded(t, func(p tx.CancelOrder) error { return e.CancelAuctionOrder(from, p.OrderID) })
	case tx.TxCancelOption:
		return decoded(t, func(p tx.CancelOrder) error { return e.CancelOptionOrder(from, p.OrderID) })
	}
	return fmt.Errorf("unsupported transaction type: %s", t.Type)
}
