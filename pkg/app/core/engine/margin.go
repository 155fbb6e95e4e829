package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/orderbook"
	"github.com/uhyunpark/hypercredit/pkg/app/core/pool"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
)

// Margin close reasons
const (
	CloseLiquidated        = "liquidated"
	CloseCollateralization = "collateralization"
	CloseStopLoss          = "stop_loss"
	CloseTakeProfit        = "take_profit"
	CloseExpired           = "expired"
	CloseCancelled         = "cancelled"
)

// MarginRequest opens a margin order: Debt is borrowed from its credit pool
// and sold at SellPrice (debt/position) for the position asset.
// Trigger prices are debt/position; leave them null to disable.
type MarginRequest struct {
	Owner      common.Address
	OrderID    string
	Collateral asset.Asset
	Debt       asset.Asset
	SellPrice  asset.Price

	StopLoss        asset.Price
	TakeProfit      asset.Price
	LimitStopLoss   asset.Price
	LimitTakeProfit asset.Price

	Expiration int64 // 0 for none
	Interface  common.Address
}

// PlaceMarginOrder locks collateral, borrows the debt and matches the order
func (e *Engine) PlaceMarginOrder(req MarginRequest) (uint64, error) {
	if err := positive("margin order", req.Collateral, req.Debt); err != nil {
		return 0, err
	}
	if e.st.Ledger.GetProfile(req.Owner).LoanDefaultBalance > 0 {
		return 0, fmt.Errorf("%w: %s", ErrLoanDefault, req.Owner.Hex())
	}
	if _, ok := e.st.Book.MarginByAccount(req.Owner, req.OrderID); ok {
		return 0, fmt.Errorf("%w: %s", ErrOrderExists, req.OrderID)
	}
	if err := req.SellPrice.Validate(); err != nil {
		return 0, err
	}
	if req.SellPrice.Base.Symbol != req.Debt.Symbol {
		return 0, invalidf("margin order sells %s, borrows %s", req.SellPrice.Base.Symbol, req.Debt.Symbol)
	}
	position := req.SellPrice.Quote.Symbol
	for _, sym := range []asset.Symbol{position, req.Collateral.Symbol} {
		if !e.st.Registry.Exists(sym) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, sym)
		}
		if sc, ok := e.st.Registry.Stablecoin(sym); ok && sc.IsSettled() {
			return 0, fmt.Errorf("%w: %s", ErrSettled, sym)
		}
	}
	for _, trigger := range []asset.Price{req.StopLoss, req.TakeProfit, req.LimitStopLoss, req.LimitTakeProfit} {
		if !trigger.IsNull() && (trigger.Base.Symbol != req.Debt.Symbol || trigger.Quote.Symbol != position) {
			return 0, fmt.Errorf("%w: trigger %s is not %s/%s", asset.ErrInvalidPrice, trigger, req.Debt.Symbol, position)
		}
	}
	expiration := req.Expiration
	if expiration == 0 {
		expiration = noExpiration
	}
	if expiration <= e.now() {
		return 0, fmt.Errorf("%w: order %s at %d", ErrExpired, req.OrderID, expiration)
	}

	cp, ok := e.st.Pools.Credit(req.Debt.Symbol)
	if !ok {
		return 0, fmt.Errorf("%w: credit %s", pool.ErrPoolNotFound, req.Debt.Symbol)
	}
	if err := e.MarginCheck(req.Debt, asset.Zero(position), req.Collateral); err != nil {
		return 0, err
	}
	bps, err := e.collateralizationBps(req.Collateral, req.Debt)
	if err != nil {
		return 0, err
	}
	if bps < e.params.MarginOpenRatio {
		return 0, fmt.Errorf("%w: margin order %s at %d bps", ErrInsufficientCollateral, req.OrderID, bps)
	}

	if err := e.lock(req.Owner, req.Collateral); err != nil {
		return 0, err
	}
	if err := cp.Borrow(req.Debt); err != nil {
		return 0, err
	}
	cp.LastPrice = cp.Price()
	if err := e.st.Pools.UpdateCredit(cp); err != nil {
		return 0, err
	}

	o := orderbook.MarginOrder{
		ID:                   e.st.NewID(),
		Owner:                req.Owner,
		OrderID:              req.OrderID,
		SellPrice:            req.SellPrice,
		Collateral:           req.Collateral,
		Debt:                 req.Debt,
		DebtBalance:          req.Debt,
		Interest:             asset.Zero(req.Debt.Symbol),
		Position:             asset.Zero(position),
		PositionBalance:      asset.Zero(position),
		StopLossPrice:        req.StopLoss,
		TakeProfitPrice:      req.TakeProfit,
		LimitStopLossPrice:   req.LimitStopLoss,
		LimitTakeProfitPrice: req.LimitTakeProfit,
		InterestRate:         cp.InterestRate(e.params.CreditFixedRate, e.params.CreditVariableRate),
		LastInterestTime:     e.now(),
		CollateralizationBps: bps,
		UnrealizedValue:      asset.Zero(req.Debt.Symbol),
		Created:              e.now(),
		Expiration:           expiration,
		Interface:            req.Interface,
	}
	if err := e.st.Book.InsertMargin(o); err != nil {
		return 0, err
	}
	if _, err := e.ApplyOrder(orderbook.Margin, o.ID); err != nil {
		return 0, err
	}
	return o.ID, nil
}

// CancelMarginOrder closes an owner's margin order at market
func (e *Engine) CancelMarginOrder(owner common.Address, orderID string) error {
	o, ok := e.st.Book.MarginByAccount(owner, orderID)
	if !ok {
		return fmt.Errorf("%w: margin %s", ErrUnknownOrder, orderID)
	}
	return e.CloseMarginOrder(o.ID, CloseCancelled)
}

// accrueMargin adds interest since the order's last accrual to its debt and
// to its credit pool
func (e *Engine) accrueMargin(o *orderbook.MarginOrder) error {
	interest := pool.AccrueInterest(o.Debt, o.InterestRate, e.now()-o.LastInterestTime)
	if !interest.IsPositive() {
		return nil
	}
	cp, ok := e.st.Pools.Credit(o.Debt.Symbol)
	if !ok {
		return fmt.Errorf("%w: credit %s", pool.ErrPoolNotFound, o.Debt.Symbol)
	}
	cp.Accrue(interest)
	cp.LastPrice = cp.Price()
	if err := e.st.Pools.UpdateCredit(cp); err != nil {
		return err
	}
	o.Debt = o.Debt.Add(interest)
	o.Interest = o.Interest.Add(interest)
	o.LastInterestTime = e.now()
	return nil
}

// ProcessMarginUpdates accrues interest on every margin order, revalues it
// and closes or flips it to liquidating when a threshold or trigger is hit
func (e *Engine) ProcessMarginUpdates() error {
	rates := make(map[asset.Symbol]int64)
	for _, id := range e.st.Book.MarginIDsByGroup() {
		if err := e.Apply(func() error { return e.updateMargin(id, rates) }); err != nil {
			e.log.Warn("margin order update failed", zap.Uint64("id", id), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) updateMargin(id uint64, rates map[asset.Symbol]int64) error {
	o, ok := e.st.Book.GetMargin(id)
	if !ok {
		return nil
	}
	if err := e.accrueMargin(&o); err != nil {
		return err
	}
	rate, ok := rates[o.Debt.Symbol]
	if !ok {
		cp, _ := e.st.Pools.Credit(o.Debt.Symbol)
		rate = cp.InterestRate(e.params.CreditFixedRate, e.params.CreditVariableRate)
		rates[o.Debt.Symbol] = rate
	}
	o.InterestRate = rate

	collateralValue, err := e.convert(o.Collateral, o.Debt.Symbol)
	if err != nil {
		return err
	}
	positionValue, err := e.convert(o.PositionBalance, o.Debt.Symbol)
	if err != nil {
		return err
	}
	o.UnrealizedValue = positionValue.Add(o.DebtBalance).Sub(o.Debt)
	o.CollateralizationBps = max(0, collateralValue.Add(o.UnrealizedValue).Scale(asset.Percent100, o.Debt.Amount).Amount)
	if err := e.st.Book.UpdateMargin(o); err != nil {
		return err
	}

	if o.Liquidating && o.PositionBalance.IsZero() {
		return e.CloseMarginOrder(o.ID, CloseLiquidated)
	}
	if o.CollateralizationBps < e.params.MarginLiquidationRatio {
		return e.CloseMarginOrder(o.ID, CloseCollateralization)
	}
	if o.PositionBalance.IsZero() {
		return nil
	}
	market, err := e.marketPrice(o.Debt.Symbol, o.PositionSymbol())
	if err != nil {
		return err
	}
	switch {
	case !o.StopLossPrice.IsNull() && market.LessEq(o.StopLossPrice):
		return e.CloseMarginOrder(o.ID, CloseStopLoss)
	case !o.TakeProfitPrice.IsNull() && market.GreaterEq(o.TakeProfitPrice):
		return e.CloseMarginOrder(o.ID, CloseTakeProfit)
	}
	if o.Liquidating {
		return nil
	}
	var trigger asset.Price
	switch {
	case !o.LimitStopLossPrice.IsNull() && market.LessEq(o.LimitStopLossPrice):
		trigger = o.LimitStopLossPrice
	case !o.LimitTakeProfitPrice.IsNull() && market.GreaterEq(o.LimitTakeProfitPrice):
		trigger = o.LimitTakeProfitPrice
	default:
		return nil
	}
	o.Liquidating = true
	o.SellPrice = trigger.Invert()
	if err := e.st.Book.UpdateMargin(o); err != nil {
		return err
	}
	e.log.Debug("margin order liquidating", zap.Uint64("id", o.ID), zap.Stringer("price", o.SellPrice))
	_, err = e.ApplyOrder(orderbook.Margin, o.ID)
	return err
}

// CloseMarginOrder sells the position back into the debt asset, repays the
// credit pool and moves the collateral plus any profit into the owner's
// collateral deposit. A shortfall is covered from the collateral, then as a
// loan default.
func (e *Engine) CloseMarginOrder(id uint64, reason string) error {
	o, ok := e.st.Book.RemoveMargin(id)
	if !ok {
		return fmt.Errorf("%w: margin %d", ErrUnknownOrder, id)
	}
	if err := e.accrueMargin(&o); err != nil {
		return err
	}

	proceeds := o.DebtBalance
	if o.PositionBalance.IsPositive() {
		got, err := e.swap(o.Owner, o.Interface, o.PositionBalance, o.Debt.Symbol)
		switch {
		case err == nil:
			proceeds = proceeds.Add(got)
		case isNoRoute(err):
			if err := e.release(o.Owner, o.PositionBalance); err != nil {
				return err
			}
		default:
			return err
		}
	}

	repaid := asset.Min(proceeds, o.Debt)
	if err := e.repayPool(repaid); err != nil {
		return err
	}
	shortfall := o.Debt.Sub(repaid)
	returned := o.Collateral

	if profit := proceeds.Sub(repaid); profit.IsPositive() {
		if profit.Symbol == returned.Symbol {
			returned = returned.Add(profit)
		} else {
			got, err := e.swap(o.Owner, o.Interface, profit, returned.Symbol)
			switch {
			case err == nil:
				returned = returned.Add(got)
			case isNoRoute(err):
				if err := e.release(o.Owner, profit); err != nil {
					return err
				}
			default:
				return err
			}
		}
	}

	returned, err := e.coverShortfall(o.Owner, returned, shortfall)
	if err != nil {
		return err
	}
	if err := e.depositCollateral(o.Owner, returned); err != nil {
		return err
	}

	e.st.Emit(state.EventMarginClose, state.MarginClose{
		Owner:      o.Owner,
		OrderID:    o.OrderID,
		Reason:     reason,
		Returned:   returned,
		Shortfall:  shortfall,
		Collateral: o.Collateral,
	})
	e.metrics.MarginClose(reason)
	e.log.Info("margin order closed",
		zap.String("owner", o.Owner.Hex()),
		zap.String("order", o.OrderID),
		zap.String("reason", reason),
		zap.Stringer("returned", returned),
		zap.Stringer("shortfall", shortfall))
	return nil
}
