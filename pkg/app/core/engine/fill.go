package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/orderbook"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
)

// Fills move value between holdings that are already outside account
// balances (order reserves, margin balances, call collateral, pools), so
// only payouts to owners and fees touch the pending supply.

// order loads a limit or margin order by object id
func (e *Engine) order(kind orderbook.Kind, id uint64) (orderbook.BookOrder, bool) {
	switch kind {
	case orderbook.Limit:
		return e.st.Book.GetLimit(id)
	case orderbook.Margin:
		return e.st.Book.GetMargin(id)
	}
	return nil, false
}

// fill applies one side of a trade to an order. Returns true when the
// order has nothing left for sale.
func (e *Engine) fill(o orderbook.BookOrder, pays, receives asset.Asset, taker bool) (bool, error) {
	switch o := o.(type) {
	case orderbook.LimitOrder:
		return e.fillLimit(o, pays, receives, taker)
	case orderbook.MarginOrder:
		return e.fillMargin(o, pays, receives, taker)
	}
	return false, invalidf("%s orders do not fill against the book", o.Kind())
}

func (e *Engine) fillLimit(o orderbook.LimitOrder, pays, receives asset.Asset, taker bool) (bool, error) {
	asset.Assert(pays.Amount <= o.ForSale, "fill_limit", "order %d pays %s of %d", o.ID, pays, o.ForSale)
	net := receives
	if taker {
		var err error
		if net, err = e.payTakerFees(receives, o.Interface); err != nil {
			return false, err
		}
	}
	if err := e.release(o.Owner, net); err != nil {
		return false, err
	}
	o.ForSale -= pays.Amount
	e.metrics.Fill(o.Kind().String())
	if o.ForSale == 0 {
		e.st.Book.RemoveLimit(o.ID)
		return true, nil
	}
	if o.AmountToReceive().IsZero() {
		return true, e.cull(o)
	}
	return false, e.st.Book.UpdateLimit(o)
}

func (e *Engine) fillMargin(o orderbook.MarginOrder, pays, receives asset.Asset, taker bool) (bool, error) {
	net := receives
	if taker {
		var err error
		if net, err = e.payTakerFees(receives, o.Interface); err != nil {
			return false, err
		}
	}
	if o.Liquidating {
		o.PositionBalance = o.PositionBalance.Sub(pays)
		o.DebtBalance = o.DebtBalance.Add(net)
	} else {
		o.DebtBalance = o.DebtBalance.Sub(pays)
		o.PositionBalance = o.PositionBalance.Add(net)
		o.Position = o.Position.Add(net)
	}
	asset.Assert(!o.DebtBalance.IsNegative() && !o.PositionBalance.IsNegative(),
		"fill_margin", "order %d oversold", o.ID)
	e.metrics.Fill(o.Kind().String())
	return o.AmountForSale().IsZero(), e.st.Book.UpdateMargin(o)
}

// fillCall retires debt bought back from a call order and pays out its
// collateral. A call with no debt left returns its remaining collateral.
func (e *Engine) fillCall(c orderbook.CallOrder, debt, collateral asset.Asset, price asset.Price) error {
	if err := e.st.Ledger.BurnPending(debt); err != nil {
		return err
	}
	c.Debt = c.Debt.Sub(debt)
	c.Collateral = c.Collateral.Sub(collateral)
	asset.Assert(!c.Debt.IsNegative() && !c.Collateral.IsNegative(), "fill_call", "call %d overpaid", c.ID)
	e.st.Emit(state.EventMarginCall, state.MarginCall{
		Borrower:   c.Borrower,
		CallID:     c.ID,
		DebtPaid:   debt,
		Collateral: collateral,
		Price:      price,
	})
	e.metrics.Fill(c.Kind().String())
	if c.Debt.IsZero() {
		e.st.Book.RemoveCall(c.ID)
		return e.release(c.Borrower, c.Collateral)
	}
	return e.st.Book.UpdateCall(c)
}

// cull removes an order whose remainder can no longer buy anything and
// refunds it. Margin orders keep their position and are not removed.
func (e *Engine) cull(o orderbook.BookOrder) error {
	lo, ok := o.(orderbook.LimitOrder)
	if !ok {
		return nil
	}
	e.st.Book.RemoveLimit(lo.ID)
	refund := lo.AmountForSale()
	if err := e.release(lo.Owner, refund); err != nil {
		return err
	}
	e.st.Emit(state.EventCancelOrder, state.CancelOrder{
		Owner:    lo.Owner,
		OrderID:  lo.ID,
		Kind:     lo.Kind().String(),
		Refunded: refund,
		Reason:   "dust",
	})
	e.log.Debug("culled dust order", zap.Uint64("id", lo.ID), zap.Stringer("refund", refund))
	return nil
}

// emitFill records a trade between two orders, lower object id first
func (e *Engine) emitFill(a, b orderbook.BookOrder, aPays, bPays asset.Asset, price asset.Price) {
	if b.ObjectID() < a.ObjectID() {
		a, b = b, a
		aPays, bPays = bPays, aPays
	}
	e.st.Emit(state.EventFillOrder, state.FillOrder{
		CurrentOwner:   a.Account(),
		CurrentOrderID: a.ObjectID(),
		CurrentPays:    aPays,
		OpenOwner:      b.Account(),
		OpenOrderID:    b.ObjectID(),
		OpenPays:       bPays,
		FillPrice:      price,
	})
}

func orderLabel(o orderbook.BookOrder) string {
	return fmt.Sprintf("%s order %d", o.Kind(), o.ObjectID())
}
