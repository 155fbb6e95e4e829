package engine

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/orderbook"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
)

// DefaultOrderLifetime applies to limit and auction orders placed without
// an expiration
const DefaultOrderLifetime int64 = 28 * 24 * 60 * 60

// LimitRequest places a limit order selling AmountToSell for at least
// MinToReceive
type LimitRequest struct {
	Owner        common.Address
	OrderID      string
	AmountToSell asset.Asset
	MinToReceive asset.Asset
	FillOrKill   bool
	Expiration   int64 // Unix seconds, 0 for the default lifetime
	Interface    common.Address
}

// PlaceLimitOrder locks the amount for sale, matches the order and rests
// whatever is left. Returns the order's object id.
func (e *Engine) PlaceLimitOrder(req LimitRequest) (uint64, error) {
	if err := positive("limit order", req.AmountToSell, req.MinToReceive); err != nil {
		return 0, err
	}
	if _, ok := e.st.Book.LimitByAccount(req.Owner, req.OrderID); ok {
		return 0, fmt.Errorf("%w: %s", ErrOrderExists, req.OrderID)
	}
	for _, sym := range []asset.Symbol{req.AmountToSell.Symbol, req.MinToReceive.Symbol} {
		if !e.st.Registry.Exists(sym) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, sym)
		}
		if sc, ok := e.st.Registry.Stablecoin(sym); ok && sc.IsSettled() {
			return 0, fmt.Errorf("%w: %s", ErrSettled, sym)
		}
	}
	expiration := req.Expiration
	if expiration == 0 {
		expiration = e.now() + DefaultOrderLifetime
	}
	if expiration <= e.now() {
		return 0, fmt.Errorf("%w: order %s at %d", ErrExpired, req.OrderID, expiration)
	}

	o := orderbook.LimitOrder{
		ID:         e.st.NewID(),
		Owner:      req.Owner,
		OrderID:    req.OrderID,
		SellPrice:  asset.NewPrice(req.AmountToSell, req.MinToReceive),
		ForSale:    req.AmountToSell.Amount,
		Created:    e.now(),
		Expiration: expiration,
		Interface:  req.Interface,
	}
	if err := e.lock(req.Owner, req.AmountToSell); err != nil {
		return 0, err
	}
	if err := e.st.Book.InsertLimit(o); err != nil {
		return 0, err
	}
	filled, err := e.ApplyOrder(orderbook.Limit, o.ID)
	if err != nil {
		return 0, err
	}
	if req.FillOrKill && !filled {
		return 0, fmt.Errorf("%w: %s", ErrFillOrKill, req.OrderID)
	}
	return o.ID, nil
}

// CancelLimitOrder removes an owner's order and refunds what is left
func (e *Engine) CancelLimitOrder(owner common.Address, orderID string) error {
	o, ok := e.st.Book.LimitByAccount(owner, orderID)
	if !ok {
		return fmt.Errorf("%w: limit %s", ErrUnknownOrder, orderID)
	}
	return e.cancelLimit(o, "cancelled")
}

func (e *Engine) cancelLimit(o orderbook.LimitOrder, reason string) error {
	e.st.Book.RemoveLimit(o.ID)
	refund := o.AmountForSale()
	if err := e.release(o.Owner, refund); err != nil {
		return err
	}
	e.st.Emit(state.EventCancelOrder, state.CancelOrder{
		Owner:    o.Owner,
		OrderID:  o.ID,
		Kind:     o.Kind().String(),
		Refunded: refund,
		Reason:   reason,
	})
	return nil
}

// ClearExpiredOrders refunds expired limit and auction orders and closes
// expired margin orders
func (e *Engine) ClearExpiredOrders() error {
	now := e.now()
	for _, o := range e.st.Book.ExpiredLimits(now) {
		if err := e.cancelLimit(o, "expired"); err != nil {
			return err
		}
	}
	for _, o := range e.st.Book.ExpiredAuctions(now) {
		if err := e.cancelAuction(o, "expired"); err != nil {
			return err
		}
	}
	for _, o := range e.st.Book.ExpiredMargins(now) {
		if err := e.Apply(func() error { return e.CloseMarginOrder(o.ID, CloseExpired) }); err != nil {
			e.log.Warn("closing expired margin order failed", zap.Uint64("id", o.ID), zap.Error(err))
		}
	}
	return nil
}

// noExpiration stands in for margin orders placed without one
const noExpiration int64 = math.MaxInt64
