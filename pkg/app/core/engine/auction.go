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

// AuctionRequest places an order cleared at the next auction's single price
type AuctionRequest struct {
	Owner        common.Address
	OrderID      string
	AmountToSell asset.Asset
	MinToReceive asset.Asset
	Expiration   int64 // Unix seconds, 0 for the default lifetime
	Interface    common.Address
}

// PlaceAuctionOrder locks the amount for sale until the order clears,
// expires or is cancelled. The pair needs a liquidity pool to price it.
func (e *Engine) PlaceAuctionOrder(req AuctionRequest) (uint64, error) {
	if err := positive("auction order", req.AmountToSell, req.MinToReceive); err != nil {
		return 0, err
	}
	if req.AmountToSell.Symbol == req.MinToReceive.Symbol {
		return 0, invalidf("auction order %s sells and buys %s", req.OrderID, req.AmountToSell.Symbol)
	}
	if _, ok := e.st.Book.AuctionByAccount(req.Owner, req.OrderID); ok {
		return 0, fmt.Errorf("%w: %s", ErrOrderExists, req.OrderID)
	}
	if _, ok := e.st.Pools.Liquidity(req.AmountToSell.Symbol, req.MinToReceive.Symbol); !ok {
		return 0, fmt.Errorf("%w: %s/%s", pool.ErrPoolNotFound, req.AmountToSell.Symbol, req.MinToReceive.Symbol)
	}
	expiration := req.Expiration
	if expiration == 0 {
		expiration = e.now() + DefaultOrderLifetime
	}
	if expiration <= e.now() {
		return 0, fmt.Errorf("%w: order %s at %d", ErrExpired, req.OrderID, expiration)
	}

	o := orderbook.AuctionOrder{
		ID:              e.st.NewID(),
		Owner:           req.Owner,
		OrderID:         req.OrderID,
		ForSale:         req.AmountToSell,
		LimitClosePrice: asset.NewPrice(req.AmountToSell, req.MinToReceive),
		Created:         e.now(),
		Expiration:      expiration,
		Interface:       req.Interface,
	}
	if err := e.lock(req.Owner, req.AmountToSell); err != nil {
		return 0, err
	}
	if err := e.st.Book.InsertAuction(o); err != nil {
		return 0, err
	}
	return o.ID, nil
}

// CancelAuctionOrder removes an owner's auction order and refunds it
func (e *Engine) CancelAuctionOrder(owner common.Address, orderID string) error {
	o, ok := e.st.Book.AuctionByAccount(owner, orderID)
	if !ok {
		return fmt.Errorf("%w: auction %s", ErrUnknownOrder, orderID)
	}
	return e.cancelAuction(o, "cancelled")
}

func (e *Engine) cancelAuction(o orderbook.AuctionOrder, reason string) error {
	e.st.Book.RemoveAuction(o.ID)
	if err := e.release(o.Owner, o.ForSale); err != nil {
		return err
	}
	e.st.Emit(state.EventCancelOrder, state.CancelOrder{
		Owner:    o.Owner,
		OrderID:  o.ID,
		Kind:     o.Kind().String(),
		Refunded: o.ForSale,
		Reason:   reason,
	})
	return nil
}

// ProcessAuctionOrders clears every pool's auction orders at one price:
// the pool's day median, or its current price before any samples exist.
// Orders whose limit the clearing price satisfies are paired oldest first.
func (e *Engine) ProcessAuctionOrders() error {
	for _, p := range e.st.Pools.LiquidityPools() {
		clearing := p.DayMedianPrice
		if clearing.IsNull() {
			clearing = p.CurrentPrice()
		}
		if clearing.IsNull() {
			continue
		}
		if err := e.clearAuction(p, clearing); err != nil {
			return err
		}
	}
	return nil
}

// clearAuction pairs A sellers with B sellers at clearing (A/B)
func (e *Engine) clearAuction(p pool.LiquidityPool, clearing asset.Price) error {
	sellA := eligibleAuctions(e.st.Book.AuctionsByPair(p.SymbolA, p.SymbolB), clearing)
	sellB := eligibleAuctions(e.st.Book.AuctionsByPair(p.SymbolB, p.SymbolA), clearing.Invert())

	for len(sellA) > 0 && len(sellB) > 0 {
		a, b := sellA[0], sellB[0]

		// a.ForSale.Mul(clearing) is what a's A is worth in B
		var aPays, bPays asset.Asset
		if aWants := a.ForSale.Mul(clearing); aWants.LessEq(b.ForSale) {
			aPays, bPays = a.ForSale, aWants
		} else {
			aPays, bPays = b.ForSale.Mul(clearing), b.ForSale
		}
		if aPays.IsZero() || bPays.IsZero() {
			// The smaller side is worth nothing at the clearing price
			if aPays.IsZero() {
				if err := e.cancelAuction(b, "dust"); err != nil {
					return err
				}
				sellB = sellB[1:]
			} else {
				if err := e.cancelAuction(a, "dust"); err != nil {
					return err
				}
				sellA = sellA[1:]
			}
			continue
		}

		var err error
		if a, err = e.fillAuction(a, aPays, bPays, clearing); err != nil {
			return err
		}
		if b, err = e.fillAuction(b, bPays, aPays, clearing); err != nil {
			return err
		}
		e.log.Debug("auction fill",
			zap.String("pool", p.Name()),
			zap.Uint64("a", a.ID),
			zap.Uint64("b", b.ID),
			zap.Stringer("a_pays", aPays),
			zap.Stringer("b_pays", bPays))

		if a.ForSale.IsZero() {
			sellA = sellA[1:]
		} else {
			sellA[0] = a
		}
		if b.ForSale.IsZero() {
			sellB = sellB[1:]
		} else {
			sellB[0] = b
		}
	}
	return nil
}

// eligibleAuctions keeps orders whose limit (for-sale/receive) is at least
// the clearing price in the same orientation
func eligibleAuctions(orders []orderbook.AuctionOrder, clearing asset.Price) []orderbook.AuctionOrder {
	out := orders[:0]
	for _, o := range orders {
		if clearing.LessEq(o.LimitClosePrice) {
			out = append(out, o)
		}
	}
	return out
}

// fillAuction pays receives to the owner and shrinks the order. A filled
// order is removed; a remainder that buys nothing is refunded.
func (e *Engine) fillAuction(o orderbook.AuctionOrder, pays, receives asset.Asset, clearing asset.Price) (orderbook.AuctionOrder, error) {
	if err := e.release(o.Owner, receives); err != nil {
		return o, err
	}
	e.st.Emit(state.EventAuctionFill, state.AuctionFill{
		Owner:         o.Owner,
		OrderID:       o.OrderID,
		Pays:          pays,
		Receives:      receives,
		ClearingPrice: clearing,
	})
	e.metrics.Fill(o.Kind().String())

	o.ForSale = o.ForSale.Sub(pays)
	switch {
	case o.ForSale.IsZero():
		e.st.Book.RemoveAuction(o.ID)
	case o.ForSale.Mul(clearing).IsZero():
		if err := e.cancelAuction(o, "dust"); err != nil {
			return o, err
		}
		o.ForSale = asset.Zero(o.ForSale.Symbol)
	default:
		if err := e.st.Book.UpdateAuction(o); err != nil {
			return o, err
		}
	}
	return o, nil
}
