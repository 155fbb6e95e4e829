package engine

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/orderbook"
	"github.com/uhyunpark/hypercredit/pkg/app/core/pool"
)

// match result bits
const (
	takerFilled = 1 << iota
	makerFilled
)

// ApplyOrder matches a resting limit or margin order. A stablecoin sold
// for its backing first buys back margin-called debt; then the order takes
// the best of the liquidity pool, limit orders and margin orders of its
// pair until it fills, stops crossing, or its remainder rounds to nothing.
//
// Returns true when the order no longer rests on the book.
func (e *Engine) ApplyOrder(kind orderbook.Kind, id uint64) (bool, error) {
	if gone, err := e.matchCallOrders(kind, id); err != nil || gone {
		return gone, err
	}

	poolDone := false
	for {
		taker, ok := e.order(kind, id)
		if !ok {
			return true, nil
		}
		forSale := taker.AmountForSale()
		if !forSale.IsPositive() {
			return false, nil
		}
		if taker.AmountToReceive().IsZero() {
			return kind == orderbook.Limit, e.cull(taker)
		}
		sell, receive := forSale.Symbol, taker.Price().Quote.Symbol
		worst := taker.Price().Invert()

		limit, hasLimit := e.st.Book.BestLimit(receive, sell)
		hasLimit = hasLimit && limit.SellPrice.GreaterEq(worst)
		margin, hasMargin := e.st.Book.BestMargin(receive, sell)
		hasMargin = hasMargin && margin.SellPrice.GreaterEq(worst)

		bound := worst
		if hasLimit && limit.SellPrice.Greater(bound) {
			bound = limit.SellPrice
		}
		if hasMargin && margin.SellPrice.Greater(bound) {
			bound = margin.SellPrice
		}

		if !poolDone {
			if p, ok := e.st.Pools.Liquidity(sell, receive); ok && p.ExchangePrice(sell).Greater(bound) {
				exchanged, err := e.matchPool(taker, p, bound)
				if err != nil {
					return false, err
				}
				poolDone = !exchanged
				continue
			}
		}

		var res int
		var err error
		switch {
		case hasLimit && (!hasMargin || limit.SellPrice.GreaterEq(margin.SellPrice)):
			res, err = e.match(taker, limit)
		case hasMargin:
			res, err = e.match(taker, margin)
		default:
			return false, nil
		}
		if err != nil {
			return false, err
		}
		poolDone = false
		if res&takerFilled != 0 {
			_, rests := e.order(kind, id)
			return !rests, nil
		}
	}
}

// match trades a taker against a resting maker at the maker's price.
// The smaller side fills completely; rounding favors the maker.
func (e *Engine) match(taker, maker orderbook.BookOrder) (int, error) {
	price := maker.Price()
	takerForSale := taker.AmountForSale()
	makerForSale := maker.AmountForSale()

	var takerPays, makerPays asset.Asset
	if takerReceives := takerForSale.Mul(price); takerReceives.LessEq(makerForSale) {
		takerPays, makerPays = takerForSale, takerReceives
	} else {
		makerPays = makerForSale
		takerPays = asset.Min(makerForSale.MulCeil(price), takerForSale)
	}
	if makerPays.IsZero() {
		return takerFilled, e.cull(taker)
	}

	e.emitFill(taker, maker, takerPays, makerPays, price)
	e.log.Debug("fill",
		zap.String("taker", orderLabel(taker)),
		zap.String("maker", orderLabel(maker)),
		zap.Stringer("taker_pays", takerPays),
		zap.Stringer("maker_pays", makerPays))

	res := 0
	filled, err := e.fill(taker, takerPays, makerPays, true)
	if err != nil {
		return 0, err
	}
	if filled {
		res |= takerFilled
	}
	if filled, err = e.fill(maker, makerPays, takerPays, false); err != nil {
		return 0, err
	}
	if filled {
		res |= makerFilled
	}
	asset.Assert(res != 0, "match", "neither %s nor %s filled", orderLabel(taker), orderLabel(maker))
	return res, nil
}

// matchPool sells the taker into a pool until the pool's price falls to
// bound. The bound is raised by the pool fee so the gross input still
// receives at least the taker's price. Returns false when nothing could be
// exchanged.
func (e *Engine) matchPool(taker orderbook.BookOrder, p pool.LiquidityPool, bound asset.Price) (bool, error) {
	forSale := taker.AmountForSale()
	fee := e.params.PoolFeePercent
	net, err := p.LimitInput(forSale.Symbol, bound.Scale(asset.Percent100, asset.Percent100-fee))
	if errors.Is(err, pool.ErrPriceBelowLimit) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	in, ok := e.poolFillWithin(taker, p, asset.Min(forSale, e.grossInput(net)))
	if !ok {
		return false, nil
	}
	out, err := e.exchange(taker.Account(), orderInterface(taker), in, p)
	if err != nil {
		return false, err
	}
	if _, err := e.fill(taker, in, out, false); err != nil {
		return false, err
	}
	return true, nil
}

// poolFillWithin shrinks a gross pool input until what it buys meets the
// taker's own price once rounding is applied
func (e *Engine) poolFillWithin(taker orderbook.BookOrder, p pool.LiquidityPool, in asset.Asset) (asset.Asset, bool) {
	worst := taker.Price().Invert()
	iface := orderInterface(taker)
	for i := 0; i < 8 && in.IsPositive(); i++ {
		net := in.Sub(e.computePoolFees(in, iface).total())
		if !net.IsPositive() {
			return asset.Asset{}, false
		}
		out, err := p.Output(net)
		if err != nil || out.IsZero() {
			return asset.Asset{}, false
		}
		if !out.Less(in.MulCeil(worst)) {
			return in, true
		}
		if next := out.Mul(worst); next.Less(in) {
			in = next
		} else {
			in = in.Sub(asset.New(1, in.Symbol))
		}
	}
	return asset.Asset{}, false
}

// matchCallOrders buys back margin-called debt with an order selling a
// stablecoin for its backing at or above the max short squeeze price.
// Returns true when the order is gone.
func (e *Engine) matchCallOrders(kind orderbook.Kind, id uint64) (bool, error) {
	taker, ok := e.order(kind, id)
	if !ok {
		return true, nil
	}
	debt := taker.AmountForSale().Symbol
	sc, ok := e.st.Registry.Stablecoin(debt)
	if !ok || sc.IsSettled() || !sc.HasValidFeed() || taker.Price().Quote.Symbol != sc.BackingSymbol {
		return false, nil
	}
	mssp := sc.Feed.MaxShortSqueezePrice()
	if taker.Price().Less(mssp) {
		return false, nil
	}
	for {
		if swan, err := e.CheckForBlackSwan(debt, true); err != nil || swan {
			return false, err
		}
		if taker, ok = e.order(kind, id); !ok {
			return true, nil
		}
		if !taker.AmountForSale().IsPositive() {
			return false, nil
		}
		call, ok := e.st.Book.LeastCollateralized(debt)
		if !ok || call.Collateralization().Greater(sc.Feed.MaintenanceCollateralization()) {
			return false, nil
		}
		progress, err := e.matchCall(taker, call, mssp, sc.Feed, true)
		if err != nil || !progress {
			_, rests := e.order(kind, id)
			return !rests, err
		}
	}
}

// matchCall sells an order's stablecoin to a margin-called position at
// price (debt/collateral), covering at most what restores the call's
// target collateral ratio. Returns false when nothing traded.
func (e *Engine) matchCall(o orderbook.BookOrder, c orderbook.CallOrder, price asset.Price, feed asset.PriceFeed, taker bool) (bool, error) {
	pays := asset.Min(o.AmountForSale(), MaxDebtToCover(c, feed, price))
	receives := pays.Mul(price)
	if c.Collateral.Less(receives) {
		receives = c.Collateral
		pays = asset.Min(pays, receives.MulCeil(price))
	}
	if receives.IsZero() {
		return false, e.cull(o)
	}

	e.log.Debug("margin call",
		zap.Uint64("call", c.ID),
		zap.String("order", orderLabel(o)),
		zap.Stringer("debt", pays),
		zap.Stringer("collateral", receives))
	if _, err := e.fill(o, pays, receives, taker); err != nil {
		return false, err
	}
	return true, e.fillCall(c, pays, receives, price)
}

// MaxDebtToCover returns how much of a call's debt must be bought back at
// matchPrice to restore its target collateral ratio (the maintenance ratio
// when the target is lower). Without a target all debt is covered.
//
// Solves for x in
//
//	(C − x·Mq/Mb) · Fb/Fq ≥ T/1000 · (D − x)
//
// with M the match price and F the feed settlement price (debt/collateral).
func MaxDebtToCover(c orderbook.CallOrder, feed asset.PriceFeed, matchPrice asset.Price) asset.Asset {
	if c.TargetCollateralRatio == 0 {
		return c.Debt
	}
	target := max(c.TargetCollateralRatio, feed.MaintenanceCollateralRatio)
	u := func(v int64) *uint256.Int { return uint256.NewInt(uint64(v)) }
	mul := func(vs ...int64) *uint256.Int {
		r := uint256.NewInt(1)
		for _, v := range vs {
			r.Mul(r, u(v))
		}
		return r
	}
	fb, fq := feed.SettlementPrice.Base.Amount, feed.SettlementPrice.Quote.Amount
	mb, mq := matchPrice.Base.Amount, matchPrice.Quote.Amount

	lhs := mul(target, c.Debt.Amount, mb, fq)
	rhs := mul(asset.CollateralRatioDenom, c.Collateral.Amount, fb, mb)
	denL := mul(target, mb, fq)
	denR := mul(asset.CollateralRatioDenom, mq, fb)
	if !denL.Gt(denR) {
		return c.Debt
	}
	num := new(uint256.Int)
	if lhs.Gt(rhs) {
		num.Sub(lhs, rhs)
	}
	den := new(uint256.Int).Sub(denL, denR)
	q, r := new(uint256.Int).DivMod(num, den, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	q.AddUint64(q, 1)
	if !q.IsUint64() || q.Uint64() >= uint64(c.Debt.Amount) {
		return c.Debt
	}
	return asset.New(int64(q.Uint64()), c.Debt.Symbol)
}

func orderInterface(o orderbook.BookOrder) common.Address {
	switch o := o.(type) {
	case orderbook.LimitOrder:
		return o.Interface
	case orderbook.MarginOrder:
		return o.Interface
	}
	return account.NullAccount
}
