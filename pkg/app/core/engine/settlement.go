package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/market"
	"github.com/uhyunpark/hypercredit/pkg/app/core/orderbook"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
)

func (e *Engine) stablecoin(symbol asset.Symbol) (market.StablecoinData, error) {
	sc, ok := e.st.Registry.Stablecoin(symbol)
	if !ok {
		return sc, fmt.Errorf("%w: stablecoin %s", ErrUnknownAsset, symbol)
	}
	return sc, nil
}

// ============================================================================
// Feeds and call orders
// ============================================================================

// PublishFeed stores the issuer's price feed for a stablecoin and margin
// calls whatever the new price leaves under-collateralized
func (e *Engine) PublishFeed(publisher common.Address, symbol asset.Symbol, feed asset.PriceFeed) error {
	sc, err := e.stablecoin(symbol)
	if err != nil {
		return err
	}
	obj, _ := e.st.Registry.Get(symbol)
	if obj.Issuer != publisher {
		return fmt.Errorf("%w: %s", ErrNotIssuer, symbol)
	}
	if err := feed.Validate(); err != nil {
		return err
	}
	if feed.DebtSymbol() != symbol || feed.CollateralSymbol() != sc.BackingSymbol {
		return fmt.Errorf("%w: feed %s for %s/%s", asset.ErrInvalidFeed, feed.SettlementPrice, symbol, sc.BackingSymbol)
	}
	feed.PublishTime = e.now()
	sc.Feed = feed
	if err := e.st.Registry.UpdateStablecoin(sc); err != nil {
		return err
	}
	return e.CheckCallOrders(symbol, true)
}

// CallOrderUpdate changes a borrower's collateral and debt on a stablecoin.
// Debt is issued to or burned from the borrower's liquid balance. Paying
// off all debt returns the collateral and closes the position.
func (e *Engine) CallOrderUpdate(borrower common.Address, deltaCollateral, deltaDebt asset.Asset, targetRatio int64) error {
	sc, err := e.stablecoin(deltaDebt.Symbol)
	if err != nil {
		return err
	}
	if sc.IsSettled() {
		return fmt.Errorf("%w: %s", ErrSettled, sc.Symbol)
	}
	if !sc.HasValidFeed() {
		return fmt.Errorf("%w: %s", ErrNoFeed, sc.Symbol)
	}
	if deltaCollateral.Symbol != sc.BackingSymbol {
		return invalidf("%s is not backed by %s", sc.Symbol, deltaCollateral.Symbol)
	}
	if deltaCollateral.IsZero() && deltaDebt.IsZero() {
		return invalidf("call order update changes nothing")
	}
	if targetRatio != 0 && (targetRatio < asset.MinCollateralRatio || targetRatio > asset.MaxCollateralRatio) {
		return invalidf("target collateral ratio %d out of range", targetRatio)
	}

	call, exists := e.st.Book.CallByAccount(borrower, sc.Symbol)
	if !exists {
		call = orderbook.CallOrder{
			ID:         e.st.NewID(),
			Borrower:   borrower,
			Collateral: asset.Zero(sc.BackingSymbol),
			Debt:       asset.Zero(sc.Symbol),
		}
	}
	collateral := call.Collateral.Add(deltaCollateral)
	debt := call.Debt.Add(deltaDebt)
	if collateral.IsNegative() || debt.IsNegative() {
		return invalidf("call order update leaves %s collateral and %s debt", collateral, debt)
	}

	if deltaCollateral.IsPositive() {
		if err := e.lock(borrower, deltaCollateral); err != nil {
			return err
		}
	}
	if deltaDebt.IsPositive() {
		obj, _ := e.st.Registry.Get(sc.Symbol)
		if obj.MaxSupply > 0 {
			d, _ := e.st.Ledger.Supply(sc.Symbol)
			if d.TotalSupply > obj.MaxSupply-deltaDebt.Amount {
				return fmt.Errorf("%w: %s of %d", ErrMaxSupply, deltaDebt, obj.MaxSupply)
			}
		}
		if err := e.st.Ledger.Issue(borrower, deltaDebt); err != nil {
			return err
		}
	} else if err := e.st.Ledger.Burn(borrower, deltaDebt.Neg()); err != nil {
		return err
	}

	if debt.IsZero() {
		if exists {
			e.st.Book.RemoveCall(call.ID)
		}
		return e.release(borrower, collateral)
	}
	if collateral.IsZero() {
		return fmt.Errorf("%w: %s debt without collateral", ErrInsufficientCollateral, debt)
	}
	if deltaCollateral.IsNegative() {
		if err := e.release(borrower, deltaCollateral.Neg()); err != nil {
			return err
		}
	}

	call.Collateral, call.Debt, call.TargetCollateralRatio = collateral, debt, targetRatio
	improves := !deltaCollateral.IsNegative() && !deltaDebt.IsPositive()
	if !improves && call.Collateralization().LessEq(sc.Feed.MaintenanceCollateralization()) {
		return fmt.Errorf("%w: %s against %s is below maintenance", ErrInsufficientCollateral, collateral, debt)
	}
	if exists {
		err = e.st.Book.UpdateCall(call)
	} else {
		err = e.st.Book.InsertCall(call)
	}
	if err != nil {
		return err
	}
	return e.CheckCallOrders(sc.Symbol, true)
}

// CheckCallOrders fills margin-called positions against resting orders
// selling the stablecoin at or above the max short squeeze price, least
// collateralized first. Returns ErrUnexpectedBlackSwan when the check
// would settle the asset and enableBlackSwan is false.
func (e *Engine) CheckCallOrders(symbol asset.Symbol, enableBlackSwan bool) error {
	sc, err := e.stablecoin(symbol)
	if err != nil {
		return err
	}
	if sc.IsSettled() || !sc.HasValidFeed() {
		return nil
	}
	if swan, err := e.CheckForBlackSwan(symbol, enableBlackSwan); err != nil || swan {
		return err
	}
	mssp := sc.Feed.MaxShortSqueezePrice()
	mcr := sc.Feed.MaintenanceCollateralization()
	for {
		limit, ok := e.st.Book.BestLimit(symbol, sc.BackingSymbol)
		if !ok || limit.SellPrice.Less(mssp) {
			return nil
		}
		call, ok := e.st.Book.LeastCollateralized(symbol)
		if !ok || call.Collateralization().Greater(mcr) {
			return nil
		}
		progress, err := e.matchCall(limit, call, limit.SellPrice, sc.Feed, false)
		if err != nil {
			return err
		}
		if swan, err := e.CheckForBlackSwan(symbol, enableBlackSwan); err != nil || swan {
			return err
		}
		if !progress {
			return nil
		}
	}
}

// CheckForBlackSwan settles a stablecoin globally when its least
// collateralized position can no longer buy back its debt: when
// ~collateralization ≥ max(best debt-selling limit price, max short squeeze
// price). Returns true when the asset was settled.
func (e *Engine) CheckForBlackSwan(symbol asset.Symbol, enable bool) (bool, error) {
	sc, err := e.stablecoin(symbol)
	if err != nil {
		return false, err
	}
	if sc.IsSettled() || !sc.HasValidFeed() {
		return false, nil
	}
	least, ok := e.st.Book.LeastCollateralized(symbol)
	if !ok {
		return false, nil
	}
	highest := sc.Feed.MaxShortSqueezePrice()
	if limit, ok := e.st.Book.BestLimit(symbol, sc.BackingSymbol); ok && limit.SellPrice.Greater(highest) {
		highest = limit.SellPrice
	}
	if least.Collateralization().Invert().Less(highest) {
		return false, nil
	}
	if !enable {
		return false, fmt.Errorf("%w: %s call %d at %s", ErrUnexpectedBlackSwan, symbol, least.ID, least.Collateralization())
	}
	return true, e.GloballySettleAsset(symbol, sc.Feed.SettlementPrice)
}

// GloballySettleAsset closes every call order on a stablecoin at price
// (debt/collateral), collecting the collateral owed into the settlement
// fund. The asset is then redeemable only from the fund.
func (e *Engine) GloballySettleAsset(symbol asset.Symbol, price asset.Price) error {
	sc, err := e.stablecoin(symbol)
	if err != nil {
		return err
	}
	if sc.IsSettled() {
		return fmt.Errorf("%w: %s", ErrSettled, symbol)
	}
	fund := sc.SettlementFundAsset()
	for _, call := range e.st.Book.CallsByCollateral(symbol) {
		pays := asset.Min(call.Debt.Mul(price), call.Collateral)
		fund = fund.Add(pays)
		e.st.Book.RemoveCall(call.ID)
		if err := e.release(call.Borrower, call.Collateral.Sub(pays)); err != nil {
			return err
		}
	}

	d, _ := e.st.Ledger.Supply(symbol)
	settlement := price
	if d.TotalSupply > 0 && fund.IsPositive() {
		settlement = asset.NewPrice(asset.New(d.TotalSupply, symbol), fund)
	}
	sc.Status = market.Settled
	sc.SettlementPrice = settlement
	sc.SettlementFund = fund.Amount
	if err := e.st.Registry.UpdateStablecoin(sc); err != nil {
		return err
	}
	e.st.Emit(state.EventGlobalSettlement, state.GlobalSettlement{Symbol: symbol, SettlementPrice: settlement, Fund: fund})
	e.metrics.BlackSwan(string(symbol))
	e.log.Warn("stablecoin globally settled",
		zap.String("symbol", string(symbol)),
		zap.Stringer("settlement_price", settlement),
		zap.Stringer("fund", fund))
	return nil
}

// ============================================================================
// Redemption
// ============================================================================

// AssetSettle redeems a stablecoin for collateral. A settled asset pays out
// of the settlement fund at once; otherwise a settlement order is queued
// for ForceSettleDelay and filled against the least collateralized calls.
func (e *Engine) AssetSettle(owner common.Address, amount asset.Asset, iface common.Address) error {
	if err := positive("settle", amount); err != nil {
		return err
	}
	sc, err := e.stablecoin(amount.Symbol)
	if err != nil {
		return err
	}
	if sc.IsSettled() {
		receive := asset.Min(amount.Mul(sc.SettlementPrice), sc.SettlementFundAsset())
		if receive.IsZero() {
			return invalidf("settling %s receives nothing", amount)
		}
		if err := e.st.Ledger.Burn(owner, amount); err != nil {
			return err
		}
		sc.SettlementFund -= receive.Amount
		if err := e.st.Registry.UpdateStablecoin(sc); err != nil {
			return err
		}
		if err := e.release(owner, receive); err != nil {
			return err
		}
		e.st.Emit(state.EventAssetSettle, state.AssetSettle{Owner: owner, Paid: amount, Received: receive})
		return nil
	}
	if !sc.HasValidFeed() {
		return fmt.Errorf("%w: %s", ErrNoFeed, sc.Symbol)
	}
	if err := e.lock(owner, amount); err != nil {
		return err
	}
	return e.st.Book.InsertSettlement(orderbook.SettlementOrder{
		ID:             e.st.NewID(),
		Owner:          owner,
		Balance:        amount,
		SettlementDate: e.now() + sc.ForceSettleDelay,
		Interface:      iface,
	})
}

// ProcessSettlementOrders fills settlement requests whose delay has passed.
// Each request is applied on its own; a failure leaves it queued.
func (e *Engine) ProcessSettlementOrders() error {
	for _, so := range e.st.Book.DueSettlements(e.now()) {
		if err := e.Apply(func() error { return e.settle(so) }); err != nil {
			e.log.Info("settlement order failed", zap.Uint64("id", so.ID), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) settle(so orderbook.SettlementOrder) error {
	sc, err := e.stablecoin(so.Balance.Symbol)
	if err != nil {
		return err
	}
	e.st.Book.RemoveSettlement(so.ID)
	remaining := so.Balance

	switch {
	case sc.IsSettled():
		receive := asset.Min(remaining.Mul(sc.SettlementPrice), sc.SettlementFundAsset())
		if receive.IsPositive() {
			if err := e.st.Ledger.BurnPending(remaining); err != nil {
				return err
			}
			sc.SettlementFund -= receive.Amount
			if err := e.st.Registry.UpdateStablecoin(sc); err != nil {
				return err
			}
			if err := e.release(so.Owner, receive); err != nil {
				return err
			}
			e.st.Emit(state.EventAssetSettle, state.AssetSettle{Owner: so.Owner, Paid: remaining, Received: receive})
			remaining = asset.Zero(remaining.Symbol)
		}

	case sc.HasValidFeed():
		price := sc.Feed.SettlementPrice.Scale(asset.Percent100, asset.Percent100-sc.ForceSettleOffset)
		for _, call := range e.st.Book.CallsByCollateral(sc.Symbol) {
			if remaining.IsZero() {
				break
			}
			pays := asset.Min(remaining, call.Debt)
			receives := asset.Min(pays.Mul(price), call.Collateral)
			if receives.IsZero() {
				break
			}
			if err := e.fillCall(call, pays, receives, price); err != nil {
				return err
			}
			if err := e.release(so.Owner, receives); err != nil {
				return err
			}
			e.st.Emit(state.EventAssetSettle, state.AssetSettle{Owner: so.Owner, Paid: pays, Received: receives})
			remaining = remaining.Sub(pays)
		}
	}

	if remaining.IsPositive() {
		if err := e.release(so.Owner, remaining); err != nil {
			return err
		}
		e.st.Emit(state.EventCancelOrder, state.CancelOrder{
			Owner:    so.Owner,
			OrderID:  so.ID,
			Kind:     "settlement",
			Refunded: remaining,
			Reason:   "unfilled",
		})
	}
	return nil
}

// ============================================================================
// Revival
// ============================================================================

// BidCollateral offers collateral to take over part of a settled
// stablecoin's debt. A new bid replaces the bidder's previous one; a bid
// covering no debt only cancels.
func (e *Engine) BidCollateral(bidder common.Address, collateral, debtCovered asset.Asset) error {
	sc, err := e.stablecoin(debtCovered.Symbol)
	if err != nil {
		return err
	}
	if !sc.IsSettled() {
		return fmt.Errorf("%w: %s", ErrNotSettled, sc.Symbol)
	}
	if collateral.Symbol != sc.BackingSymbol {
		return invalidf("%s is not backed by %s", sc.Symbol, collateral.Symbol)
	}
	if collateral.IsNegative() || debtCovered.IsNegative() {
		return invalidf("negative collateral bid")
	}
	if prev, ok := e.st.Book.BidByAccount(bidder, sc.Symbol); ok {
		e.st.Book.RemoveBid(prev.ID)
		if err := e.release(bidder, prev.AdditionalCollateral); err != nil {
			return err
		}
	}
	if debtCovered.IsZero() {
		e.st.Emit(state.EventAssetCollateralBid, state.CollateralBidEvent{Bidder: bidder, Collateral: asset.Zero(collateral.Symbol), Debt: debtCovered})
		return nil
	}
	if err := positive("bid collateral", collateral); err != nil {
		return err
	}
	if err := e.lock(bidder, collateral); err != nil {
		return err
	}
	if err := e.st.Book.InsertBid(orderbook.CollateralBid{
		ID:                   e.st.NewID(),
		Bidder:               bidder,
		AdditionalCollateral: collateral,
		DebtCovered:          debtCovered,
	}); err != nil {
		return err
	}
	e.st.Emit(state.EventAssetCollateralBid, state.CollateralBidEvent{Bidder: bidder, Collateral: collateral, Debt: debtCovered})
	return nil
}

// ProcessCollateralBids revives settled stablecoins whose supply is gone or
// whose bids, best ratio first, cover the whole supply while each resulting
// position clears maintenance collateralization
func (e *Engine) ProcessCollateralBids() error {
	for _, sc := range e.st.Registry.Stablecoins() {
		if !sc.IsSettled() {
			continue
		}
		if err := e.Apply(func() error { return e.revive(sc) }); err != nil {
			e.log.Info("stablecoin revival failed", zap.String("symbol", string(sc.Symbol)), zap.Error(err))
		}
	}
	return nil
}

type executedBid struct {
	bid        orderbook.CollateralBid
	debt       asset.Asset
	collateral asset.Asset // Taken from the bid
	fund       asset.Asset // Taken from the settlement fund
}

func (e *Engine) revive(sc market.StablecoinData) error {
	d, _ := e.st.Ledger.Supply(sc.Symbol)
	bids := e.st.Book.BidsByRatio(sc.Symbol)

	if d.TotalSupply == 0 {
		obj, _ := e.st.Registry.Get(sc.Symbol)
		if err := e.release(obj.Issuer, sc.SettlementFundAsset()); err != nil {
			return err
		}
		return e.reviveStablecoin(sc, bids, nil)
	}
	if !sc.HasValidFeed() {
		return nil
	}

	supply := asset.New(d.TotalSupply, sc.Symbol)
	fund := sc.SettlementFundAsset()
	mcr := sc.Feed.MaintenanceCollateralization()
	covered := asset.Zero(sc.Symbol)
	var taken []executedBid
	for _, bid := range bids {
		if covered.Compare(supply) >= 0 {
			break
		}
		debt := asset.Min(bid.DebtCovered, supply.Sub(covered))
		x := executedBid{
			bid:        bid,
			debt:       debt,
			collateral: bid.AdditionalCollateral.Scale(debt.Amount, bid.DebtCovered.Amount),
			fund:       fund.Scale(debt.Amount, supply.Amount),
		}
		if asset.NewPrice(x.collateral.Add(x.fund), debt).LessEq(mcr) {
			continue
		}
		taken = append(taken, x)
		covered = covered.Add(debt)
	}
	if covered.Less(supply) {
		return nil
	}

	// The last bid absorbs the fund's rounding remainder
	rest := fund
	for _, x := range taken[:len(taken)-1] {
		rest = rest.Sub(x.fund)
	}
	taken[len(taken)-1].fund = rest
	return e.reviveStablecoin(sc, bids, taken)
}

// reviveStablecoin turns executed bids into call orders, refunds every
// other bid and returns the asset to normal trading
func (e *Engine) reviveStablecoin(sc market.StablecoinData, bids []orderbook.CollateralBid, taken []executedBid) error {
	executed := make(map[uint64]bool, len(taken))
	for _, x := range taken {
		executed[x.bid.ID] = true
		e.st.Book.RemoveBid(x.bid.ID)
		if err := e.st.Book.InsertCall(orderbook.CallOrder{
			ID:         e.st.NewID(),
			Borrower:   x.bid.Bidder,
			Collateral: x.collateral.Add(x.fund),
			Debt:       x.debt,
		}); err != nil {
			return err
		}
		if err := e.release(x.bid.Bidder, x.bid.AdditionalCollateral.Sub(x.collateral)); err != nil {
			return err
		}
		e.st.Emit(state.EventExecuteBid, state.CollateralBidEvent{
			Bidder:     x.bid.Bidder,
			Collateral: x.collateral.Add(x.fund),
			Debt:       x.debt,
		})
	}
	for _, bid := range bids {
		if executed[bid.ID] {
			continue
		}
		e.st.Book.RemoveBid(bid.ID)
		if err := e.release(bid.Bidder, bid.AdditionalCollateral); err != nil {
			return err
		}
	}

	sc.SettlementFund = 0
	sc.Status = market.Normal
	sc.SettlementPrice = asset.Price{}
	if err := e.st.Registry.UpdateStablecoin(sc); err != nil {
		return err
	}
	e.st.Emit(state.EventReviveStablecoin, state.GlobalSettlement{Symbol: sc.Symbol, Fund: asset.Zero(sc.BackingSymbol)})
	e.log.Info("stablecoin revived", zap.String("symbol", string(sc.Symbol)), zap.Int("positions", len(taken)))
	return nil
}
