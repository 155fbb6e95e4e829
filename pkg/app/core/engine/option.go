package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/market"
	"github.com/uhyunpark/hypercredit/pkg/app/core/orderbook"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
)

// OptionSymbol names the asset of an option series. The strike is reduced
// so equal strikes share one symbol.
//
// Example: OPT.BTC.USD.C.1.50000.1767225600
func OptionSymbol(strike asset.Price, call bool, expiration int64) asset.Symbol {
	r := asset.NewPriceRatio(strike.Base.Symbol, strike.Quote.Symbol,
		uint256.NewInt(uint64(strike.Base.Amount)), uint256.NewInt(uint64(strike.Quote.Amount)))
	side := "P"
	if call {
		side = "C"
	}
	return asset.Symbol(strings.Join([]string{
		"OPT",
		string(strike.Base.Symbol),
		string(strike.Quote.Symbol),
		side,
		strconv.FormatInt(r.Base.Amount, 10),
		strconv.FormatInt(r.Quote.Amount, 10),
		strconv.FormatInt(expiration, 10),
	}, "."))
}

// OptionRequest writes Units of underlying at Strike (underlying/strike asset)
type OptionRequest struct {
	Owner      common.Address
	OrderID    string
	Units      asset.Asset
	Strike     asset.Price
	Call       bool
	Expiration int64
	Interface  common.Address
}

// PlaceOptionOrder writes options: a call locks the underlying, a put
// locks the strike payment. The writer receives one option token per
// underlying unit written. Returns the option symbol.
func (e *Engine) PlaceOptionOrder(req OptionRequest) (asset.Symbol, error) {
	if err := positive("option order", req.Units); err != nil {
		return "", err
	}
	if !req.Units.WholeUnits() {
		return "", invalidf("option order %s: %s is not whole units", req.OrderID, req.Units)
	}
	if err := req.Strike.Validate(); err != nil {
		return "", invalidf("option order %s: %v", req.OrderID, err)
	}
	if req.Strike.Base.Symbol != req.Units.Symbol {
		return "", invalidf("option order %s: strike %s is not priced in %s", req.OrderID, req.Strike, req.Units.Symbol)
	}
	for _, sym := range []asset.Symbol{req.Strike.Base.Symbol, req.Strike.Quote.Symbol} {
		if !e.st.Registry.Exists(sym) {
			return "", fmt.Errorf("%w: %s", ErrUnknownAsset, sym)
		}
	}
	if req.Expiration <= e.now() {
		return "", fmt.Errorf("%w: option %s at %d", ErrExpired, req.OrderID, req.Expiration)
	}
	if _, ok := e.st.Book.OptionByAccount(req.Owner, req.OrderID); ok {
		return "", fmt.Errorf("%w: %s", ErrOrderExists, req.OrderID)
	}

	locked := req.Units
	if !req.Call {
		locked = req.Units.Mul(req.Strike)
		if locked.IsZero() {
			return "", invalidf("option order %s: strike payment rounds to nothing", req.OrderID)
		}
	}
	sym := OptionSymbol(req.Strike, req.Call, req.Expiration)
	if err := e.registerInternal(sym, market.Option); err != nil {
		return "", err
	}
	if err := e.lock(req.Owner, locked); err != nil {
		return "", err
	}
	position := asset.New(req.Units.Amount, sym)
	if err := e.st.Ledger.Issue(req.Owner, position); err != nil {
		return "", err
	}
	err := e.st.Book.InsertOption(orderbook.OptionOrder{
		ID:           e.st.NewID(),
		Owner:        req.Owner,
		OrderID:      req.OrderID,
		OptionSymbol: sym,
		Underlying:   locked,
		Position:     position,
		StrikePrice:  req.Strike,
		IsCall:       req.Call,
		Created:      e.now(),
		Expiration:   req.Expiration,
		Interface:    req.Interface,
	})
	if err != nil {
		return "", err
	}
	return sym, nil
}

// ExerciseOption burns a holder's option tokens against writers oldest
// first. Exercising a call pays the strike and receives the underlying;
// exercising a put delivers the underlying and receives the strike.
func (e *Engine) ExerciseOption(holder common.Address, units asset.Asset) error {
	if err := positive("exercise", units); err != nil {
		return err
	}
	if !units.WholeUnits() {
		return invalidf("exercise: %s is not whole units", units)
	}
	writers := e.st.Book.OptionsBySymbol(units.Symbol)
	if len(writers) == 0 {
		return fmt.Errorf("%w: option %s", ErrUnknownOrder, units.Symbol)
	}
	if writers[0].Expiration <= e.now() {
		return fmt.Errorf("%w: option %s", ErrExpired, units.Symbol)
	}
	if err := e.st.Ledger.Burn(holder, units); err != nil {
		return err
	}

	remaining := units
	for _, o := range writers {
		if remaining.IsZero() {
			break
		}
		take := asset.Min(remaining, o.Position)
		if err := e.exercise(holder, &o, take); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}
	if remaining.IsPositive() {
		return invalidf("exercise: %s exceeds open positions", units)
	}
	return nil
}

// exercise settles take option units of one writer's position
func (e *Engine) exercise(holder common.Address, o *orderbook.OptionOrder, take asset.Asset) error {
	under := asset.New(take.Amount, o.StrikePrice.Base.Symbol)
	strike := under.Mul(o.StrikePrice)

	var paid, received asset.Asset
	if o.IsCall {
		paid, received = strike, under
	} else {
		paid, received = under, asset.Min(strike, o.Underlying)
	}
	if err := e.lock(holder, paid); err != nil {
		return err
	}
	if err := e.release(o.Owner, paid); err != nil {
		return err
	}
	if err := e.release(holder, received); err != nil {
		return err
	}
	o.Underlying = o.Underlying.Sub(received)
	o.Position = o.Position.Sub(take)

	e.st.Emit(state.EventOptionExercise, state.OptionExercise{
		Holder:   holder,
		Writer:   o.Owner,
		Units:    take,
		Paid:     paid,
		Received: received,
	})
	e.metrics.Fill(o.Kind().String())

	if o.Position.IsZero() {
		e.st.Book.RemoveOption(o.ID)
		return e.release(o.Owner, o.Underlying)
	}
	return e.st.Book.UpdateOption(*o)
}

// CancelOptionOrder lets a writer buy back their exposure: option tokens
// they hold are burned against the position and the matching share of the
// locked amount is returned.
func (e *Engine) CancelOptionOrder(owner common.Address, orderID string) error {
	o, ok := e.st.Book.OptionByAccount(owner, orderID)
	if !ok {
		return fmt.Errorf("%w: option %s", ErrUnknownOrder, orderID)
	}
	held := e.st.Ledger.GetBalance(owner, o.OptionSymbol).Liquid
	burn := asset.New(min(held, o.Position.Amount), o.OptionSymbol)
	if burn.IsZero() {
		return invalidf("option %s: no option tokens to burn", orderID)
	}
	if err := e.st.Ledger.Burn(owner, burn); err != nil {
		return err
	}

	unlock := o.Underlying.Scale(burn.Amount, o.Position.Amount)
	o.Position = o.Position.Sub(burn)
	o.Underlying = o.Underlying.Sub(unlock)
	if o.Position.IsZero() {
		unlock = unlock.Add(o.Underlying)
		o.Underlying = asset.Zero(o.Underlying.Symbol)
		e.st.Book.RemoveOption(o.ID)
	} else if err := e.st.Book.UpdateOption(o); err != nil {
		return err
	}
	if err := e.release(owner, unlock); err != nil {
		return err
	}
	e.st.Emit(state.EventCancelOrder, state.CancelOrder{
		Owner:    owner,
		OrderID:  o.ID,
		Kind:     o.Kind().String(),
		Refunded: unlock,
		Reason:   "cancelled",
	})
	return nil
}

// ProcessOptionOrders returns the locked amount of expired positions to
// their writers. Unexercised option tokens become worthless.
func (e *Engine) ProcessOptionOrders() error {
	for _, o := range e.st.Book.ExpiredOptions(e.now()) {
		e.st.Book.RemoveOption(o.ID)
		if err := e.release(o.Owner, o.Underlying); err != nil {
			return err
		}
		e.st.Emit(state.EventCancelOrder, state.CancelOrder{
			Owner:    o.Owner,
			OrderID:  o.ID,
			Kind:     o.Kind().String(),
			Refunded: o.Underlying,
			Reason:   "expired",
		})
		e.log.Debug("option expired",
			zap.String("symbol", string(o.OptionSymbol)),
			zap.Stringer("writer", o.Owner),
			zap.Stringer("refund", o.Underlying))
	}
	return nil
}
