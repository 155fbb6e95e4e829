package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/market"
	"github.com/uhyunpark/hypercredit/pkg/app/core/pool"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
)

// ============================================================================
// Assets
// ============================================================================

// CreateAsset registers an asset and its supply counters. Tradable assets
// get a credit pool and its share token.
func (e *Engine) CreateAsset(a market.AssetObject) error {
	switch a.Type {
	case market.LiquidityPool, market.CreditPool, market.Option:
		return invalidf("%s assets are created by the ledger", a.Type)
	case market.Stablecoin:
		return invalidf("stablecoins need a backing asset")
	}
	return e.createAsset(a)
}

// CreateStablecoin registers a stablecoin issued against backing collateral
func (e *Engine) CreateStablecoin(a market.AssetObject, backing asset.Symbol) error {
	a.Type = market.Stablecoin
	back, ok := e.st.Registry.Get(backing)
	if !ok {
		return fmt.Errorf("%w: backing %s", ErrUnknownAsset, backing)
	}
	if back.Type == market.Stablecoin {
		return invalidf("stablecoin %s cannot back %s", backing, a.Symbol)
	}
	if err := e.createAsset(a); err != nil {
		return err
	}
	return e.st.Registry.RegisterStablecoin(market.StablecoinData{
		Symbol:            a.Symbol,
		BackingSymbol:     backing,
		ForceSettleDelay:  seconds(e.params.ForceSettleDelay),
		ForceSettleOffset: e.params.ForceSettleOffset,
	})
}

func (e *Engine) createAsset(a market.AssetObject) error {
	if err := e.st.Registry.Register(a); err != nil {
		return err
	}
	if err := e.st.Ledger.CreateSupply(a.Symbol); err != nil {
		return err
	}
	if !a.Type.Tradable() {
		return nil
	}
	cp := pool.NewCreditPool(e.st.NewID(), a.Symbol)
	if err := e.registerInternal(cp.CreditSymbol, market.CreditPool); err != nil {
		return err
	}
	return e.st.Pools.InsertCredit(cp)
}

// registerInternal registers a ledger-owned asset once
func (e *Engine) registerInternal(symbol asset.Symbol, typ market.AssetType) error {
	if e.st.Registry.Exists(symbol) {
		return nil
	}
	if err := e.st.Registry.Register(market.AssetObject{Symbol: symbol, Issuer: account.NullAccount, Type: typ}); err != nil {
		return err
	}
	return e.st.Ledger.CreateSupply(symbol)
}

// Issue mints new supply of an issuer's asset to an account
func (e *Engine) Issue(issuer, to common.Address, amount asset.Asset) error {
	if err := positive("issue", amount); err != nil {
		return err
	}
	a, ok := e.st.Registry.Get(amount.Symbol)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, amount.Symbol)
	}
	if a.Issuer != issuer || isNull(issuer) {
		return fmt.Errorf("%w: %s", ErrNotIssuer, amount.Symbol)
	}
	switch a.Type {
	case market.Currency, market.Standard, market.Credit:
	default:
		return invalidf("%s assets cannot be issued directly", a.Type)
	}
	if a.MaxSupply > 0 {
		d, _ := e.st.Ledger.Supply(amount.Symbol)
		if d.TotalSupply > a.MaxSupply-amount.Amount {
			return fmt.Errorf("%w: %s of %d", ErrMaxSupply, amount, a.MaxSupply)
		}
	}
	return e.st.Ledger.Issue(to, amount)
}

// Burn destroys an amount of the owner's liquid balance
func (e *Engine) Burn(owner common.Address, amount asset.Asset) error {
	if err := positive("burn", amount); err != nil {
		return err
	}
	return e.st.Ledger.Burn(owner, amount)
}

// ============================================================================
// Account movements
// ============================================================================

// Transfer moves liquid balance between accounts
func (e *Engine) Transfer(from, to common.Address, amount asset.Asset) error {
	if err := positive("transfer", amount); err != nil {
		return err
	}
	if from == to {
		return invalidf("transfer to self")
	}
	if err := e.st.Ledger.AdjustLiquidBalance(from, amount.Neg()); err != nil {
		return err
	}
	return e.st.Ledger.AdjustLiquidBalance(to, amount)
}

// TransferToSavings moves liquid balance into a savings balance
func (e *Engine) TransferToSavings(from, to common.Address, amount asset.Asset) error {
	if err := positive("transfer to savings", amount); err != nil {
		return err
	}
	if err := e.st.Ledger.AdjustLiquidBalance(from, amount.Neg()); err != nil {
		return err
	}
	return e.st.Ledger.AdjustSavingsBalance(to, amount)
}

// TransferFromSavings starts a delayed savings withdrawal
func (e *Engine) TransferFromSavings(from common.Address, requestID string, to common.Address, amount asset.Asset) error {
	if err := positive("transfer from savings", amount); err != nil {
		return err
	}
	if _, ok := e.st.Ledger.GetSavingsWithdraw(from, requestID); ok {
		return fmt.Errorf("%w: savings withdraw %q", ErrOrderExists, requestID)
	}
	if err := e.st.Ledger.AdjustSavingsBalance(from, amount.Neg()); err != nil {
		return err
	}
	if err := e.st.Ledger.AdjustPendingSupply(amount); err != nil {
		return err
	}
	return e.st.Ledger.InsertSavingsWithdraw(account.SavingsWithdraw{
		From:      from,
		RequestID: requestID,
		To:        to,
		Amount:    amount,
		Complete:  e.now() + seconds(e.params.SavingsWithdrawDelay),
	})
}

// CancelTransferFromSavings returns a waiting withdrawal to savings
func (e *Engine) CancelTransferFromSavings(from common.Address, requestID string) error {
	w, ok := e.st.Ledger.GetSavingsWithdraw(from, requestID)
	if !ok {
		return fmt.Errorf("%w: savings withdraw %q", ErrUnknownOrder, requestID)
	}
	e.st.Ledger.RemoveSavingsWithdraw(w)
	if err := e.st.Ledger.AdjustPendingSupply(w.Amount.Neg()); err != nil {
		return err
	}
	return e.st.Ledger.AdjustSavingsBalance(from, w.Amount)
}

// Stake moves liquid balance into the staked bucket
func (e *Engine) Stake(owner common.Address, amount asset.Asset) error {
	if err := positive("stake", amount); err != nil {
		return err
	}
	if err := e.st.Ledger.AdjustLiquidBalance(owner, amount.Neg()); err != nil {
		return err
	}
	return e.st.Ledger.AdjustStakedBalance(owner, amount)
}

// Unstake schedules amount to return to liquid in UnstakeIntervals equal
// payments. A zero amount cancels the request; a new request replaces the
// old one.
func (e *Engine) Unstake(owner common.Address, amount asset.Asset) error {
	if amount.IsNegative() {
		return invalidf("negative unstake %s", amount)
	}
	req := account.UnstakeRequest{Owner: owner, Symbol: amount.Symbol}
	if amount.IsZero() {
		return e.st.Ledger.PutUnstake(req)
	}
	bal := e.st.Ledger.GetBalance(owner, amount.Symbol)
	if avail := bal.Staked - bal.Delegated; amount.Amount > avail {
		return &account.BalanceError{
			Owner:     owner,
			Field:     account.Staked,
			Requested: amount,
			Available: asset.New(avail, amount.Symbol),
		}
	}
	req.Remaining = amount.Amount
	req.PerInterval = amount.ScaleCeil(1, e.params.UnstakeIntervals).Amount
	req.NextTime = e.now() + seconds(e.params.UnstakeInterval)
	return e.st.Ledger.PutUnstake(req)
}

// Delegate lends staked weight to another account
func (e *Engine) Delegate(from, to common.Address, amount asset.Asset) error {
	if err := positive("delegate", amount); err != nil {
		return err
	}
	if from == to {
		return invalidf("delegate to self")
	}
	if err := e.st.Ledger.AdjustDelegatedBalance(from, amount); err != nil {
		return err
	}
	return e.st.Ledger.AdjustReceivingBalance(to, amount)
}

// Undelegate takes back delegated weight
func (e *Engine) Undelegate(from, to common.Address, amount asset.Asset) error {
	if err := positive("undelegate", amount); err != nil {
		return err
	}
	if err := e.st.Ledger.AdjustReceivingBalance(to, amount.Neg()); err != nil {
		return err
	}
	return e.st.Ledger.AdjustDelegatedBalance(from, amount.Neg())
}

// ClaimReward moves reward balance to liquid
func (e *Engine) ClaimReward(owner common.Address, amount asset.Asset) error {
	if err := positive("claim reward", amount); err != nil {
		return err
	}
	if err := e.st.Ledger.AdjustRewardBalance(owner, amount.Neg()); err != nil {
		return err
	}
	return e.st.Ledger.AdjustLiquidBalance(owner, amount)
}

// SetRecurringTransfer creates, replaces or (with a zero amount) removes a
// recurring payment
func (e *Engine) SetRecurringTransfer(from, to common.Address, amount asset.Asset, interval int64, payments int64) error {
	if from == to {
		return invalidf("recurring transfer to self")
	}
	if amount.IsZero() {
		r, ok := e.st.Ledger.GetRecurringTransfer(from, to, amount.Symbol)
		if !ok {
			return fmt.Errorf("%w: recurring transfer", ErrUnknownOrder)
		}
		e.st.Ledger.RemoveRecurringTransfer(r)
		return nil
	}
	if err := positive("recurring transfer", amount); err != nil {
		return err
	}
	if interval < seconds(e.params.MinRecurringInterval) {
		return invalidf("recurring interval %ds below minimum %s", interval, e.params.MinRecurringInterval)
	}
	if payments <= 0 {
		return invalidf("recurring transfer needs at least one payment")
	}
	if !e.st.Registry.Exists(amount.Symbol) {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, amount.Symbol)
	}
	return e.st.Ledger.PutRecurringTransfer(account.RecurringTransfer{
		From:              from,
		To:                to,
		Amount:            amount,
		Interval:          interval,
		NextTime:          e.now() + interval,
		RemainingPayments: payments,
	})
}

// ============================================================================
// Scheduled movements
// ============================================================================

// ProcessAssetStaking pays due unstake instalments
func (e *Engine) ProcessAssetStaking() error {
	for _, r := range e.st.Ledger.DueUnstakes(e.now()) {
		bal := e.st.Ledger.GetBalance(r.Owner, r.Symbol)
		pay := min(r.PerInterval, r.Remaining, bal.Staked-bal.Delegated)
		if pay <= 0 {
			r.Remaining = 0
			if err := e.st.Ledger.PutUnstake(r); err != nil {
				return err
			}
			continue
		}
		amount := asset.New(pay, r.Symbol)
		if err := e.st.Ledger.AdjustStakedBalance(r.Owner, amount.Neg()); err != nil {
			return err
		}
		if err := e.st.Ledger.AdjustLiquidBalance(r.Owner, amount); err != nil {
			return err
		}
		r.Remaining -= pay
		r.NextTime += seconds(e.params.UnstakeInterval)
		if err := e.st.Ledger.PutUnstake(r); err != nil {
			return err
		}
		e.st.Emit(state.EventFillUnstake, state.Transfer{From: r.Owner, To: r.Owner, Amount: amount})
	}
	return nil
}

// ProcessSavingsWithdraws completes withdrawals whose delay has passed
func (e *Engine) ProcessSavingsWithdraws() error {
	for _, w := range e.st.Ledger.DueSavingsWithdraws(e.now()) {
		e.st.Ledger.RemoveSavingsWithdraw(w)
		if err := e.release(w.To, w.Amount); err != nil {
			return err
		}
		e.st.Emit(state.EventFillSavingsWithdraw, state.Transfer{From: w.From, To: w.To, Amount: w.Amount, Memo: w.RequestID})
	}
	return nil
}

// ProcessRecurringTransfers pays due recurring transfers. A payment the
// sender cannot cover cancels the transfer.
func (e *Engine) ProcessRecurringTransfers() error {
	for _, r := range e.st.Ledger.DueRecurringTransfers(e.now()) {
		if err := e.Transfer(r.From, r.To, r.Amount); err != nil {
			e.st.Ledger.RemoveRecurringTransfer(r)
			e.st.Emit(state.EventFailedRecurring, state.Transfer{From: r.From, To: r.To, Amount: r.Amount, Memo: err.Error()})
			e.log.Info("recurring transfer cancelled",
				zap.Stringer("from", r.From),
				zap.Stringer("to", r.To),
				zap.Stringer("amount", r.Amount),
				zap.Error(err))
			continue
		}
		e.st.Emit(state.EventRecurringTransfer, state.Transfer{From: r.From, To: r.To, Amount: r.Amount})
		r.RemainingPayments--
		r.NextTime += r.Interval
		if err := e.st.Ledger.PutRecurringTransfer(r); err != nil {
			return err
		}
	}
	return nil
}
