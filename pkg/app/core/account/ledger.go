package account

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/table"
)

// Ledger holds every account balance and the per-symbol supply counters.
// Every balance adjustment moves the matching supply counter by the same
// delta, so the supply invariant holds after each call.
//
// The ledger is not safe for concurrent use; the engine drives it from a
// single goroutine and readers work on a snapshot.
type Ledger struct {
	balances  *table.Table[Balance]
	supply    *table.Table[DynamicData]
	profiles  *table.Table[Profile]
	unstakes  *table.Table[UnstakeRequest]
	withdraws *table.Table[SavingsWithdraw]
	recurring *table.Table[RecurringTransfer]

	// COIN credited to the null account, spent by credit buybacks
	revenue int64
}

const (
	bySymbol   = "by_symbol"
	byNextTime = "by_next_time"
	byComplete = "by_complete"
)

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	l := &Ledger{
		balances: table.New("balance", func(a, b Balance) bool {
			if c := CompareAddress(a.Owner, b.Owner); c != 0 {
				return c < 0
			}
			return a.Symbol < b.Symbol
		}),
		supply: table.New("dynamic_data", func(a, b DynamicData) bool {
			return a.Symbol < b.Symbol
		}),
		profiles: table.New("profile", func(a, b Profile) bool {
			return CompareAddress(a.Owner, b.Owner) < 0
		}),
		unstakes: table.New("unstake", func(a, b UnstakeRequest) bool {
			if c := CompareAddress(a.Owner, b.Owner); c != 0 {
				return c < 0
			}
			return a.Symbol < b.Symbol
		}),
		withdraws: table.New("savings_withdraw", func(a, b SavingsWithdraw) bool {
			if c := CompareAddress(a.From, b.From); c != 0 {
				return c < 0
			}
			return a.RequestID < b.RequestID
		}),
		recurring: table.New("recurring_transfer", func(a, b RecurringTransfer) bool {
			if c := CompareAddress(a.From, b.From); c != 0 {
				return c < 0
			}
			if c := CompareAddress(a.To, b.To); c != 0 {
				return c < 0
			}
			return a.Amount.Symbol < b.Amount.Symbol
		}),
	}
	l.balances.AddIndex(bySymbol, func(a, b Balance) bool {
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return CompareAddress(a.Owner, b.Owner) < 0
	})
	l.unstakes.AddIndex(byNextTime, func(a, b UnstakeRequest) bool {
		if a.NextTime != b.NextTime {
			return a.NextTime < b.NextTime
		}
		if c := CompareAddress(a.Owner, b.Owner); c != 0 {
			return c < 0
		}
		return a.Symbol < b.Symbol
	})
	l.withdraws.AddIndex(byComplete, func(a, b SavingsWithdraw) bool {
		if a.Complete != b.Complete {
			return a.Complete < b.Complete
		}
		if c := CompareAddress(a.From, b.From); c != 0 {
			return c < 0
		}
		return a.RequestID < b.RequestID
	})
	l.recurring.AddIndex(byNextTime, func(a, b RecurringTransfer) bool {
		if a.NextTime != b.NextTime {
			return a.NextTime < b.NextTime
		}
		if c := CompareAddress(a.From, b.From); c != 0 {
			return c < 0
		}
		if c := CompareAddress(a.To, b.To); c != 0 {
			return c < 0
		}
		return a.Amount.Symbol < b.Amount.Symbol
	})
	return l
}

// Copy returns a copy-on-write snapshot
func (l *Ledger) Copy() *Ledger {
	return &Ledger{
		balances:  l.balances.Copy(),
		supply:    l.supply.Copy(),
		profiles:  l.profiles.Copy(),
		unstakes:  l.unstakes.Copy(),
		withdraws: l.withdraws.Copy(),
		recurring: l.recurring.Copy(),
		revenue:   l.revenue,
	}
}

// ============================================================================
// Supply
// ============================================================================

// CreateSupply registers the supply counters of a new symbol
func (l *Ledger) CreateSupply(symbol asset.Symbol) error {
	if err := l.supply.Insert(DynamicData{Symbol: symbol}); err != nil {
		return fmt.Errorf("create supply %s: %w", symbol, err)
	}
	return nil
}

// Supply returns the supply counters of a symbol
func (l *Ledger) Supply(symbol asset.Symbol) (DynamicData, bool) {
	return l.supply.Get(DynamicData{Symbol: symbol})
}

// Supplies returns every symbol's counters ordered by symbol
func (l *Ledger) Supplies() []DynamicData {
	return l.supply.Items()
}

func (l *Ledger) mustSupply(symbol asset.Symbol) (DynamicData, error) {
	d, ok := l.supply.Get(DynamicData{Symbol: symbol})
	if !ok {
		return d, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	return d, nil
}

// AdjustPendingSupply moves amounts into (positive) or out of (negative)
// holdings that sit outside account buckets
func (l *Ledger) AdjustPendingSupply(delta asset.Asset) error {
	if delta.IsZero() {
		return nil
	}
	d, err := l.mustSupply(delta.Symbol)
	if err != nil {
		return err
	}
	if d.PendingSupply+delta.Amount < 0 {
		return &SupplyError{Symbol: delta.Symbol, Msg: fmt.Sprintf("pending supply %d cannot absorb %d", d.PendingSupply, delta.Amount)}
	}
	d.PendingSupply += delta.Amount
	return l.supply.Update(d)
}

// IssuePending mints new supply directly into a holding (pending)
func (l *Ledger) IssuePending(amount asset.Asset) error {
	if amount.IsZero() {
		return nil
	}
	d, err := l.mustSupply(amount.Symbol)
	if err != nil {
		return err
	}
	d.TotalSupply += amount.Amount
	d.PendingSupply += amount.Amount
	if d.TotalSupply < 0 || d.PendingSupply < 0 {
		return &SupplyError{Symbol: amount.Symbol, Msg: "negative supply after pending issue"}
	}
	return l.supply.Update(d)
}

// BurnPending destroys supply held in a holding
func (l *Ledger) BurnPending(amount asset.Asset) error {
	return l.IssuePending(amount.Neg())
}

// Issue mints amount into owner's liquid balance
func (l *Ledger) Issue(to common.Address, amount asset.Asset) error {
	if amount.Amount < 0 {
		return fmt.Errorf("issue %s: negative amount", amount)
	}
	if amount.IsZero() {
		return nil
	}
	d, err := l.mustSupply(amount.Symbol)
	if err != nil {
		return err
	}
	d.TotalSupply += amount.Amount
	if err := l.supply.Update(d); err != nil {
		return err
	}
	return l.AdjustLiquidBalance(to, amount)
}

// Burn destroys amount from owner's liquid balance
func (l *Ledger) Burn(from common.Address, amount asset.Asset) error {
	if amount.Amount < 0 {
		return fmt.Errorf("burn %s: negative amount", amount)
	}
	if amount.IsZero() {
		return nil
	}
	if err := l.AdjustLiquidBalance(from, amount.Neg()); err != nil {
		return err
	}
	d, err := l.mustSupply(amount.Symbol)
	if err != nil {
		return err
	}
	d.TotalSupply -= amount.Amount
	return l.supply.Update(d)
}

// ============================================================================
// Balance adjustments
// ============================================================================

func (l *Ledger) AdjustLiquidBalance(owner common.Address, delta asset.Asset) error {
	return l.adjust(owner, delta, Liquid)
}

func (l *Ledger) AdjustStakedBalance(owner common.Address, delta asset.Asset) error {
	return l.adjust(owner, delta, Staked)
}

func (l *Ledger) AdjustSavingsBalance(owner common.Address, delta asset.Asset) error {
	return l.adjust(owner, delta, Savings)
}

func (l *Ledger) AdjustRewardBalance(owner common.Address, delta asset.Asset) error {
	return l.adjust(owner, delta, Reward)
}

func (l *Ledger) AdjustDelegatedBalance(owner common.Address, delta asset.Asset) error {
	return l.adjust(owner, delta, Delegated)
}

func (l *Ledger) AdjustReceivingBalance(owner common.Address, delta asset.Asset) error {
	return l.adjust(owner, delta, Receiving)
}

// Adjust moves one bucket of owner's balance by delta
func (l *Ledger) Adjust(owner common.Address, delta asset.Asset, field Field) error {
	return l.adjust(owner, delta, field)
}

// adjust is the single write path for balances.
// A zero delta is a no-op; a debit beyond the bucket fails with
// *BalanceError and changes nothing.
func (l *Ledger) adjust(owner common.Address, delta asset.Asset, field Field) error {
	if delta.IsZero() {
		return nil
	}
	d, err := l.mustSupply(delta.Symbol)
	if err != nil {
		return err
	}

	if owner == NullAccount {
		return l.creditNull(d, delta, field)
	}

	bal, exists := l.balances.Get(Balance{Owner: owner, Symbol: delta.Symbol})
	if !exists {
		bal = Balance{Owner: owner, Symbol: delta.Symbol}
	}
	cur := bal.get(field)
	if cur+delta.Amount < 0 {
		return &BalanceError{
			Owner:     owner,
			Field:     field,
			Requested: delta.Neg(),
			Available: asset.New(cur, delta.Symbol),
		}
	}
	if field == Delegated && cur+delta.Amount > bal.Staked {
		return &BalanceError{
			Owner:     owner,
			Field:     Staked,
			Requested: asset.New(cur+delta.Amount, delta.Symbol),
			Available: asset.New(bal.Staked, delta.Symbol),
		}
	}
	if field == Staked && bal.Staked+delta.Amount < bal.Delegated {
		return &BalanceError{
			Owner:     owner,
			Field:     Staked,
			Requested: delta.Neg(),
			Available: asset.New(bal.Staked-bal.Delegated, delta.Symbol),
		}
	}
	if d.get(field)+delta.Amount < 0 {
		return &SupplyError{Symbol: delta.Symbol, Msg: field.String() + " supply would go negative"}
	}

	bal.set(field, cur+delta.Amount)
	if exists {
		err = l.balances.Update(bal)
	} else {
		err = l.balances.Insert(bal)
	}
	if err != nil {
		return err
	}
	d.add(field, delta.Amount)
	return l.supply.Update(d)
}

// creditNull burns credits to the null account; COIN accrues to revenue
func (l *Ledger) creditNull(d DynamicData, delta asset.Asset, field Field) error {
	if delta.Amount < 0 || field == Delegated || field == Receiving {
		return fmt.Errorf("%w: %s %s", ErrNullAccount, field, delta)
	}
	if delta.Symbol == asset.CoinSymbol {
		l.revenue += delta.Amount
		d.PendingSupply += delta.Amount
	} else {
		d.TotalSupply -= delta.Amount
	}
	return l.supply.Update(d)
}

// NetworkRevenue returns the COIN accrued to the network
func (l *Ledger) NetworkRevenue() asset.Asset {
	return asset.New(l.revenue, asset.CoinSymbol)
}

// SpendNetworkRevenue takes COIN out of network revenue into a holding
// (the pending supply is left to the caller's destination)
func (l *Ledger) SpendNetworkRevenue(amount asset.Asset) error {
	if amount.Symbol != asset.CoinSymbol || amount.Amount < 0 || amount.Amount > l.revenue {
		return fmt.Errorf("%w: network revenue %d, requested %s", ErrInsufficientBalance, l.revenue, amount)
	}
	l.revenue -= amount.Amount
	return nil
}

// SetNetworkRevenue restores revenue when loading persisted state
func (l *Ledger) SetNetworkRevenue(amount int64) { l.revenue = amount }

// ============================================================================
// Queries
// ============================================================================

// GetBalance returns owner's record, or a zero record if none exists
func (l *Ledger) GetBalance(owner common.Address, symbol asset.Symbol) Balance {
	bal, ok := l.balances.Get(Balance{Owner: owner, Symbol: symbol})
	if !ok {
		return Balance{Owner: owner, Symbol: symbol}
	}
	return bal
}

// HasBalance reports whether owner has a record for symbol
func (l *Ledger) HasBalance(owner common.Address, symbol asset.Symbol) bool {
	_, ok := l.balances.Get(Balance{Owner: owner, Symbol: symbol})
	return ok
}

func (l *Ledger) GetLiquidBalance(owner common.Address, symbol asset.Symbol) asset.Asset {
	return asset.New(l.GetBalance(owner, symbol).Liquid, symbol)
}

func (l *Ledger) GetStakedBalance(owner common.Address, symbol asset.Symbol) asset.Asset {
	return asset.New(l.GetBalance(owner, symbol).Staked, symbol)
}

func (l *Ledger) GetSavingsBalance(owner common.Address, symbol asset.Symbol) asset.Asset {
	return asset.New(l.GetBalance(owner, symbol).Savings, symbol)
}

func (l *Ledger) GetRewardBalance(owner common.Address, symbol asset.Symbol) asset.Asset {
	return asset.New(l.GetBalance(owner, symbol).Reward, symbol)
}

func (l *Ledger) GetDelegatedBalance(owner common.Address, symbol asset.Symbol) asset.Asset {
	return asset.New(l.GetBalance(owner, symbol).Delegated, symbol)
}

func (l *Ledger) GetReceivingBalance(owner common.Address, symbol asset.Symbol) asset.Asset {
	return asset.New(l.GetBalance(owner, symbol).Receiving, symbol)
}

// BalancesOf returns every record of owner ordered by symbol
func (l *Ledger) BalancesOf(owner common.Address) []Balance {
	var out []Balance
	l.balances.Ascend(Balance{Owner: owner}, func(b Balance) bool {
		if b.Owner != owner {
			return false
		}
		out = append(out, b)
		return true
	})
	return out
}

// BalancesBySymbol visits every record of symbol ordered by owner
func (l *Ledger) BalancesBySymbol(symbol asset.Symbol, iter func(Balance) bool) {
	l.balances.Index(bySymbol).Ascend(Balance{Symbol: symbol}, func(b Balance) bool {
		if b.Symbol != symbol {
			return false
		}
		return iter(b)
	})
}

// ScanBalances visits every record
func (l *Ledger) ScanBalances(iter func(Balance) bool) { l.balances.Scan(iter) }

// ============================================================================
// Profiles
// ============================================================================

func (l *Ledger) GetProfile(owner common.Address) Profile {
	p, ok := l.profiles.Get(Profile{Owner: owner})
	if !ok {
		return Profile{Owner: owner}
	}
	return p
}

// SetProfile stores a profile; an all-zero profile is removed
func (l *Ledger) SetProfile(p Profile) error {
	if p.LoanDefaultBalance < 0 {
		return fmt.Errorf("negative loan default balance for %s", p.Owner.Hex())
	}
	if p.LoanDefaultBalance == 0 && p.CreditInterestCarry == [3]int64{} {
		l.profiles.Remove(p)
		return nil
	}
	return l.profiles.Upsert(p)
}

func (l *Ledger) ScanProfiles(iter func(Profile) bool) { l.profiles.Scan(iter) }

// ============================================================================
// Scheduled movements
// ============================================================================

func (l *Ledger) GetUnstake(owner common.Address, symbol asset.Symbol) (UnstakeRequest, bool) {
	return l.unstakes.Get(UnstakeRequest{Owner: owner, Symbol: symbol})
}

// PutUnstake stores a request; a request with nothing remaining is removed
func (l *Ledger) PutUnstake(r UnstakeRequest) error {
	if r.Remaining <= 0 {
		l.unstakes.Remove(r)
		return nil
	}
	return l.unstakes.Upsert(r)
}

// DueUnstakes returns requests whose next payment is at or before now
func (l *Ledger) DueUnstakes(now int64) []UnstakeRequest {
	return l.unstakes.Index(byNextTime).Collect(UnstakeRequest{}, func(r UnstakeRequest) bool {
		return r.NextTime <= now
	})
}

func (l *Ledger) ScanUnstakes(iter func(UnstakeRequest) bool) { l.unstakes.Scan(iter) }

func (l *Ledger) InsertSavingsWithdraw(w SavingsWithdraw) error {
	if strings.TrimSpace(w.RequestID) == "" {
		return fmt.Errorf("savings withdraw: empty request id")
	}
	return l.withdraws.Insert(w)
}

func (l *Ledger) GetSavingsWithdraw(from common.Address, requestID string) (SavingsWithdraw, bool) {
	return l.withdraws.Get(SavingsWithdraw{From: from, RequestID: requestID})
}

func (l *Ledger) RemoveSavingsWithdraw(w SavingsWithdraw) { l.withdraws.Remove(w) }

// DueSavingsWithdraws returns withdrawals completing at or before now
func (l *Ledger) DueSavingsWithdraws(now int64) []SavingsWithdraw {
	return l.withdraws.Index(byComplete).Collect(SavingsWithdraw{}, func(w SavingsWithdraw) bool {
		return w.Complete <= now
	})
}

func (l *Ledger) ScanSavingsWithdraws(iter func(SavingsWithdraw) bool) { l.withdraws.Scan(iter) }

func (l *Ledger) GetRecurringTransfer(from, to common.Address, symbol asset.Symbol) (RecurringTransfer, bool) {
	return l.recurring.Get(RecurringTransfer{From: from, To: to, Amount: asset.Zero(symbol)})
}

// PutRecurringTransfer stores a transfer; one with no payments left is removed
func (l *Ledger) PutRecurringTransfer(r RecurringTransfer) error {
	if r.RemainingPayments <= 0 {
		l.recurring.Remove(r)
		return nil
	}
	return l.recurring.Upsert(r)
}

func (l *Ledger) RemoveRecurringTransfer(r RecurringTransfer) { l.recurring.Remove(r) }

// DueRecurringTransfers returns transfers due at or before now
func (l *Ledger) DueRecurringTransfers(now int64) []RecurringTransfer {
	return l.recurring.Index(byNextTime).Collect(RecurringTransfer{}, func(r RecurringTransfer) bool {
		return r.NextTime <= now
	})
}

func (l *Ledger) ScanRecurringTransfers(iter func(RecurringTransfer) bool) { l.recurring.Scan(iter) }

// ============================================================================
// Restore (used when loading persisted state)
// ============================================================================

// RestoreBalance writes a persisted record without touching supply counters
func (l *Ledger) RestoreBalance(b Balance) error { return l.balances.Upsert(b) }

// RestoreSupply writes persisted supply counters
func (l *Ledger) RestoreSupply(d DynamicData) error { return l.supply.Upsert(d) }
