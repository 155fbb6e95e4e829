package engine

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/orderbook"
	"github.com/uhyunpark/hypercredit/pkg/app/core/pool"
)

// AuditSupply recomputes every supply counter from the objects holding the
// asset and compares it with the ledger. Balances feed the bucket counters;
// orders, pools, loans, deposits, withdrawals, settlement funds and network
// revenue feed the pending counter.
func (e *Engine) AuditSupply() error {
	got := make(map[asset.Symbol]*account.DynamicData)
	at := func(sym asset.Symbol) *account.DynamicData {
		d, ok := got[sym]
		if !ok {
			d = &account.DynamicData{Symbol: sym}
			got[sym] = d
		}
		return d
	}
	hold := func(amounts ...asset.Asset) {
		for _, a := range amounts {
			if !a.IsZero() {
				at(a.Symbol).PendingSupply += a.Amount
			}
		}
	}

	e.st.Ledger.ScanBalances(func(b account.Balance) bool {
		d := at(b.Symbol)
		d.LiquidSupply += b.Liquid
		d.StakedSupply += b.Staked
		d.SavingsSupply += b.Savings
		d.RewardSupply += b.Reward
		d.DelegatedSupply += b.Delegated
		d.ReceivingSupply += b.Receiving
		return true
	})
	e.st.Ledger.ScanSavingsWithdraws(func(w account.SavingsWithdraw) bool {
		hold(w.Amount)
		return true
	})
	hold(e.st.Ledger.NetworkRevenue())

	e.st.Book.ScanLimits(func(o orderbook.LimitOrder) bool {
		hold(o.AmountForSale())
		return true
	})
	e.st.Book.ScanMargins(func(o orderbook.MarginOrder) bool {
		hold(o.Collateral, o.DebtBalance, o.PositionBalance)
		return true
	})
	e.st.Book.ScanCalls(func(o orderbook.CallOrder) bool {
		hold(o.Collateral)
		return true
	})
	e.st.Book.ScanAuctions(func(o orderbook.AuctionOrder) bool {
		hold(o.ForSale)
		return true
	})
	e.st.Book.ScanOptions(func(o orderbook.OptionOrder) bool {
		hold(o.Underlying)
		return true
	})
	e.st.Book.ScanSettlements(func(o orderbook.SettlementOrder) bool {
		hold(o.Balance)
		return true
	})
	e.st.Book.ScanBids(func(b orderbook.CollateralBid) bool {
		hold(b.AdditionalCollateral)
		return true
	})

	for _, p := range e.st.Pools.LiquidityPools() {
		hold(p.Balance(p.SymbolA), p.Balance(p.SymbolB))
	}
	for _, p := range e.st.Pools.CreditPools() {
		hold(asset.New(p.BaseBalance, p.BaseSymbol))
	}
	e.st.Pools.ScanCollateral(func(c pool.CreditCollateral) bool {
		hold(c.Amount())
		return true
	})
	e.st.Pools.ScanLoans(func(l pool.CreditLoan) bool {
		hold(l.Collateral)
		return true
	})
	for _, sc := range e.st.Registry.Stablecoins() {
		hold(asset.New(sc.SettlementFund, sc.BackingSymbol))
	}

	var errs []error
	for _, d := range e.st.Ledger.Supplies() {
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		want := at(d.Symbol)
		want.TotalSupply = d.TotalSupply
		want.ConfidentialSupply = d.ConfidentialSupply
		if *want != d {
			errs = append(errs, &account.SupplyError{
				Symbol: d.Symbol,
				Msg:    fmt.Sprintf("ledger %+v, recomputed %+v", d, *want),
			})
		}
		delete(got, d.Symbol)
	}
	for sym := range got {
		errs = append(errs, &account.SupplyError{Symbol: sym, Msg: "held but has no supply record"})
	}
	return errors.Join(errs...)
}
