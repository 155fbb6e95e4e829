package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/pool"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
)

// ============================================================================
// Lending
// ============================================================================

// CreditPoolLend deposits base into its credit pool for share tokens
func (e *Engine) CreditPoolLend(owner common.Address, in asset.Asset) error {
	if err := positive("lend", in); err != nil {
		return err
	}
	cp, ok := e.st.Pools.Credit(in.Symbol)
	if !ok {
		return fmt.Errorf("%w: credit %s", pool.ErrPoolNotFound, in.Symbol)
	}
	shares, err := cp.LendShares(in)
	if err != nil {
		return err
	}
	if shares.IsZero() {
		return fmt.Errorf("%w: %s mints no credit", pool.ErrInvalidAmount, in)
	}
	if err := e.lock(owner, in); err != nil {
		return err
	}
	cp.BaseBalance += in.Amount
	cp.CreditBalance += shares.Amount
	cp.LastPrice = cp.Price()
	if err := e.st.Pools.UpdateCredit(cp); err != nil {
		return err
	}
	if err := e.st.Ledger.Issue(owner, shares); err != nil {
		return err
	}
	e.st.Emit(state.EventCreditLend, state.PoolMovement{Account: owner, Pool: string(cp.CreditSymbol), Input: in, Output: shares})
	return nil
}

// CreditPoolWithdraw redeems share tokens for base
func (e *Engine) CreditPoolWithdraw(owner common.Address, credit asset.Asset) error {
	if err := positive("withdraw credit", credit); err != nil {
		return err
	}
	cp, ok := e.st.Pools.CreditByShare(credit.Symbol)
	if !ok {
		return fmt.Errorf("%w: credit %s", pool.ErrPoolNotFound, credit.Symbol)
	}
	out, err := cp.WithdrawOutput(credit)
	if err != nil {
		return err
	}
	if out.IsZero() {
		return fmt.Errorf("%w: %s redeems nothing", pool.ErrInvalidAmount, credit)
	}
	if err := e.st.Ledger.Burn(owner, credit); err != nil {
		return err
	}
	cp.BaseBalance -= out.Amount
	cp.CreditBalance -= credit.Amount
	cp.LastPrice = cp.Price()
	if err := e.st.Pools.UpdateCredit(cp); err != nil {
		return err
	}
	if err := e.release(owner, out); err != nil {
		return err
	}
	e.st.Emit(state.EventCreditWithdraw, state.PoolMovement{Account: owner, Pool: string(cp.CreditSymbol), Input: credit, Output: out})
	return nil
}

// repayPool returns base to its credit pool
func (e *Engine) repayPool(amount asset.Asset) error {
	if amount.IsZero() {
		return nil
	}
	cp, ok := e.st.Pools.Credit(amount.Symbol)
	if !ok {
		return fmt.Errorf("%w: credit %s", pool.ErrPoolNotFound, amount.Symbol)
	}
	if err := cp.Repay(amount); err != nil {
		return err
	}
	cp.LastPrice = cp.Price()
	return e.st.Pools.UpdateCredit(cp)
}

// ============================================================================
// Loans
// ============================================================================

// CreditCollateralUpdate sets the owner's collateral deposit of a symbol to
// target, locking or releasing the difference
func (e *Engine) CreditCollateralUpdate(owner common.Address, target asset.Asset) error {
	if target.IsNegative() {
		return invalidf("negative collateral %s", target)
	}
	obj, ok := e.st.Registry.Get(target.Symbol)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, target.Symbol)
	}
	if !obj.Type.Tradable() {
		return invalidf("%s assets cannot be collateral", obj.Type)
	}
	c := e.st.Pools.Collateral(owner, target.Symbol)
	delta := target.Sub(c.Amount())
	switch {
	case delta.IsPositive():
		if err := e.lock(owner, delta); err != nil {
			return err
		}
	case delta.IsNegative():
		if err := e.release(owner, delta.Neg()); err != nil {
			return err
		}
	default:
		return nil
	}
	c.Collateral = target.Amount
	return e.st.Pools.SetCollateral(c)
}

// CreditPoolBorrow opens, resizes or closes (debt zero) a loan drawn from
// the debt asset's credit pool. Collateral moves between the owner's
// deposit and the loan.
func (e *Engine) CreditPoolBorrow(owner common.Address, loanID string, debt, collateral asset.Asset) error {
	if debt.IsNegative() || collateral.IsNegative() {
		return invalidf("negative loan amounts")
	}
	if debt.Symbol == collateral.Symbol {
		return invalidf("loan of %s against itself", debt.Symbol)
	}
	cp, ok := e.st.Pools.Credit(debt.Symbol)
	if !ok {
		return fmt.Errorf("%w: credit %s", pool.ErrPoolNotFound, debt.Symbol)
	}
	loan, exists := e.st.Pools.LoanByAccount(owner, loanID)
	if !exists {
		if debt.IsZero() {
			return fmt.Errorf("%w: loan %s", ErrUnknownOrder, loanID)
		}
		loan = pool.CreditLoan{
			ID:               e.st.NewID(),
			Owner:            owner,
			LoanID:           loanID,
			Debt:             asset.Zero(debt.Symbol),
			Interest:         asset.Zero(debt.Symbol),
			Collateral:       asset.Zero(collateral.Symbol),
			LastInterestTime: e.now(),
			Created:          e.now(),
		}
	} else if loan.Debt.Symbol != debt.Symbol || loan.Collateral.Symbol != collateral.Symbol {
		return invalidf("loan %s is %s against %s", loanID, loan.Debt.Symbol, loan.Collateral.Symbol)
	}
	if debt.Compare(loan.Debt) > 0 && e.st.Ledger.GetProfile(owner).LoanDefaultBalance > 0 {
		return fmt.Errorf("%w: %s", ErrLoanDefault, owner.Hex())
	}
	e.accrueLoan(&loan, &cp)

	if debt.IsZero() {
		if err := e.lock(owner, loan.Debt); err != nil {
			return err
		}
		if err := cp.Repay(loan.Debt); err != nil {
			return err
		}
		cp.LastPrice = cp.Price()
		if err := e.st.Pools.UpdateCredit(cp); err != nil {
			return err
		}
		e.st.Pools.RemoveLoan(loan.ID)
		return e.depositCollateral(owner, loan.Collateral)
	}

	deposit := e.st.Pools.Collateral(owner, collateral.Symbol)
	move := collateral.Sub(loan.Collateral)
	if move.Amount > deposit.Collateral {
		return fmt.Errorf("%w: deposit %s, loan needs %s more", ErrInsufficientCollateral, deposit.Amount(), move)
	}
	deposit.Collateral -= move.Amount
	if err := e.st.Pools.SetCollateral(deposit); err != nil {
		return err
	}

	borrow := debt.Sub(loan.Debt)
	switch {
	case borrow.IsPositive():
		if err := e.riskCheck(debt, borrow, collateral, asset.Asset{}); err != nil {
			return err
		}
		if err := cp.Borrow(borrow); err != nil {
			return err
		}
		if err := e.release(owner, borrow); err != nil {
			return err
		}
	case borrow.IsNegative():
		if err := e.lock(owner, borrow.Neg()); err != nil {
			return err
		}
		if err := cp.Repay(borrow.Neg()); err != nil {
			return err
		}
	}

	bps, err := e.collateralizationBps(collateral, debt)
	if err != nil {
		return err
	}
	if (borrow.IsPositive() || move.IsNegative()) && bps < e.params.CreditOpenRatio {
		return fmt.Errorf("%w: loan %s at %d bps", ErrInsufficientCollateral, loanID, bps)
	}
	cp.LastPrice = cp.Price()
	if err := e.st.Pools.UpdateCredit(cp); err != nil {
		return err
	}

	loan.Debt = debt
	loan.Collateral = collateral
	loan.InterestRate = cp.InterestRate(e.params.CreditFixedRate, e.params.CreditVariableRate)
	loan.CollateralizationBps = bps
	if exists {
		return e.st.Pools.UpdateLoan(loan)
	}
	return e.st.Pools.InsertLoan(loan)
}

// depositCollateral adds an amount already held outside balances to the
// owner's collateral deposit
func (e *Engine) depositCollateral(owner common.Address, amount asset.Asset) error {
	if amount.IsZero() {
		return nil
	}
	c := e.st.Pools.Collateral(owner, amount.Symbol)
	c.Collateral += amount.Amount
	return e.st.Pools.SetCollateral(c)
}

// accrueLoan adds interest since the loan's last accrual. Time keeps
// accumulating while the interest rounds to zero.
func (e *Engine) accrueLoan(loan *pool.CreditLoan, cp *pool.CreditPool) {
	interest := pool.AccrueInterest(loan.Debt, loan.InterestRate, e.now()-loan.LastInterestTime)
	if !interest.IsPositive() {
		return
	}
	loan.Debt = loan.Debt.Add(interest)
	loan.Interest = loan.Interest.Add(interest)
	loan.LastInterestTime = e.now()
	cp.Accrue(interest)
}

// collateralizationBps is the value of collateral in the debt asset per
// unit of debt, in basis points
func (e *Engine) collateralizationBps(collateral, debt asset.Asset) (int64, error) {
	if !debt.IsPositive() {
		return 0, nil
	}
	value, err := e.convert(collateral, debt.Symbol)
	if err != nil {
		return 0, err
	}
	return value.Scale(asset.Percent100, debt.Amount).Amount, nil
}

// ============================================================================
// Risk checks
// ============================================================================

// CreditCheck simulates a loan at CreditCheckMultiplier times its size:
// the pools must be deep enough to buy the debt with COIN, the credit pool
// must stay under MaxCreditRatio, and the collateral must sell for at least
// that COIN cost
func (e *Engine) CreditCheck(debt, collateral asset.Asset) error {
	return e.riskCheck(debt, debt, collateral, asset.Asset{})
}

// MarginCheck is CreditCheck for a margin order whose position also backs
// the debt
func (e *Engine) MarginCheck(debt, position, collateral asset.Asset) error {
	if _, err := e.route(debt.Symbol, position.Symbol); err != nil {
		return fmt.Errorf("%w: %v", ErrCreditCheck, err)
	}
	return e.riskCheck(debt, debt, collateral, position)
}

// riskCheck prices the whole debt; only borrow, the part not yet drawn from
// the credit pool, counts against MaxCreditRatio
func (e *Engine) riskCheck(debt, borrow, collateral, position asset.Asset) error {
	m := e.params.CreditCheckMultiplier
	cp, ok := e.st.Pools.Credit(debt.Symbol)
	if !ok {
		return fmt.Errorf("%w: no credit pool for %s", ErrCreditCheck, debt.Symbol)
	}
	limit := cp.Base().Add(cp.Borrowed()).Percent(e.params.MaxCreditRatio)
	if cp.Borrowed().Add(borrow).Compare(limit) > 0 {
		return fmt.Errorf("%w: %s borrowed would exceed %s", ErrCreditCheck, cp.Borrowed().Add(borrow), limit)
	}

	cost, err := e.simInput(debt.Times(m), asset.CoinSymbol)
	if err != nil {
		return fmt.Errorf("%w: acquiring %s: %v", ErrCreditCheck, debt.Times(m), err)
	}
	value, err := e.simOutput(collateral.Times(m), asset.CoinSymbol)
	if err != nil {
		return fmt.Errorf("%w: selling %s: %v", ErrCreditCheck, collateral.Times(m), err)
	}
	if position.IsPositive() {
		pv, err := e.simOutput(position.Times(m), asset.CoinSymbol)
		if err != nil {
			return fmt.Errorf("%w: selling %s: %v", ErrCreditCheck, position.Times(m), err)
		}
		value = value.Add(pv)
	}
	if value.Less(cost) {
		return fmt.Errorf("%w: collateral worth %s, debt costs %s", ErrCreditCheck, value, cost)
	}
	return nil
}

// ============================================================================
// Loan maintenance
// ============================================================================

// ProcessCreditUpdates accrues interest on every loan, refreshes its rate
// and liquidates loans below CreditLiquidationRatio
func (e *Engine) ProcessCreditUpdates() error {
	for _, id := range e.st.Pools.LoanIDs() {
		if err := e.Apply(func() error { return e.updateLoan(id) }); err != nil {
			e.log.Warn("credit loan update failed", zap.Uint64("id", id), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) updateLoan(id uint64) error {
	loan, ok := e.st.Pools.GetLoan(id)
	if !ok {
		return nil
	}
	cp, ok := e.st.Pools.Credit(loan.Debt.Symbol)
	if !ok {
		return fmt.Errorf("%w: credit %s", pool.ErrPoolNotFound, loan.Debt.Symbol)
	}
	e.accrueLoan(&loan, &cp)
	cp.LastPrice = cp.Price()
	if err := e.st.Pools.UpdateCredit(cp); err != nil {
		return err
	}
	loan.InterestRate = cp.InterestRate(e.params.CreditFixedRate, e.params.CreditVariableRate)

	bps, err := e.collateralizationBps(loan.Collateral, loan.Debt)
	if err != nil {
		return err
	}
	loan.CollateralizationBps = bps
	if err := e.st.Pools.UpdateLoan(loan); err != nil {
		return err
	}
	if bps < e.params.CreditLiquidationRatio {
		return e.LiquidateCreditLoan(loan.ID)
	}
	return nil
}

// LiquidateCreditLoan sells a loan's collateral to repay its debt. Debt the
// collateral cannot cover is a default; what is left returns to the owner.
func (e *Engine) LiquidateCreditLoan(id uint64) error {
	loan, ok := e.st.Pools.RemoveLoan(id)
	if !ok {
		return fmt.Errorf("%w: loan %d", ErrUnknownOrder, id)
	}
	left, err := e.coverShortfall(loan.Owner, loan.Collateral, loan.Debt)
	if err != nil {
		return err
	}
	if err := e.release(loan.Owner, left); err != nil {
		return err
	}
	e.st.Emit(state.EventLoanLiquidation, state.LoanLiquidation{
		Owner:      loan.Owner,
		LoanID:     loan.LoanID,
		Debt:       loan.Debt,
		Collateral: loan.Collateral,
		Returned:   left,
	})
	e.metrics.LoanLiquidation()
	e.log.Info("credit loan liquidated",
		zap.String("owner", loan.Owner.Hex()),
		zap.String("loan", loan.LoanID),
		zap.Stringer("debt", loan.Debt),
		zap.Stringer("returned", left))
	return nil
}

// coverShortfall sells held collateral to repay debt to its credit pool.
// Whatever the collateral cannot cover defaults. Returns the collateral
// left over.
func (e *Engine) coverShortfall(owner common.Address, collateral, debt asset.Asset) (asset.Asset, error) {
	if debt.IsZero() {
		return collateral, nil
	}
	if collateral.Symbol == debt.Symbol {
		pay := asset.Min(collateral, debt)
		if err := e.repayPool(pay); err != nil {
			return asset.Asset{}, err
		}
		return collateral.Sub(pay), e.coverDefault(owner, debt.Sub(pay))
	}

	need, err := e.quoteInput(debt, collateral.Symbol)
	switch {
	case err == nil && need.LessEq(collateral):
		got, err := e.swap(owner, account.NullAccount, need, debt.Symbol)
		if err != nil {
			return asset.Asset{}, err
		}
		pay := asset.Min(got, debt)
		if err := e.repayPool(pay); err != nil {
			return asset.Asset{}, err
		}
		if err := e.release(owner, got.Sub(pay)); err != nil {
			return asset.Asset{}, err
		}
		return collateral.Sub(need), e.coverDefault(owner, debt.Sub(pay))
	case err != nil && !isNoRoute(err):
		return asset.Asset{}, err
	}

	if collateral.IsPositive() {
		got, err := e.swap(owner, account.NullAccount, collateral, debt.Symbol)
		switch {
		case err == nil:
			pay := asset.Min(got, debt)
			if err := e.repayPool(pay); err != nil {
				return asset.Asset{}, err
			}
			if err := e.release(owner, got.Sub(pay)); err != nil {
				return asset.Asset{}, err
			}
			debt = debt.Sub(pay)
			collateral = asset.Zero(collateral.Symbol)
		case !isNoRoute(err):
			return asset.Asset{}, err
		}
	}
	return collateral, e.coverDefault(owner, debt)
}

// coverDefault repays unpaid debt with newly minted network credit and
// records it against the owner. Without network credit or a route to the
// debt asset the lenders absorb the loss.
func (e *Engine) coverDefault(owner common.Address, shortfall asset.Asset) error {
	if shortfall.IsZero() {
		return nil
	}
	var issued asset.Asset
	switch {
	case !e.st.Registry.Exists(asset.CreditSymbol):
		return e.writeOff(owner, shortfall)
	case shortfall.Symbol == asset.CreditSymbol:
		issued = shortfall
		if err := e.st.Ledger.IssuePending(issued); err != nil {
			return err
		}
	default:
		need, err := e.quoteInput(shortfall, asset.CreditSymbol)
		if isNoRoute(err) {
			return e.writeOff(owner, shortfall)
		}
		if err != nil {
			return err
		}
		issued = need
		if err := e.st.Ledger.IssuePending(issued); err != nil {
			return err
		}
		got, err := e.swap(account.NullAccount, account.NullAccount, issued, shortfall.Symbol)
		if err != nil {
			return err
		}
		if got.Less(shortfall) {
			if err := e.repayPool(got); err != nil {
				return err
			}
			if err := e.writeOff(owner, shortfall.Sub(got)); err != nil {
				return err
			}
			shortfall = got
		} else if err := e.release(account.NullAccount, got.Sub(shortfall)); err != nil {
			return err
		} else if err := e.repayPool(shortfall); err != nil {
			return err
		}
	}
	if shortfall.Symbol == asset.CreditSymbol {
		if err := e.repayPool(shortfall); err != nil {
			return err
		}
	}

	profile := e.st.Ledger.GetProfile(owner)
	profile.LoanDefaultBalance += issued.Amount
	if err := e.st.Ledger.SetProfile(profile); err != nil {
		return err
	}
	e.st.Emit(state.EventLoanDefault, state.LoanDefault{
		Owner:          owner,
		Debt:           shortfall,
		CreditIssued:   issued,
		DefaultBalance: asset.New(profile.LoanDefaultBalance, asset.CreditSymbol),
	})
	e.metrics.LoanDefault()
	e.log.Warn("loan default covered with network credit",
		zap.String("owner", owner.Hex()),
		zap.Stringer("debt", shortfall),
		zap.Stringer("credit", issued))
	return nil
}

// writeOff removes unpayable debt from its credit pool's books
func (e *Engine) writeOff(owner common.Address, shortfall asset.Asset) error {
	cp, ok := e.st.Pools.Credit(shortfall.Symbol)
	if !ok {
		return fmt.Errorf("%w: credit %s", pool.ErrPoolNotFound, shortfall.Symbol)
	}
	cp.BorrowedBalance -= min(shortfall.Amount, cp.BorrowedBalance)
	cp.LastPrice = cp.Price()
	if err := e.st.Pools.UpdateCredit(cp); err != nil {
		return err
	}
	e.st.Emit(state.EventLoanDefault, state.LoanDefault{
		Owner:          owner,
		Debt:           shortfall,
		CreditIssued:   asset.Zero(asset.CreditSymbol),
		DefaultBalance: asset.New(e.st.Ledger.GetProfile(owner).LoanDefaultBalance, asset.CreditSymbol),
	})
	e.metrics.LoanDefault()
	e.log.Warn("loan default written off",
		zap.String("owner", owner.Hex()),
		zap.Stringer("debt", shortfall))
	return nil
}

// RepayLoanDefault burns network credit against the owner's default balance
func (e *Engine) RepayLoanDefault(owner common.Address, amount asset.Asset) error {
	if err := positive("repay default", amount); err != nil {
		return err
	}
	if amount.Symbol != asset.CreditSymbol {
		return invalidf("defaults are repaid in %s", asset.CreditSymbol)
	}
	profile := e.st.Ledger.GetProfile(owner)
	if amount.Amount > profile.LoanDefaultBalance {
		return invalidf("repaying %s of a %d default", amount, profile.LoanDefaultBalance)
	}
	if err := e.st.Ledger.Burn(owner, amount); err != nil {
		return err
	}
	profile.LoanDefaultBalance -= amount.Amount
	return e.st.Ledger.SetProfile(profile)
}

// ============================================================================
// Network credit
// ============================================================================

type creditBucket struct {
	field    account.Field
	fixed    int64
	variable int64
}

// ProcessCreditInterest pays network credit holders interest on their
// liquid, staked and savings balances. Each bucket's variable rate scales
// with buyback/market price, clamped to [CreditMinRate, CreditMaxRate].
func (e *Engine) ProcessCreditInterest() error {
	last := e.st.Props.LastCreditInterestTime
	e.st.Props.LastCreditInterestTime = e.now()
	if last == 0 || e.now() <= last {
		return nil
	}
	obj, ok := e.st.Registry.Get(asset.CreditSymbol)
	if !ok || obj.BuybackPrice.IsNull() {
		return nil
	}
	elapsed := e.now() - last
	market := e.creditMarketPrice(obj.BuybackPrice)

	buckets := []creditBucket{
		{account.Liquid, e.params.CreditLiquidFixed, e.params.CreditLiquidVariable},
		{account.Staked, e.params.CreditStakedFixed, e.params.CreditStakedVariable},
		{account.Savings, e.params.CreditSavingsFixed, e.params.CreditSavingsVar},
	}
	var holders []account.Balance
	e.st.Ledger.BalancesBySymbol(asset.CreditSymbol, func(b account.Balance) bool {
		if !isNull(b.Owner) {
			holders = append(holders, b)
		}
		return true
	})
	for i, bucket := range buckets {
		rate := bucket.fixed + e.creditVariableRate(bucket.variable, obj.BuybackPrice, market)
		for _, b := range holders {
			var held int64
			switch bucket.field {
			case account.Liquid:
				held = b.Liquid
			case account.Staked:
				held = b.Staked
			case account.Savings:
				held = b.Savings
			}
			profile := e.st.Ledger.GetProfile(b.Owner)
			var interest asset.Asset
			interest, profile.CreditInterestCarry[i] = pool.AccrueInterestCarry(
				asset.New(held, asset.CreditSymbol), rate, elapsed, profile.CreditInterestCarry[i])
			if err := e.st.Ledger.SetProfile(profile); err != nil {
				return err
			}
			if !interest.IsPositive() {
				continue
			}
			if err := e.st.Ledger.IssuePending(interest); err != nil {
				return err
			}
			if err := e.st.Ledger.AdjustPendingSupply(interest.Neg()); err != nil {
				return err
			}
			if err := e.st.Ledger.Adjust(b.Owner, interest, bucket.field); err != nil {
				return err
			}
			e.st.Emit(state.EventCreditInterest, state.CreditInterest{
				Owner:    b.Owner,
				Interest: interest,
				Bucket:   bucket.field.String(),
				Rate:     rate,
			})
		}
	}
	return nil
}

// creditMarketPrice is the COIN/CREDIT hour median, the current pool price
// without one, or the buyback price without a pool
func (e *Engine) creditMarketPrice(buyback asset.Price) asset.Price {
	p, ok := e.st.Pools.Liquidity(asset.CoinSymbol, asset.CreditSymbol)
	if !ok {
		return buyback
	}
	price := p.HourMedianPrice
	if price.IsNull() {
		price = p.CurrentPrice()
	}
	if price.Base.Symbol != buyback.Base.Symbol {
		price = price.Invert()
	}
	return price
}

// creditVariableRate is variable × buyback / market, clamped
func (e *Engine) creditVariableRate(variable int64, buyback, market asset.Price) int64 {
	num := new(uint256.Int).Mul(uint256.NewInt(uint64(variable)), uint256.NewInt(uint64(buyback.Base.Amount)))
	num.Mul(num, uint256.NewInt(uint64(market.Quote.Amount)))
	den := new(uint256.Int).Mul(uint256.NewInt(uint64(buyback.Quote.Amount)), uint256.NewInt(uint64(market.Base.Amount)))
	rate := e.params.CreditMaxRate
	if q := num.Div(num, den); q.IsUint64() && q.Uint64() < uint64(rate) {
		rate = int64(q.Uint64())
	}
	return max(rate, e.params.CreditMinRate)
}

// ProcessCreditBuybacks spends network revenue buying network credit from
// the COIN/CREDIT pool while it trades below the buyback price, and burns
// what it buys
func (e *Engine) ProcessCreditBuybacks() error {
	obj, ok := e.st.Registry.Get(asset.CreditSymbol)
	if !ok || obj.BuybackPrice.IsNull() {
		return nil
	}
	revenue := e.st.Ledger.NetworkRevenue()
	if !revenue.IsPositive() {
		return nil
	}
	p, ok := e.st.Pools.Liquidity(asset.CoinSymbol, asset.CreditSymbol)
	if !ok {
		return nil
	}
	net, err := p.LimitInput(asset.CoinSymbol, obj.BuybackPrice.Invert())
	if errors.Is(err, pool.ErrPriceBelowLimit) {
		return nil
	}
	if err != nil {
		return err
	}
	spend := asset.Min(revenue, e.grossInput(net))
	if spend.IsZero() {
		return nil
	}
	if err := e.st.Ledger.SpendNetworkRevenue(spend); err != nil {
		return err
	}
	bought, err := e.exchange(account.NullAccount, account.NullAccount, spend, p)
	if err != nil {
		return err
	}
	if err := e.st.Ledger.BurnPending(bought); err != nil {
		return err
	}
	e.st.Emit(state.EventCreditBuyback, state.CreditBuyback{Spent: spend, Burned: bought})
	e.log.Info("network credit buyback", zap.Stringer("spent", spend), zap.Stringer("burned", bought))
	return nil
}
