package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

// SecondsPerYear converts annual rates to elapsed time
const SecondsPerYear int64 = 365 * 24 * 60 * 60

// CreditPool lends BaseSymbol against CreditSymbol share tokens.
// Lenders deposit base and receive credit tokens; borrowers draw base.
type CreditPool struct {
	ID              uint64       `json:"id"`
	BaseSymbol      asset.Symbol `json:"base_symbol"`
	CreditSymbol    asset.Symbol `json:"credit_symbol"`
	BaseBalance     int64        `json:"base_balance"`     // Available to borrow or withdraw
	CreditBalance   int64        `json:"credit_balance"`   // Share tokens outstanding
	BorrowedBalance int64        `json:"borrowed_balance"` // Lent out, including accrued interest
	LastPrice       asset.Price  `json:"last_price"`
}

// CreditPoolSymbol names the share token of a credit pool
func CreditPoolSymbol(base asset.Symbol) asset.Symbol {
	return asset.Symbol("CREDIT." + string(base))
}

// NewCreditPool creates an empty credit pool for base
func NewCreditPool(id uint64, base asset.Symbol) CreditPool {
	p := CreditPool{
		ID:           id,
		BaseSymbol:   base,
		CreditSymbol: CreditPoolSymbol(base),
	}
	p.LastPrice = p.Price()
	return p
}

// Base returns the base balance available to borrowers
func (p CreditPool) Base() asset.Asset { return asset.New(p.BaseBalance, p.BaseSymbol) }

// Borrowed returns the outstanding loans
func (p CreditPool) Borrowed() asset.Asset { return asset.New(p.BorrowedBalance, p.BaseSymbol) }

// Price is base per credit token, 1:1 while the pool is empty.
// Formula: (base + borrowed) / credit
func (p CreditPool) Price() asset.Price {
	total := p.BaseBalance + p.BorrowedBalance
	if p.CreditBalance == 0 || total == 0 {
		return asset.UnitPrice(p.BaseSymbol, p.CreditSymbol)
	}
	return asset.NewPrice(asset.New(total, p.BaseSymbol), asset.New(p.CreditBalance, p.CreditSymbol))
}

// LendShares returns the credit tokens minted for a base deposit
func (p CreditPool) LendShares(in asset.Asset) (asset.Asset, error) {
	if in.Symbol != p.BaseSymbol || !in.IsPositive() {
		return asset.Asset{}, fmt.Errorf("%w: lend %s to %s pool", ErrInvalidAmount, in, p.BaseSymbol)
	}
	return in.Mul(p.Price()), nil
}

// WithdrawOutput returns the base redeemed for credit tokens; the pool must
// hold enough unborrowed base
func (p CreditPool) WithdrawOutput(credit asset.Asset) (asset.Asset, error) {
	if credit.Symbol != p.CreditSymbol || !credit.IsPositive() || credit.Amount > p.CreditBalance {
		return asset.Asset{}, fmt.Errorf("%w: withdraw %s from %s pool", ErrInvalidAmount, credit, p.BaseSymbol)
	}
	out := credit.Mul(p.Price())
	if out.Amount > p.BaseBalance {
		return asset.Asset{}, &LiquidityError{Pool: string(p.CreditSymbol), Requested: out, Available: p.Base()}
	}
	return out, nil
}

// UtilizationBps is the share of the pool currently lent out.
// Formula: borrowed / (base + borrowed)
func (p CreditPool) UtilizationBps() int64 {
	total := p.BaseBalance + p.BorrowedBalance
	if total == 0 {
		return 0
	}
	return asset.New(p.BorrowedBalance, p.BaseSymbol).Scale(asset.Percent100, total).Amount
}

// InterestRate is the annual borrowing rate in bps.
// Formula: fixed + variable × utilization
func (p CreditPool) InterestRate(fixed, variable int64) int64 {
	return fixed + variable*p.UtilizationBps()/asset.Percent100
}

// Borrow moves base out to a borrower
func (p *CreditPool) Borrow(amount asset.Asset) error {
	if amount.Symbol != p.BaseSymbol || amount.IsNegative() {
		return fmt.Errorf("%w: borrow %s from %s pool", ErrInvalidAmount, amount, p.BaseSymbol)
	}
	if amount.Amount > p.BaseBalance {
		return &LiquidityError{Pool: string(p.CreditSymbol), Requested: amount, Available: p.Base()}
	}
	p.BaseBalance -= amount.Amount
	p.BorrowedBalance += amount.Amount
	return nil
}

// Repay returns base from a borrower; repayment beyond the recorded
// borrowed balance is treated as income to lenders
func (p *CreditPool) Repay(amount asset.Asset) error {
	if amount.Symbol != p.BaseSymbol || amount.IsNegative() {
		return fmt.Errorf("%w: repay %s to %s pool", ErrInvalidAmount, amount, p.BaseSymbol)
	}
	p.BaseBalance += amount.Amount
	p.BorrowedBalance -= min(amount.Amount, p.BorrowedBalance)
	return nil
}

// Accrue adds interest to the borrowed balance, raising the credit price
func (p *CreditPool) Accrue(interest asset.Asset) {
	p.BorrowedBalance += interest.Amount
}

// AccrueInterest returns the interest owed on debt over elapsed seconds.
// Formula: debt × rate × elapsed / (10000 × year)
func AccrueInterest(debt asset.Asset, rateBps, elapsed int64) asset.Asset {
	if debt.Amount <= 0 || rateBps <= 0 || elapsed <= 0 {
		return asset.Zero(debt.Symbol)
	}
	num := new(uint256.Int).Mul(u256(debt.Amount), u256(rateBps))
	num.Mul(num, u256(elapsed))
	den := new(uint256.Int).Mul(u256(asset.Percent100), u256(SecondsPerYear))
	return asset.New(toInt64(num.Div(num, den)), debt.Symbol)
}

// AccrueInterestCarry is AccrueInterest with the division remainder kept:
// carry is added to the numerator and the new remainder is returned
func AccrueInterestCarry(amount asset.Asset, rateBps, elapsed, carry int64) (asset.Asset, int64) {
	if amount.Amount <= 0 || rateBps <= 0 || elapsed <= 0 {
		return asset.Zero(amount.Symbol), carry
	}
	num := new(uint256.Int).Mul(u256(amount.Amount), u256(rateBps))
	num.Mul(num, u256(elapsed))
	num.Add(num, u256(carry))
	den := new(uint256.Int).Mul(u256(asset.Percent100), u256(SecondsPerYear))
	rem := new(uint256.Int).Mod(num, den)
	return asset.New(toInt64(num.Div(num, den)), amount.Symbol), int64(rem.Uint64())
}

// CreditCollateral is an owner's collateral deposit backing credit loans
type CreditCollateral struct {
	Owner      common.Address `json:"owner"`
	Symbol     asset.Symbol   `json:"symbol"`
	Collateral int64          `json:"collateral"`
}

func (c CreditCollateral) Amount() asset.Asset { return asset.New(c.Collateral, c.Symbol) }

// CreditLoan is debt drawn from a credit pool against collateral
type CreditLoan struct {
	ID                   uint64         `json:"id"`
	Owner                common.Address `json:"owner"`
	LoanID               string         `json:"loan_id"`
	Debt                 asset.Asset    `json:"debt"`
	Interest             asset.Asset    `json:"interest"`
	Collateral           asset.Asset    `json:"collateral"`
	InterestRate         int64          `json:"interest_rate"`
	LastInterestTime     int64          `json:"last_interest_time"`
	CollateralizationBps int64          `json:"collateralization"`
	Created              int64          `json:"created"`
}
