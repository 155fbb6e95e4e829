package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/table"
)

const (
	byPair    = "by_pair"
	byLiquid  = "by_liquid_symbol"
	byBase    = "by_base"
	byCredit  = "by_credit_symbol"
	byAccount = "by_account"
	byDebt    = "by_debt"
)

// Store holds every pool, collateral deposit and loan
type Store struct {
	liquidity  *table.Table[LiquidityPool]
	credit     *table.Table[CreditPool]
	collateral *table.Table[CreditCollateral]
	loans      *table.Table[CreditLoan]
}

// NewStore creates an empty pool store
func NewStore() *Store {
	s := &Store{
		liquidity: table.New("liquidity_pool", func(a, b LiquidityPool) bool { return a.ID < b.ID }),
		credit:    table.New("credit_pool", func(a, b CreditPool) bool { return a.ID < b.ID }),
		collateral: table.New("credit_collateral", func(a, b CreditCollateral) bool {
			if c := account.CompareAddress(a.Owner, b.Owner); c != 0 {
				return c < 0
			}
			return a.Symbol < b.Symbol
		}),
		loans: table.New("credit_loan", func(a, b CreditLoan) bool { return a.ID < b.ID }),
	}
	s.liquidity.AddIndex(byPair, func(a, b LiquidityPool) bool {
		if a.SymbolA != b.SymbolA {
			return a.SymbolA < b.SymbolA
		}
		return a.SymbolB < b.SymbolB
	}, table.Unique[LiquidityPool]())
	s.liquidity.AddIndex(byLiquid, func(a, b LiquidityPool) bool {
		return a.SymbolLiquid < b.SymbolLiquid
	}, table.Unique[LiquidityPool]())
	s.credit.AddIndex(byBase, func(a, b CreditPool) bool {
		return a.BaseSymbol < b.BaseSymbol
	}, table.Unique[CreditPool]())
	s.credit.AddIndex(byCredit, func(a, b CreditPool) bool {
		return a.CreditSymbol < b.CreditSymbol
	}, table.Unique[CreditPool]())
	s.loans.AddIndex(byAccount, func(a, b CreditLoan) bool {
		if c := account.CompareAddress(a.Owner, b.Owner); c != 0 {
			return c < 0
		}
		return a.LoanID < b.LoanID
	}, table.Unique[CreditLoan]())
	s.loans.AddIndex(byDebt, func(a, b CreditLoan) bool {
		if a.Debt.Symbol != b.Debt.Symbol {
			return a.Debt.Symbol < b.Debt.Symbol
		}
		return a.ID < b.ID
	})
	return s
}

// Copy returns a copy-on-write snapshot
func (s *Store) Copy() *Store {
	return &Store{
		liquidity:  s.liquidity.Copy(),
		credit:     s.credit.Copy(),
		collateral: s.collateral.Copy(),
		loans:      s.loans.Copy(),
	}
}

// ============================================================================
// Liquidity pools
// ============================================================================

func (s *Store) InsertLiquidity(p LiquidityPool) error {
	if err := s.liquidity.Insert(p); err != nil {
		return fmt.Errorf("%w: %s", ErrPoolExists, p.Name())
	}
	return nil
}

func (s *Store) UpdateLiquidity(p LiquidityPool) error { return s.liquidity.Update(p) }

func (s *Store) RemoveLiquidity(id uint64) (LiquidityPool, bool) {
	return s.liquidity.Remove(LiquidityPool{ID: id})
}

// Liquidity finds the pool trading a and b (in any order)
func (s *Store) Liquidity(a, b asset.Symbol) (LiquidityPool, bool) {
	a, b = SortPair(a, b)
	return s.liquidity.Index(byPair).Get(LiquidityPool{SymbolA: a, SymbolB: b})
}

// LiquidityByShare finds a pool by its share token
func (s *Store) LiquidityByShare(symbol asset.Symbol) (LiquidityPool, bool) {
	return s.liquidity.Index(byLiquid).Get(LiquidityPool{SymbolLiquid: symbol})
}

func (s *Store) LiquidityPools() []LiquidityPool { return s.liquidity.Items() }

// ============================================================================
// Credit pools
// ============================================================================

func (s *Store) InsertCredit(p CreditPool) error {
	if err := s.credit.Insert(p); err != nil {
		return fmt.Errorf("%w: credit %s", ErrPoolExists, p.BaseSymbol)
	}
	return nil
}

func (s *Store) UpdateCredit(p CreditPool) error { return s.credit.Update(p) }

// Credit finds the credit pool lending base
func (s *Store) Credit(base asset.Symbol) (CreditPool, bool) {
	return s.credit.Index(byBase).Get(CreditPool{BaseSymbol: base})
}

// CreditByShare finds a credit pool by its share token
func (s *Store) CreditByShare(symbol asset.Symbol) (CreditPool, bool) {
	return s.credit.Index(byCredit).Get(CreditPool{CreditSymbol: symbol})
}

func (s *Store) CreditPools() []CreditPool { return s.credit.Items() }

// ============================================================================
// Collateral and loans
// ============================================================================

// Collateral returns an owner's deposit, zero if none
func (s *Store) Collateral(owner common.Address, symbol asset.Symbol) CreditCollateral {
	c, ok := s.collateral.Get(CreditCollateral{Owner: owner, Symbol: symbol})
	if !ok {
		return CreditCollateral{Owner: owner, Symbol: symbol}
	}
	return c
}

// SetCollateral stores a deposit; a zero deposit is removed
func (s *Store) SetCollateral(c CreditCollateral) error {
	if c.Collateral < 0 {
		return fmt.Errorf("%w: negative collateral %d %s", ErrInvalidAmount, c.Collateral, c.Symbol)
	}
	if c.Collateral == 0 {
		s.collateral.Remove(c)
		return nil
	}
	return s.collateral.Upsert(c)
}

func (s *Store) ScanCollateral(iter func(CreditCollateral) bool) { s.collateral.Scan(iter) }

func (s *Store) InsertLoan(l CreditLoan) error        { return s.loans.Insert(l) }
func (s *Store) UpdateLoan(l CreditLoan) error        { return s.loans.Update(l) }
func (s *Store) GetLoan(id uint64) (CreditLoan, bool) { return s.loans.Get(CreditLoan{ID: id}) }
func (s *Store) RemoveLoan(id uint64) (CreditLoan, bool) {
	return s.loans.Remove(CreditLoan{ID: id})
}

// LoanByAccount finds an owner's loan by its caller-chosen id
func (s *Store) LoanByAccount(owner common.Address, loanID string) (CreditLoan, bool) {
	return s.loans.Index(byAccount).Get(CreditLoan{Owner: owner, LoanID: loanID})
}

// LoanIDs returns every loan id grouped by debt symbol
func (s *Store) LoanIDs() []uint64 {
	var ids []uint64
	s.loans.Index(byDebt).Scan(func(l CreditLoan) bool {
		ids = append(ids, l.ID)
		return true
	})
	return ids
}

func (s *Store) ScanLoans(iter func(CreditLoan) bool) { s.loans.Scan(iter) }
