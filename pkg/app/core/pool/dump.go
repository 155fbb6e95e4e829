package pool

// StoreDump is every pool table in primary key order
type StoreDump struct {
	Liquidity  []LiquidityPool    `json:"liquidity_pools"`
	Credit     []CreditPool       `json:"credit_pools"`
	Collateral []CreditCollateral `json:"credit_collateral"`
	Loans      []CreditLoan       `json:"credit_loans"`
}

// Dump exports the store
func (s *Store) Dump() StoreDump {
	return StoreDump{
		Liquidity:  s.liquidity.Items(),
		Credit:     s.credit.Items(),
		Collateral: s.collateral.Items(),
		Loans:      s.loans.Items(),
	}
}

// LoadStore rebuilds a pool store from a dump
func LoadStore(d StoreDump) (*Store, error) {
	s := NewStore()
	if err := s.liquidity.Load(d.Liquidity); err != nil {
		return nil, err
	}
	if err := s.credit.Load(d.Credit); err != nil {
		return nil, err
	}
	if err := s.collateral.Load(d.Collateral); err != nil {
		return nil, err
	}
	if err := s.loans.Load(d.Loans); err != nil {
		return nil, err
	}
	return s, nil
}
