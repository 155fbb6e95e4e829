package account

// LedgerDump is every ledger table in primary key order
type LedgerDump struct {
	Balances  []Balance           `json:"balances"`
	Supplies  []DynamicData       `json:"supplies"`
	Profiles  []Profile           `json:"profiles"`
	Unstakes  []UnstakeRequest    `json:"unstakes"`
	Withdraws []SavingsWithdraw   `json:"savings_withdraws"`
	Recurring []RecurringTransfer `json:"recurring_transfers"`
	Revenue   int64               `json:"revenue"`
}

// Dump exports the ledger
func (l *Ledger) Dump() LedgerDump {
	return LedgerDump{
		Balances:  l.balances.Items(),
		Supplies:  l.supply.Items(),
		Profiles:  l.profiles.Items(),
		Unstakes:  l.unstakes.Items(),
		Withdraws: l.withdraws.Items(),
		Recurring: l.recurring.Items(),
		Revenue:   l.revenue,
	}
}

// LoadLedger rebuilds a ledger from a dump
func LoadLedger(d LedgerDump) (*Ledger, error) {
	l := NewLedger()
	if err := l.balances.Load(d.Balances); err != nil {
		return nil, err
	}
	if err := l.supply.Load(d.Supplies); err != nil {
		return nil, err
	}
	if err := l.profiles.Load(d.Profiles); err != nil {
		return nil, err
	}
	if err := l.unstakes.Load(d.Unstakes); err != nil {
		return nil, err
	}
	if err := l.withdraws.Load(d.Withdraws); err != nil {
		return nil, err
	}
	if err := l.recurring.Load(d.Recurring); err != nil {
		return nil, err
	}
	l.revenue = d.Revenue
	return l, nil
}
