package orderbook

// BookDump is every order table in id order
type BookDump struct {
	Limits      []LimitOrder      `json:"limits"`
	Margins     []MarginOrder     `json:"margins"`
	Calls       []CallOrder       `json:"calls"`
	Auctions    []AuctionOrder    `json:"auctions"`
	Options     []OptionOrder     `json:"options"`
	Settlements []SettlementOrder `json:"settlements"`
	Bids        []CollateralBid   `json:"bids"`
}

// Dump exports the book
func (b *Book) Dump() BookDump {
	return BookDump{
		Limits:      b.limits.Items(),
		Margins:     b.margins.Items(),
		Calls:       b.calls.Items(),
		Auctions:    b.auctions.Items(),
		Options:     b.options.Items(),
		Settlements: b.settlements.Items(),
		Bids:        b.bids.Items(),
	}
}

// LoadBook rebuilds a book from a dump, re-deriving every index
func LoadBook(d BookDump) (*Book, error) {
	b := NewBook()
	loads := []func() error{
		func() error { return b.limits.Load(d.Limits) },
		func() error { return b.margins.Load(d.Margins) },
		func() error { return b.calls.Load(d.Calls) },
		func() error { return b.auctions.Load(d.Auctions) },
		func() error { return b.options.Load(d.Options) },
		func() error { return b.settlements.Load(d.Settlements) },
		func() error { return b.bids.Load(d.Bids) },
	}
	for _, load := range loads {
		if err := load(); err != nil {
			return nil, err
		}
	}
	return b, nil
}
