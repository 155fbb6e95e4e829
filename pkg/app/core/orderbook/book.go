package orderbook

import (
	"cmp"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/table"
)

// Index names
const (
	byPrice         = "by_price"
	byAccount       = "by_account"
	byExpiration    = "by_expiration"
	byGroup         = "by_group"
	byCollateral    = "by_collateral"
	byPair          = "by_pair"
	byOptionSymbol  = "by_option_symbol"
	bySettlement    = "by_settlement_date"
	byDebtSymbol    = "by_debt_symbol"
	byRatio         = "by_ratio"
	byBidderAccount = "by_bidder"
)

// Book holds every resting order.
//
// Price indexes sort by pair ascending, then price descending (the order
// most generous to a taker first), then ID so older orders fill first.
type Book struct {
	limits      *table.Table[LimitOrder]
	margins     *table.Table[MarginOrder]
	calls       *table.Table[CallOrder]
	auctions    *table.Table[AuctionOrder]
	options     *table.Table[OptionOrder]
	settlements *table.Table[SettlementOrder]
	bids        *table.Table[CollateralBid]
}

// comparePrice orders pairs ascending and prices of one pair descending
func comparePrice(a, b asset.Price) int {
	if c := cmp.Compare(a.Base.Symbol, b.Base.Symbol); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Quote.Symbol, b.Quote.Symbol); c != 0 {
		return c
	}
	return -a.Cmp(b)
}

func lessID(a, b uint64) bool { return a < b }

// NewBook creates an empty book
func NewBook() *Book {
	b := &Book{
		limits:      table.New("limit_order", func(x, y LimitOrder) bool { return lessID(x.ID, y.ID) }),
		margins:     table.New("margin_order", func(x, y MarginOrder) bool { return lessID(x.ID, y.ID) }),
		calls:       table.New("call_order", func(x, y CallOrder) bool { return lessID(x.ID, y.ID) }),
		auctions:    table.New("auction_order", func(x, y AuctionOrder) bool { return lessID(x.ID, y.ID) }),
		options:     table.New("option_order", func(x, y OptionOrder) bool { return lessID(x.ID, y.ID) }),
		settlements: table.New("settlement_order", func(x, y SettlementOrder) bool { return lessID(x.ID, y.ID) }),
		bids:        table.New("collateral_bid", func(x, y CollateralBid) bool { return lessID(x.ID, y.ID) }),
	}

	b.limits.AddIndex(byPrice, func(x, y LimitOrder) bool {
		if c := comparePrice(x.SellPrice, y.SellPrice); c != 0 {
			return c < 0
		}
		return x.ID < y.ID
	})
	b.limits.AddIndex(byAccount, func(x, y LimitOrder) bool {
		if c := account.CompareAddress(x.Owner, y.Owner); c != 0 {
			return c < 0
		}
		return x.OrderID < y.OrderID
	}, table.Unique[LimitOrder]())
	b.limits.AddIndex(byExpiration, func(x, y LimitOrder) bool {
		if x.Expiration != y.Expiration {
			return x.Expiration < y.Expiration
		}
		return x.ID < y.ID
	})

	// only margin orders with something for sale rest on the book
	b.margins.AddIndex(byPrice, func(x, y MarginOrder) bool {
		if c := comparePrice(x.SellPrice, y.SellPrice); c != 0 {
			return c < 0
		}
		return x.ID < y.ID
	}, table.Where(func(o MarginOrder) bool { return o.AmountForSale().IsPositive() }))
	b.margins.AddIndex(byAccount, func(x, y MarginOrder) bool {
		if c := account.CompareAddress(x.Owner, y.Owner); c != 0 {
			return c < 0
		}
		return x.OrderID < y.OrderID
	}, table.Unique[MarginOrder]())
	b.margins.AddIndex(byGroup, func(x, y MarginOrder) bool {
		if x.DebtSymbol() != y.DebtSymbol() {
			return x.DebtSymbol() < y.DebtSymbol()
		}
		if x.CollateralSymbol() != y.CollateralSymbol() {
			return x.CollateralSymbol() < y.CollateralSymbol()
		}
		if x.PositionSymbol() != y.PositionSymbol() {
			return x.PositionSymbol() < y.PositionSymbol()
		}
		return x.ID < y.ID
	})
	b.margins.AddIndex(byExpiration, func(x, y MarginOrder) bool {
		if x.Expiration != y.Expiration {
			return x.Expiration < y.Expiration
		}
		return x.ID < y.ID
	})

	b.calls.AddIndex(byCollateral, func(x, y CallOrder) bool {
		if x.Debt.Symbol != y.Debt.Symbol {
			return x.Debt.Symbol < y.Debt.Symbol
		}
		if x.Collateral.Symbol != y.Collateral.Symbol {
			return x.Collateral.Symbol < y.Collateral.Symbol
		}
		if c := x.Collateralization().Cmp(y.Collateralization()); c != 0 {
			return c < 0
		}
		return x.ID < y.ID
	})
	b.calls.AddIndex(byAccount, func(x, y CallOrder) bool {
		if c := account.CompareAddress(x.Borrower, y.Borrower); c != 0 {
			return c < 0
		}
		return x.Debt.Symbol < y.Debt.Symbol
	}, table.Unique[CallOrder]())

	b.auctions.AddIndex(byPair, func(x, y AuctionOrder) bool {
		if x.ForSale.Symbol != y.ForSale.Symbol {
			return x.ForSale.Symbol < y.ForSale.Symbol
		}
		if x.ReceiveSymbol() != y.ReceiveSymbol() {
			return x.ReceiveSymbol() < y.ReceiveSymbol()
		}
		return x.ID < y.ID
	})
	b.auctions.AddIndex(byAccount, func(x, y AuctionOrder) bool {
		if c := account.CompareAddress(x.Owner, y.Owner); c != 0 {
			return c < 0
		}
		return x.OrderID < y.OrderID
	}, table.Unique[AuctionOrder]())
	b.auctions.AddIndex(byExpiration, func(x, y AuctionOrder) bool {
		if x.Expiration != y.Expiration {
			return x.Expiration < y.Expiration
		}
		return x.ID < y.ID
	})

	b.options.AddIndex(byOptionSymbol, func(x, y OptionOrder) bool {
		if x.OptionSymbol != y.OptionSymbol {
			return x.OptionSymbol < y.OptionSymbol
		}
		return x.ID < y.ID
	})
	b.options.AddIndex(byAccount, func(x, y OptionOrder) bool {
		if c := account.CompareAddress(x.Owner, y.Owner); c != 0 {
			return c < 0
		}
		return x.OrderID < y.OrderID
	}, table.Unique[OptionOrder]())
	b.options.AddIndex(byExpiration, func(x, y OptionOrder) bool {
		if x.Expiration != y.Expiration {
			return x.Expiration < y.Expiration
		}
		return x.ID < y.ID
	})

	b.settlements.AddIndex(bySettlement, func(x, y SettlementOrder) bool {
		if x.SettlementDate != y.SettlementDate {
			return x.SettlementDate < y.SettlementDate
		}
		return x.ID < y.ID
	})
	b.settlements.AddIndex(byDebtSymbol, func(x, y SettlementOrder) bool {
		if x.Balance.Symbol != y.Balance.Symbol {
			return x.Balance.Symbol < y.Balance.Symbol
		}
		return x.ID < y.ID
	})

	b.bids.AddIndex(byRatio, func(x, y CollateralBid) bool {
		if x.DebtCovered.Symbol != y.DebtCovered.Symbol {
			return x.DebtCovered.Symbol < y.DebtCovered.Symbol
		}
		if c := comparePrice(x.Ratio(), y.Ratio()); c != 0 {
			return c < 0
		}
		return x.ID < y.ID
	})
	b.bids.AddIndex(byBidderAccount, func(x, y CollateralBid) bool {
		if c := account.CompareAddress(x.Bidder, y.Bidder); c != 0 {
			return c < 0
		}
		return x.DebtCovered.Symbol < y.DebtCovered.Symbol
	}, table.Unique[CollateralBid]())
	return b
}

// Copy returns a copy-on-write snapshot
func (b *Book) Copy() *Book {
	return &Book{
		limits:      b.limits.Copy(),
		margins:     b.margins.Copy(),
		calls:       b.calls.Copy(),
		auctions:    b.auctions.Copy(),
		options:     b.options.Copy(),
		settlements: b.settlements.Copy(),
		bids:        b.bids.Copy(),
	}
}

// ============================================================================
// Limit orders
// ============================================================================

func (b *Book) InsertLimit(o LimitOrder) error {
	if err := o.SellPrice.Validate(); err != nil {
		return fmt.Errorf("limit order %d: %w", o.ID, err)
	}
	return b.limits.Insert(o)
}

func (b *Book) GetLimit(id uint64) (LimitOrder, bool) { return b.limits.Get(LimitOrder{ID: id}) }
func (b *Book) UpdateLimit(o LimitOrder) error        { return b.limits.Update(o) }
func (b *Book) RemoveLimit(id uint64) (LimitOrder, bool) {
	return b.limits.Remove(LimitOrder{ID: id})
}

// LimitByAccount finds an owner's order by its caller-chosen id
func (b *Book) LimitByAccount(owner common.Address, orderID string) (LimitOrder, bool) {
	return b.limits.Index(byAccount).Get(LimitOrder{Owner: owner, OrderID: orderID})
}

// BestLimit returns the most generous order selling sell for receive
func (b *Book) BestLimit(sell, receive asset.Symbol) (LimitOrder, bool) {
	pivot := LimitOrder{SellPrice: asset.MaxPrice(sell, receive)}
	return b.limits.Index(byPrice).First(pivot, func(o LimitOrder) bool {
		return o.SellPrice.Base.Symbol == sell && o.SellPrice.Quote.Symbol == receive
	})
}

// LimitsByPrice visits orders selling sell for receive, best first
func (b *Book) LimitsByPrice(sell, receive asset.Symbol, iter func(LimitOrder) bool) {
	pivot := LimitOrder{SellPrice: asset.MaxPrice(sell, receive)}
	b.limits.Index(byPrice).Ascend(pivot, func(o LimitOrder) bool {
		if o.SellPrice.Base.Symbol != sell || o.SellPrice.Quote.Symbol != receive {
			return false
		}
		return iter(o)
	})
}

// ExpiredLimits returns orders whose expiration is at or before now
func (b *Book) ExpiredLimits(now int64) []LimitOrder {
	return b.limits.Index(byExpiration).Collect(LimitOrder{}, func(o LimitOrder) bool {
		return o.Expiration <= now
	})
}

func (b *Book) ScanLimits(iter func(LimitOrder) bool) { b.limits.Scan(iter) }
func (b *Book) LimitCount() int                       { return b.limits.Len() }

// ============================================================================
// Margin orders
// ============================================================================

func (b *Book) InsertMargin(o MarginOrder) error {
	if err := o.SellPrice.Validate(); err != nil {
		return fmt.Errorf("margin order %d: %w", o.ID, err)
	}
	return b.margins.Insert(o)
}

func (b *Book) GetMargin(id uint64) (MarginOrder, bool) { return b.margins.Get(MarginOrder{ID: id}) }
func (b *Book) UpdateMargin(o MarginOrder) error        { return b.margins.Update(o) }
func (b *Book) RemoveMargin(id uint64) (MarginOrder, bool) {
	return b.margins.Remove(MarginOrder{ID: id})
}

func (b *Book) MarginByAccount(owner common.Address, orderID string) (MarginOrder, bool) {
	return b.margins.Index(byAccount).Get(MarginOrder{Owner: owner, OrderID: orderID})
}

// BestMargin returns the most generous margin order selling sell for receive
func (b *Book) BestMargin(sell, receive asset.Symbol) (MarginOrder, bool) {
	pivot := MarginOrder{SellPrice: asset.MaxPrice(sell, receive)}
	return b.margins.Index(byPrice).First(pivot, func(o MarginOrder) bool {
		return o.SellPrice.Base.Symbol == sell && o.SellPrice.Quote.Symbol == receive
	})
}

// MarginIDsByGroup returns order ids grouped by (debt, collateral, position)
// symbols; the engine re-reads each order before changing it
func (b *Book) MarginIDsByGroup() []uint64 {
	var ids []uint64
	b.margins.Index(byGroup).Scan(func(o MarginOrder) bool {
		ids = append(ids, o.ID)
		return true
	})
	return ids
}

func (b *Book) ExpiredMargins(now int64) []MarginOrder {
	return b.margins.Index(byExpiration).Collect(MarginOrder{}, func(o MarginOrder) bool {
		return o.Expiration <= now
	})
}

func (b *Book) ScanMargins(iter func(MarginOrder) bool) { b.margins.Scan(iter) }
func (b *Book) MarginCount() int                        { return b.margins.Len() }

// ============================================================================
// Call orders
// ============================================================================

func (b *Book) InsertCall(o CallOrder) error           { return b.calls.Insert(o) }
func (b *Book) GetCall(id uint64) (CallOrder, bool)    { return b.calls.Get(CallOrder{ID: id}) }
func (b *Book) UpdateCall(o CallOrder) error           { return b.calls.Update(o) }
func (b *Book) RemoveCall(id uint64) (CallOrder, bool) { return b.calls.Remove(CallOrder{ID: id}) }

// CallByAccount finds a borrower's position in a stablecoin
func (b *Book) CallByAccount(borrower common.Address, debt asset.Symbol) (CallOrder, bool) {
	return b.calls.Index(byAccount).Get(CallOrder{Borrower: borrower, Debt: asset.Zero(debt)})
}

// LeastCollateralized returns the riskiest call order on a stablecoin
func (b *Book) LeastCollateralized(debt asset.Symbol) (CallOrder, bool) {
	return b.calls.Index(byCollateral).First(callPivot(debt), func(o CallOrder) bool {
		return o.Debt.Symbol == debt
	})
}

// CallsByCollateral visits call orders on debt, least collateralized first
func (b *Book) CallsByCollateral(debt asset.Symbol) []CallOrder {
	return b.calls.Index(byCollateral).Collect(callPivot(debt), func(o CallOrder) bool {
		return o.Debt.Symbol == debt
	})
}

// callPivot sorts before every call order on debt (empty collateral symbol)
func callPivot(debt asset.Symbol) CallOrder {
	return CallOrder{Debt: asset.Zero(debt)}
}

func (b *Book) ScanCalls(iter func(CallOrder) bool) { b.calls.Scan(iter) }

// ============================================================================
// Auction orders
// ============================================================================

func (b *Book) InsertAuction(o AuctionOrder) error {
	if err := o.LimitClosePrice.Validate(); err != nil {
		return fmt.Errorf("auction order %d: %w", o.ID, err)
	}
	return b.auctions.Insert(o)
}

func (b *Book) GetAuction(id uint64) (AuctionOrder, bool) {
	return b.auctions.Get(AuctionOrder{ID: id})
}
func (b *Book) UpdateAuction(o AuctionOrder) error { return b.auctions.Update(o) }
func (b *Book) RemoveAuction(id uint64) (AuctionOrder, bool) {
	return b.auctions.Remove(AuctionOrder{ID: id})
}

func (b *Book) AuctionByAccount(owner common.Address, orderID string) (AuctionOrder, bool) {
	return b.auctions.Index(byAccount).Get(AuctionOrder{Owner: owner, OrderID: orderID})
}

// AuctionsByPair returns orders selling sell for receive, oldest first
func (b *Book) AuctionsByPair(sell, receive asset.Symbol) []AuctionOrder {
	pivot := AuctionOrder{ForSale: asset.Zero(sell), LimitClosePrice: asset.Price{Quote: asset.Zero(receive)}}
	return b.auctions.Index(byPair).Collect(pivot, func(o AuctionOrder) bool {
		return o.ForSale.Symbol == sell && o.ReceiveSymbol() == receive
	})
}

func (b *Book) ExpiredAuctions(now int64) []AuctionOrder {
	return b.auctions.Index(byExpiration).Collect(AuctionOrder{}, func(o AuctionOrder) bool {
		return o.Expiration <= now
	})
}

func (b *Book) ScanAuctions(iter func(AuctionOrder) bool) { b.auctions.Scan(iter) }

// ============================================================================
// Option orders
// ============================================================================

func (b *Book) InsertOption(o OptionOrder) error { return b.options.Insert(o) }
func (b *Book) GetOption(id uint64) (OptionOrder, bool) {
	return b.options.Get(OptionOrder{ID: id})
}
func (b *Book) UpdateOption(o OptionOrder) error { return b.options.Update(o) }
func (b *Book) RemoveOption(id uint64) (OptionOrder, bool) {
	return b.options.Remove(OptionOrder{ID: id})
}

func (b *Book) OptionByAccount(owner common.Address, orderID string) (OptionOrder, bool) {
	return b.options.Index(byAccount).Get(OptionOrder{Owner: owner, OrderID: orderID})
}

// OptionsBySymbol returns every writer of an option asset, oldest first
func (b *Book) OptionsBySymbol(symbol asset.Symbol) []OptionOrder {
	return b.options.Index(byOptionSymbol).Collect(OptionOrder{OptionSymbol: symbol}, func(o OptionOrder) bool {
		return o.OptionSymbol == symbol
	})
}

func (b *Book) ExpiredOptions(now int64) []OptionOrder {
	return b.options.Index(byExpiration).Collect(OptionOrder{}, func(o OptionOrder) bool {
		return o.Expiration <= now
	})
}

func (b *Book) ScanOptions(iter func(OptionOrder) bool) { b.options.Scan(iter) }

// ============================================================================
// Settlement orders and collateral bids
// ============================================================================

func (b *Book) InsertSettlement(o SettlementOrder) error { return b.settlements.Insert(o) }
func (b *Book) GetSettlement(id uint64) (SettlementOrder, bool) {
	return b.settlements.Get(SettlementOrder{ID: id})
}
func (b *Book) UpdateSettlement(o SettlementOrder) error { return b.settlements.Update(o) }
func (b *Book) RemoveSettlement(id uint64) (SettlementOrder, bool) {
	return b.settlements.Remove(SettlementOrder{ID: id})
}

// DueSettlements returns requests whose settlement date has passed
func (b *Book) DueSettlements(now int64) []SettlementOrder {
	return b.settlements.Index(bySettlement).Collect(SettlementOrder{}, func(o SettlementOrder) bool {
		return o.SettlementDate <= now
	})
}

// SettlementsBySymbol returns every request on a stablecoin, oldest first
func (b *Book) SettlementsBySymbol(symbol asset.Symbol) []SettlementOrder {
	return b.settlements.Index(byDebtSymbol).Collect(SettlementOrder{Balance: asset.Zero(symbol)}, func(o SettlementOrder) bool {
		return o.Balance.Symbol == symbol
	})
}

func (b *Book) ScanSettlements(iter func(SettlementOrder) bool) { b.settlements.Scan(iter) }

func (b *Book) InsertBid(o CollateralBid) error {
	if !o.DebtCovered.IsPositive() || !o.AdditionalCollateral.IsPositive() {
		return fmt.Errorf("collateral bid %d: amounts must be positive", o.ID)
	}
	return b.bids.Insert(o)
}

func (b *Book) GetBid(id uint64) (CollateralBid, bool) { return b.bids.Get(CollateralBid{ID: id}) }
func (b *Book) RemoveBid(id uint64) (CollateralBid, bool) {
	return b.bids.Remove(CollateralBid{ID: id})
}

func (b *Book) BidByAccount(bidder common.Address, debt asset.Symbol) (CollateralBid, bool) {
	return b.bids.Index(byBidderAccount).Get(CollateralBid{Bidder: bidder, DebtCovered: asset.Zero(debt)})
}

// BidsByRatio returns bids on a stablecoin, highest collateral ratio first
func (b *Book) BidsByRatio(debt asset.Symbol) []CollateralBid {
	pivot := CollateralBid{DebtCovered: asset.Zero(debt)}
	return b.bids.Index(byRatio).Collect(pivot, func(o CollateralBid) bool {
		return o.DebtCovered.Symbol == debt
	})
}

func (b *Book) ScanBids(iter func(CollateralBid) bool) { b.bids.Scan(iter) }
