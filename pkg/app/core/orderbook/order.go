// Package orderbook stores the resting orders of every kind the engine
// matches: limit, margin, call, auction and option orders, plus forced
// settlement requests and collateral bids on settled stablecoins.
package orderbook

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

// Kind identifies an order variant
type Kind int8

const (
	Limit Kind = iota
	Margin
	Call
	Auction
	Option
)

func (k Kind) String() string {
	switch k {
	case Limit:
		return "limit"
	case Margin:
		return "margin"
	case Call:
		return "call"
	case Auction:
		return "auction"
	case Option:
		return "option"
	default:
		return "unknown"
	}
}

// BookOrder is the view the matcher takes of any order kind.
//
// Price reads as for-sale per to-receive: AmountForSale().Mul(Price())
// is the amount the order wants back.
type BookOrder interface {
	Kind() Kind
	ObjectID() uint64
	Account() common.Address
	Price() asset.Price
	AmountForSale() asset.Asset
	AmountToReceive() asset.Asset
}

// LimitOrder sells ForSale units of SellPrice.Base for SellPrice.Quote
type LimitOrder struct {
	ID         uint64         `json:"id"`
	Owner      common.Address `json:"owner"`
	OrderID    string         `json:"order_id"`
	SellPrice  asset.Price    `json:"sell_price"`
	ForSale    int64          `json:"for_sale"`
	Created    int64          `json:"created"`
	Expiration int64          `json:"expiration"`
	Interface  common.Address `json:"interface"`
}

func (o LimitOrder) Kind() Kind                 { return Limit }
func (o LimitOrder) ObjectID() uint64           { return o.ID }
func (o LimitOrder) Account() common.Address    { return o.Owner }
func (o LimitOrder) Price() asset.Price         { return o.SellPrice }
func (o LimitOrder) AmountForSale() asset.Asset { return asset.New(o.ForSale, o.SellPrice.Base.Symbol) }

func (o LimitOrder) AmountToReceive() asset.Asset {
	return o.AmountForSale().Mul(o.SellPrice)
}

// MarginOrder is a leveraged position funded by a credit pool loan.
//
// While accumulating it sells DebtBalance for the position asset at
// SellPrice (debt/position). Once Liquidating it sells PositionBalance back
// for the debt asset at SellPrice (position/debt).
type MarginOrder struct {
	ID      uint64         `json:"id"`
	Owner   common.Address `json:"owner"`
	OrderID string         `json:"order_id"`

	SellPrice asset.Price `json:"sell_price"`

	Collateral      asset.Asset `json:"collateral"`       // Locked collateral
	Debt            asset.Asset `json:"debt"`             // Owed to the credit pool, grows with interest
	DebtBalance     asset.Asset `json:"debt_balance"`     // Borrowed debt not yet spent or repaid
	Interest        asset.Asset `json:"interest"`         // Interest accrued so far
	Position        asset.Asset `json:"position"`         // Position acquired so far
	PositionBalance asset.Asset `json:"position_balance"` // Position still held

	Liquidating bool `json:"liquidating"`

	// Trigger prices are debt/position; a null price is disabled
	StopLossPrice        asset.Price `json:"stop_loss_price"`
	TakeProfitPrice      asset.Price `json:"take_profit_price"`
	LimitStopLossPrice   asset.Price `json:"limit_stop_loss_price"`
	LimitTakeProfitPrice asset.Price `json:"limit_take_profit_price"`

	InterestRate         int64       `json:"interest_rate"` // bps per year
	LastInterestTime     int64       `json:"last_interest_time"`
	CollateralizationBps int64       `json:"collateralization"`
	UnrealizedValue      asset.Asset `json:"unrealized_value"` // In debt asset

	Created    int64          `json:"created"`
	Expiration int64          `json:"expiration"`
	Interface  common.Address `json:"interface"`
}

func (o MarginOrder) Kind() Kind              { return Margin }
func (o MarginOrder) ObjectID() uint64        { return o.ID }
func (o MarginOrder) Account() common.Address { return o.Owner }
func (o MarginOrder) Price() asset.Price      { return o.SellPrice }

func (o MarginOrder) AmountForSale() asset.Asset {
	if o.Liquidating {
		return o.PositionBalance
	}
	return o.DebtBalance
}

func (o MarginOrder) AmountToReceive() asset.Asset {
	return o.AmountForSale().Mul(o.SellPrice)
}

// DebtSymbol, PositionSymbol and CollateralSymbol name the three legs
func (o MarginOrder) DebtSymbol() asset.Symbol       { return o.Debt.Symbol }
func (o MarginOrder) PositionSymbol() asset.Symbol   { return o.PositionBalance.Symbol }
func (o MarginOrder) CollateralSymbol() asset.Symbol { return o.Collateral.Symbol }

// CallOrder is stablecoin debt backed by collateral
type CallOrder struct {
	ID         uint64         `json:"id"`
	Borrower   common.Address `json:"borrower"`
	Collateral asset.Asset    `json:"collateral"`
	Debt       asset.Asset    `json:"debt"`

	// TargetCollateralRatio (per-mille, 0 = none) limits how much debt a
	// margin call covers: only enough to restore this ratio
	TargetCollateralRatio int64 `json:"target_collateral_ratio"`

	Interface common.Address `json:"interface"`
}

func (o CallOrder) Kind() Kind                   { return Call }
func (o CallOrder) ObjectID() uint64             { return o.ID }
func (o CallOrder) Account() common.Address      { return o.Borrower }
func (o CallOrder) Price() asset.Price           { return o.Collateralization() }
func (o CallOrder) AmountForSale() asset.Asset   { return o.Collateral }
func (o CallOrder) AmountToReceive() asset.Asset { return o.Debt }

// Collateralization is collateral/debt; smaller is riskier
func (o CallOrder) Collateralization() asset.Price {
	return asset.NewPrice(o.Collateral, o.Debt)
}

// AuctionOrder waits for the single-price clearing of its market
type AuctionOrder struct {
	ID              uint64         `json:"id"`
	Owner           common.Address `json:"owner"`
	OrderID         string         `json:"order_id"`
	ForSale         asset.Asset    `json:"for_sale"`
	LimitClosePrice asset.Price    `json:"limit_close_price"` // for-sale/receive
	Created         int64          `json:"created"`
	Expiration      int64          `json:"expiration"`
	Interface       common.Address `json:"interface"`
}

func (o AuctionOrder) Kind() Kind                 { return Auction }
func (o AuctionOrder) ObjectID() uint64           { return o.ID }
func (o AuctionOrder) Account() common.Address    { return o.Owner }
func (o AuctionOrder) Price() asset.Price         { return o.LimitClosePrice }
func (o AuctionOrder) AmountForSale() asset.Asset { return o.ForSale }

func (o AuctionOrder) AmountToReceive() asset.Asset {
	return o.ForSale.Mul(o.LimitClosePrice)
}

// ReceiveSymbol is the asset the auction order buys
func (o AuctionOrder) ReceiveSymbol() asset.Symbol { return o.LimitClosePrice.Quote.Symbol }

// OptionOrder is a written option contract.
//
// A call writer locks the underlying and lets holders buy it at the
// strike; a put writer locks the strike payment and lets holders sell the
// underlying at the strike. Underlying holds whatever is locked.
type OptionOrder struct {
	ID      uint64         `json:"id"`
	Owner   common.Address `json:"owner"`
	OrderID string         `json:"order_id"`

	OptionSymbol asset.Symbol `json:"option_symbol"`
	Underlying   asset.Asset  `json:"underlying"`      // Locked amount
	Position     asset.Asset  `json:"option_position"` // Option units still outstanding from this writer
	StrikePrice  asset.Price  `json:"strike_price"`    // underlying/strike asset
	IsCall       bool         `json:"call"`

	Created    int64          `json:"created"`
	Expiration int64          `json:"expiration"`
	Interface  common.Address `json:"interface"`
}

func (o OptionOrder) Kind() Kind                 { return Option }
func (o OptionOrder) ObjectID() uint64           { return o.ID }
func (o OptionOrder) Account() common.Address    { return o.Owner }
func (o OptionOrder) Price() asset.Price         { return o.StrikePrice }
func (o OptionOrder) AmountForSale() asset.Asset { return o.Underlying }

func (o OptionOrder) AmountToReceive() asset.Asset {
	return o.Underlying.Mul(o.StrikePrice)
}

// SettlementOrder is a forced settlement request on a stablecoin
type SettlementOrder struct {
	ID             uint64         `json:"id"`
	Owner          common.Address `json:"owner"`
	Balance        asset.Asset    `json:"balance"`
	SettlementDate int64          `json:"settlement_date"`
	Interface      common.Address `json:"interface"`
}

// CollateralBid offers collateral to take over the debt of a settled
// stablecoin when it is revived
type CollateralBid struct {
	ID                   uint64         `json:"id"`
	Bidder               common.Address `json:"bidder"`
	AdditionalCollateral asset.Asset    `json:"additional_collateral"`
	DebtCovered          asset.Asset    `json:"debt_covered"`
}

// Ratio is additional collateral per covered debt; higher bids win
func (b CollateralBid) Ratio() asset.Price {
	return asset.NewPrice(b.AdditionalCollateral, b.DebtCovered)
}

var (
	_ BookOrder = LimitOrder{}
	_ BookOrder = MarginOrder{}
	_ BookOrder = CallOrder{}
	_ BookOrder = AuctionOrder{}
	_ BookOrder = OptionOrder{}
)
