package state

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

// EventType names a virtual operation
type EventType string

const (
	EventFillOrder           EventType = "fill_order"
	EventCancelOrder         EventType = "cancel_order"
	EventLiquidityExchange   EventType = "liquidity_exchange"
	EventLiquidityFund       EventType = "liquidity_fund"
	EventLiquidityWithdraw   EventType = "liquidity_withdraw"
	EventCreditLend          EventType = "credit_lend"
	EventCreditWithdraw      EventType = "credit_withdraw"
	EventMarginClose         EventType = "margin_order_close"
	EventLoanLiquidation     EventType = "credit_loan_liquidation"
	EventLoanDefault         EventType = "loan_default"
	EventMarginCall          EventType = "margin_call"
	EventGlobalSettlement    EventType = "global_settlement"
	EventAssetSettle         EventType = "asset_settle"
	EventAssetCollateralBid  EventType = "asset_collateral_bid"
	EventExecuteBid          EventType = "execute_bid"
	EventReviveStablecoin    EventType = "revive_stablecoin"
	EventAuctionFill         EventType = "auction_fill"
	EventOptionExercise      EventType = "option_exercise"
	EventCreditInterest      EventType = "credit_interest"
	EventCreditBuyback       EventType = "credit_buyback"
	EventFillUnstake         EventType = "fill_unstake"
	EventFillSavingsWithdraw EventType = "fill_savings_withdraw"
	EventRecurringTransfer   EventType = "fill_recurring_transfer"
	EventFailedRecurring     EventType = "failed_recurring_transfer"
)

// Event is one immutable virtual operation record
type Event struct {
	Type  EventType `json:"type"`
	Block int64     `json:"block"`
	Time  int64     `json:"time"`
	Seq   int       `json:"seq"`
	Data  any       `json:"data"`
}

// FillOrder records one order-to-order fill. The pair is ordered by
// ascending object id.
type FillOrder struct {
	CurrentOwner   common.Address `json:"current_owner"`
	CurrentOrderID uint64         `json:"current_order_id"`
	CurrentPays    asset.Asset    `json:"current_pays"`
	OpenOwner      common.Address `json:"open_owner"`
	OpenOrderID    uint64         `json:"open_order_id"`
	OpenPays       asset.Asset    `json:"open_pays"`
	FillPrice      asset.Price    `json:"fill_price"`
}

// CancelOrder records an order removed without a fill
type CancelOrder struct {
	Owner    common.Address `json:"owner"`
	OrderID  uint64         `json:"order_id"`
	Kind     string         `json:"kind"`
	Refunded asset.Asset    `json:"refunded"`
	Reason   string         `json:"reason"`
}

// LiquidityExchange records one pool hop
type LiquidityExchange struct {
	Account      common.Address `json:"account"`
	Pool         string         `json:"pool"`
	Input        asset.Asset    `json:"input"`
	Output       asset.Asset    `json:"output"`
	NetworkFee   asset.Asset    `json:"network_fee"`
	PoolFee      asset.Asset    `json:"pool_fee"`
	InterfaceFee asset.Asset    `json:"interface_fee"`
}

// PoolMovement records a deposit into or withdrawal from a pool
type PoolMovement struct {
	Account common.Address `json:"account"`
	Pool    string         `json:"pool"`
	Input   asset.Asset    `json:"input"`
	Output  asset.Asset    `json:"output"`
}

// MarginClose records a closed margin order
type MarginClose struct {
	Owner      common.Address `json:"owner"`
	OrderID    string         `json:"order_id"`
	Reason     string         `json:"reason"`
	Returned   asset.Asset    `json:"returned"` // Collateral asset returned to the owner
	Shortfall  asset.Asset    `json:"shortfall"`
	Collateral asset.Asset    `json:"collateral"`
}

// LoanDefault records network credit minted to cover unpaid debt
type LoanDefault struct {
	Owner          common.Address `json:"owner"`
	Debt           asset.Asset    `json:"debt"`
	CreditIssued   asset.Asset    `json:"credit_issued"`
	DefaultBalance asset.Asset    `json:"default_balance"`
}

// LoanLiquidation records a liquidated credit loan
type LoanLiquidation struct {
	Owner      common.Address `json:"owner"`
	LoanID     string         `json:"loan_id"`
	Debt       asset.Asset    `json:"debt"`
	Collateral asset.Asset    `json:"collateral"`
	Returned   asset.Asset    `json:"returned"`
}

// MarginCall records a call order filled against the market
type MarginCall struct {
	Borrower   common.Address `json:"borrower"`
	CallID     uint64         `json:"call_id"`
	DebtPaid   asset.Asset    `json:"debt_paid"`
	Collateral asset.Asset    `json:"collateral_paid"`
	Price      asset.Price    `json:"price"`
}

// GlobalSettlement records a stablecoin frozen at a settlement price
type GlobalSettlement struct {
	Symbol          asset.Symbol `json:"symbol"`
	SettlementPrice asset.Price  `json:"settlement_price"`
	Fund            asset.Asset  `json:"fund"`
}

// AssetSettle records a redemption against collateral
type AssetSettle struct {
	Owner    common.Address `json:"owner"`
	Paid     asset.Asset    `json:"paid"`
	Received asset.Asset    `json:"received"`
}

// CollateralBidEvent records a placed, executed or cancelled bid
type CollateralBidEvent struct {
	Bidder     common.Address `json:"bidder"`
	Collateral asset.Asset    `json:"collateral"`
	Debt       asset.Asset    `json:"debt"`
}

// AuctionFill records a pair of auction orders cleared at the single price
type AuctionFill struct {
	Owner         common.Address `json:"owner"`
	OrderID       string         `json:"order_id"`
	Pays          asset.Asset    `json:"pays"`
	Receives      asset.Asset    `json:"receives"`
	ClearingPrice asset.Price    `json:"clearing_price"`
}

// OptionExercise records exercised option units
type OptionExercise struct {
	Holder   common.Address `json:"holder"`
	Writer   common.Address `json:"writer"`
	Units    asset.Asset    `json:"units"`
	Paid     asset.Asset    `json:"paid"`
	Received asset.Asset    `json:"received"`
}

// CreditInterest records network credit interest paid to a holder
type CreditInterest struct {
	Owner    common.Address `json:"owner"`
	Interest asset.Asset    `json:"interest"`
	Bucket   string         `json:"bucket"`
	Rate     int64          `json:"rate"`
}

// CreditBuyback records network revenue spent on burning network credit
type CreditBuyback struct {
	Spent  asset.Asset `json:"spent"`
	Burned asset.Asset `json:"burned"`
}

// Transfer records a scheduled movement paid out
type Transfer struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount asset.Asset    `json:"amount"`
	Memo   string         `json:"memo,omitempty"`
}
