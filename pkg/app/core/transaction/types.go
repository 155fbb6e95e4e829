// Package transaction is the JSON envelope for ledger operations: one
// typed payload per engine entry point. Sender is taken as authenticated.
package transaction

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/market"
)

// TxType names an operation
type TxType string

const (
	// Assets and balances
	TxCreateAsset       TxType = "create_asset"
	TxIssue             TxType = "issue"
	TxBurn              TxType = "burn"
	TxTransfer          TxType = "transfer"
	TxTransferToSavings TxType = "transfer_to_savings"
	TxSavingsWithdraw   TxType = "transfer_from_savings"
	TxCancelWithdraw    TxType = "cancel_transfer_from_savings"
	TxStake             TxType = "stake"
	TxUnstake           TxType = "unstake"
	TxDelegate          TxType = "delegate"
	TxUndelegate        TxType = "undelegate"
	TxClaimReward       TxType = "claim_reward"
	TxRecurringTransfer TxType = "recurring_transfer"

	// Stablecoins
	TxPublishFeed     TxType = "publish_feed"
	TxCallOrderUpdate TxType = "call_order_update"
	TxAssetSettle     TxType = "asset_settle"
	TxBidCollateral   TxType = "bid_collateral"

	// Pools and credit
	TxPoolCreate     TxType = "liquidity_pool_create"
	TxPoolFund       TxType = "liquidity_fund"
	TxPoolWithdraw   TxType = "liquidity_withdraw"
	TxPoolExchange   TxType = "liquidity_exchange"
	TxPoolAcquire    TxType = "liquidity_acquire"
	TxPoolLimit      TxType = "liquidity_limit_exchange"
	TxCreditLend     TxType = "credit_lend"
	TxCreditWithdraw TxType = "credit_withdraw"
	TxCreditDeposit  TxType = "credit_collateral"
	TxCreditBorrow   TxType = "credit_borrow"
	TxRepayDefault   TxType = "repay_loan_default"
	TxExerciseOption TxType = "exercise_option"

	// Orders
	TxLimitOrder   TxType = "limit_order"
	TxMarginOrder  TxType = "margin_order"
	TxAuctionOrder TxType = "auction_order"
	TxOptionOrder  TxType = "option_order"

	// Cancels
	TxCancelLimit   TxType = "cancel_limit_order"
	TxCancelMargin  TxType = "cancel_margin_order"
	TxCancelAuction TxType = "cancel_auction_order"
	TxCancelOption  TxType = "cancel_option_order"
)

// Category is the proposal bucket of an operation
type Category int

const (
	NonOrder Category = iota
	Cancel
	Order
)

var categories = map[TxType]Category{
	TxLimitOrder:     Order,
	TxMarginOrder:    Order,
	TxAuctionOrder:   Order,
	TxOptionOrder:    Order,
	TxPoolExchange:   Order,
	TxPoolAcquire:    Order,
	TxPoolLimit:      Order,
	TxCancelLimit:    Cancel,
	TxCancelMargin:   Cancel,
	TxCancelAuction:  Cancel,
	TxCancelOption:   Cancel,
	TxCancelWithdraw: Cancel,
}

var known = map[TxType]bool{
	TxCreateAsset: true, TxIssue: true, TxBurn: true, TxTransfer: true,
	TxTransferToSavings: true, TxSavingsWithdraw: true, TxCancelWithdraw: true,
	TxStake: true, TxUnstake: true, TxDelegate: true, TxUndelegate: true,
	TxClaimReward: true, TxRecurringTransfer: true,
	TxPublishFeed: true, TxCallOrderUpdate: true, TxAssetSettle: true, TxBidCollateral: true,
	TxPoolCreate: true, TxPoolFund: true, TxPoolWithdraw: true, TxPoolExchange: true,
	TxPoolAcquire: true, TxPoolLimit: true,
	TxCreditLend: true, TxCreditWithdraw: true, TxCreditDeposit: true, TxCreditBorrow: true,
	TxRepayDefault: true, TxExerciseOption: true,
	TxLimitOrder: true, TxMarginOrder: true, TxAuctionOrder: true, TxOptionOrder: true,
	TxCancelLimit: true, TxCancelMargin: true, TxCancelAuction: true, TxCancelOption: true,
}

// Category returns the proposal bucket of t; unknown types are orders
func (t TxType) Category() Category {
	if c, ok := categories[t]; ok {
		return c
	}
	if known[t] {
		return NonOrder
	}
	return Order
}

// Transaction is one operation by Sender
type Transaction struct {
	Type    TxType          `json:"type"`
	Sender  common.Address  `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

// New wraps a payload in an envelope
func New(typ TxType, sender common.Address, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return &Transaction{Type: typ, Sender: sender, Payload: raw}, nil
}

// Serialize converts the transaction to JSON bytes
func (tx *Transaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Validate checks the envelope; payloads are checked by the engine
func (tx *Transaction) Validate() error {
	if tx.Type == "" {
		return fmt.Errorf("missing transaction type")
	}
	if !known[tx.Type] {
		return fmt.Errorf("unknown transaction type: %s", tx.Type)
	}
	if tx.Sender == (common.Address{}) {
		return fmt.Errorf("missing sender")
	}
	if len(tx.Payload) == 0 || bytes.Equal(tx.Payload, []byte("null")) {
		return fmt.Errorf("%s requires a payload", tx.Type)
	}
	return nil
}

// Parse decodes and validates a raw transaction
func Parse(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return &tx, nil
}

// Decode unmarshals a transaction's payload, rejecting unknown fields
func Decode[T any](tx *Transaction) (T, error) {
	var out T
	dec := json.NewDecoder(bytes.NewReader(tx.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("invalid %s payload: %w", tx.Type, err)
	}
	return out, nil
}

// ============================================================================
// Payloads
// ============================================================================

// CreateAsset registers an asset; a non-empty Backing makes it a stablecoin
type CreateAsset struct {
	Asset   market.AssetObject `json:"asset"`
	Backing asset.Symbol       `json:"backing,omitempty"`
}

// Movement moves Amount to To (issue, transfer, savings, delegation)
type Movement struct {
	To     common.Address `json:"to"`
	Amount asset.Asset    `json:"amount"`
}

// Amount carries a single amount (burn, stake, unstake, claim, repay)
type Amount struct {
	Amount asset.Asset `json:"amount"`
}

type SavingsWithdraw struct {
	RequestID string         `json:"request_id"`
	To        common.Address `json:"to"`
	Amount    asset.Asset    `json:"amount"`
}

type RecurringTransfer struct {
	To       common.Address `json:"to"`
	Amount   asset.Asset    `json:"amount"`
	Interval int64          `json:"interval"` // seconds
	Payments int64          `json:"payments"`
}

type PublishFeed struct {
	Symbol asset.Symbol    `json:"symbol"`
	Feed   asset.PriceFeed `json:"feed"`
}

type CallOrderUpdate struct {
	DeltaCollateral       asset.Asset `json:"delta_collateral"`
	DeltaDebt             asset.Asset `json:"delta_debt"`
	TargetCollateralRatio int64       `json:"target_collateral_ratio,omitempty"`
}

type AssetSettle struct {
	Amount    asset.Asset    `json:"amount"`
	Interface common.Address `json:"interface,omitempty"`
}

type BidCollateral struct {
	Collateral  asset.Asset `json:"collateral"`
	DebtCovered asset.Asset `json:"debt_covered"`
}

type PoolCreate struct {
	A asset.Asset `json:"a"`
	B asset.Asset `json:"b"`
}

type PoolFund struct {
	In   asset.Asset  `json:"in"`
	Pair asset.Symbol `json:"pair"`
}

type PoolWithdraw struct {
	Liquid  asset.Asset  `json:"liquid"`
	Receive asset.Symbol `json:"receive"`
}

type PoolExchange struct {
	In        asset.Asset    `json:"in"`
	Receive   asset.Symbol   `json:"receive"`
	Interface common.Address `json:"interface,omitempty"`
}

type PoolAcquire struct {
	Out       asset.Asset    `json:"out"`
	Pay       asset.Symbol   `json:"pay"`
	Interface common.Address `json:"interface,omitempty"`
}

// PoolLimit sells up to In while the pool pays at least Limit (receive/in)
type PoolLimit struct {
	In        asset.Asset    `json:"in"`
	Limit     asset.Price    `json:"limit"`
	Interface common.Address `json:"interface,omitempty"`
}

type CreditBorrow struct {
	LoanID     string      `json:"loan_id"`
	Debt       asset.Asset `json:"debt"`
	Collateral asset.Asset `json:"collateral"`
}

type LimitOrder struct {
	OrderID      string         `json:"order_id"`
	AmountToSell asset.Asset    `json:"amount_to_sell"`
	MinToReceive asset.Asset    `json:"min_to_receive"`
	FillOrKill   bool           `json:"fill_or_kill,omitempty"`
	Expiration   int64          `json:"expiration,omitempty"`
	Interface    common.Address `json:"interface,omitempty"`
}

type MarginOrder struct {
	OrderID         string         `json:"order_id"`
	Collateral      asset.Asset    `json:"collateral"`
	Debt            asset.Asset    `json:"debt"`
	SellPrice       asset.Price    `json:"sell_price"`
	StopLoss        asset.Price    `json:"stop_loss,omitempty"`
	TakeProfit      asset.Price    `json:"take_profit,omitempty"`
	LimitStopLoss   asset.Price    `json:"limit_stop_loss,omitempty"`
	LimitTakeProfit asset.Price    `json:"limit_take_profit,omitempty"`
	Expiration      int64          `json:"expiration,omitempty"`
	Interface       common.Address `json:"interface,omitempty"`
}

type AuctionOrder struct {
	OrderID      string         `json:"order_id"`
	AmountToSell asset.Asset    `json:"amount_to_sell"`
	MinToReceive asset.Asset    `json:"min_to_receive"`
	Expiration   int64          `json:"expiration,omitempty"`
	Interface    common.Address `json:"interface,omitempty"`
}

type OptionOrder struct {
	OrderID    string         `json:"order_id"`
	Units      asset.Asset    `json:"units"`
	Strike     asset.Price    `json:"strike"`
	Call       bool           `json:"call"`
	Expiration int64          `json:"expiration"`
	Interface  common.Address `json:"interface,omitempty"`
}

// CancelOrder names an order by the owner's id for it
type CancelOrder struct {
	OrderID string `json:"order_id"`
}

// Example:
//
//	{
//	  "type": "limit_order",
//	  "sender": "0x00000000000000000000000000000000000a11ce",
//	  "payload": {
//	    "order_id": "a1",
//	    "amount_to_sell": {"amount": 100000000, "symbol": "COIN"},
//	    "min_to_receive": {"amount": 200000000, "symbol": "USD"}
//	  }
//	}
