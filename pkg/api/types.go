package api

import (
	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/orderbook"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// BalanceInfo is one asset held by an account; amounts are in satoshis
type BalanceInfo struct {
	Symbol    asset.Symbol `json:"symbol"`
	Liquid    int64        `json:"liquid"`
	Staked    int64        `json:"staked"`
	Savings   int64        `json:"savings"`
	Reward    int64        `json:"reward"`
	Delegated int64        `json:"delegated"`
	Receiving int64        `json:"receiving"`
	Display   string       `json:"display"` // Liquid balance, e.g. "12.50000000 COIN"
}

func balanceInfo(b account.Balance) BalanceInfo {
	return BalanceInfo{
		Symbol:    b.Symbol,
		Liquid:    b.Liquid,
		Staked:    b.Staked,
		Savings:   b.Savings,
		Reward:    b.Reward,
		Delegated: b.Delegated,
		Receiving: b.Receiving,
		Display:   asset.New(b.Liquid, b.Symbol).String(),
	}
}

// OrderInfo is a resting limit order
type OrderInfo struct {
	ID         uint64      `json:"id"`
	OrderID    string      `json:"orderId"`
	ForSale    asset.Asset `json:"forSale"`
	ToReceive  asset.Asset `json:"toReceive"`
	Price      string      `json:"price"` // receive per sell
	Expiration int64       `json:"expiration"`
}

// BookSnapshot is one side of a market: orders selling Sell for Receive
type BookSnapshot struct {
	Sell    asset.Symbol           `json:"sell"`
	Receive asset.Symbol           `json:"receive"`
	Levels  []orderbook.PriceLevel `json:"levels"` // Best first
	Height  int64                  `json:"height"`
}

// ChainStatus reports the local chain
type ChainStatus struct {
	Height      int64  `json:"height"`
	AppHash     string `json:"appHash"`
	MempoolSize int    `json:"mempoolSize"` // Pending transactions
	WSDropped   uint64 `json:"wsDropped"`   // push messages lost to slow clients
}

// SubmitTxResponse is the response to POST /api/v1/tx
type SubmitTxResponse struct {
	Status string `json:"status"` // "accepted"
	Type   string `json:"type"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["blocks", "book:COIN/USD"]
}

// WSAck answers a subscription request on the same connection
type WSAck struct {
	Type     string   `json:"type"` // "subscribed", "unsubscribed" or "error"
	Channels []string `json:"channels,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// BlockUpdate is broadcast on the "blocks" channel after every block
type BlockUpdate struct {
	Type     string `json:"type"` // "block"
	Height   int64  `json:"height"`
	AppHash  string `json:"appHash"`
	Txs      int    `json:"txs"`
	Rejected int    `json:"rejected"`
	Events   int    `json:"events"`
}

// BookUpdate is broadcast on "book:SELL/RECEIVE" channels after every block
type BookUpdate struct {
	Type string `json:"type"` // "book"
	BookSnapshot
}
