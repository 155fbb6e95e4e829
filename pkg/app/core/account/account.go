package account

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

// NullAccount receives burns: credits to it leave circulation, except COIN
// which accrues to network revenue
var NullAccount = common.Address{}

// Balance holds one owner's amounts of one symbol, split by bucket
type Balance struct {
	Owner  common.Address `json:"owner"`
	Symbol asset.Symbol   `json:"symbol"`

	Liquid  int64 `json:"liquid"`  // Freely spendable
	Staked  int64 `json:"staked"`  // Locked stake, released through unstake requests
	Savings int64 `json:"savings"` // Held in savings, withdrawn with a delay
	Reward  int64 `json:"reward"`  // Accrued rewards and issuer fees, claimable to liquid

	// Informational views over the staked bucket
	Delegated int64 `json:"delegated"` // Staked amount delegated away (≤ Staked)
	Receiving int64 `json:"receiving"` // Amount delegated to this owner by others
}

// Total returns the owner's holdings counted in total supply
// Formula: Liquid + Staked + Savings + Reward
func (b Balance) Total() int64 {
	return b.Liquid + b.Staked + b.Savings + b.Reward
}

func (b Balance) get(f Field) int64 {
	switch f {
	case Liquid:
		return b.Liquid
	case Staked:
		return b.Staked
	case Savings:
		return b.Savings
	case Reward:
		return b.Reward
	case Delegated:
		return b.Delegated
	case Receiving:
		return b.Receiving
	}
	return 0
}

func (b *Balance) set(f Field, v int64) {
	switch f {
	case Liquid:
		b.Liquid = v
	case Staked:
		b.Staked = v
	case Savings:
		b.Savings = v
	case Reward:
		b.Reward = v
	case Delegated:
		b.Delegated = v
	case Receiving:
		b.Receiving = v
	}
}

// Field names a balance bucket
type Field int8

const (
	Liquid Field = iota
	Staked
	Savings
	Reward
	Delegated
	Receiving
)

func (f Field) String() string {
	switch f {
	case Liquid:
		return "liquid"
	case Staked:
		return "staked"
	case Savings:
		return "savings"
	case Reward:
		return "reward"
	case Delegated:
		return "delegated"
	case Receiving:
		return "receiving"
	default:
		return "unknown"
	}
}

// DynamicData tracks the supply of one symbol by bucket.
//
// Invariant: TotalSupply = Liquid + Staked + Reward + Savings + Pending + Confidential.
// Delegated and Receiving mirror part of the staked stock and are not summed.
// Pending covers every amount held outside account buckets (orders, pools,
// loans, collateral, settlement funds, network revenue).
type DynamicData struct {
	Symbol             asset.Symbol `json:"symbol"`
	TotalSupply        int64        `json:"total_supply"`
	LiquidSupply       int64        `json:"liquid_supply"`
	StakedSupply       int64        `json:"staked_supply"`
	RewardSupply       int64        `json:"reward_supply"`
	SavingsSupply      int64        `json:"savings_supply"`
	DelegatedSupply    int64        `json:"delegated_supply"`
	ReceivingSupply    int64        `json:"receiving_supply"`
	PendingSupply      int64        `json:"pending_supply"`
	ConfidentialSupply int64        `json:"confidential_supply"`
}

// Accounted returns the sum the invariant requires to equal TotalSupply
func (d DynamicData) Accounted() int64 {
	return d.LiquidSupply + d.StakedSupply + d.RewardSupply + d.SavingsSupply + d.PendingSupply + d.ConfidentialSupply
}

// Validate checks the supply invariant and non-negativity
func (d DynamicData) Validate() error {
	for _, v := range []int64{d.TotalSupply, d.LiquidSupply, d.StakedSupply, d.RewardSupply,
		d.SavingsSupply, d.DelegatedSupply, d.ReceivingSupply, d.PendingSupply, d.ConfidentialSupply} {
		if v < 0 {
			return &SupplyError{Symbol: d.Symbol, Msg: "negative supply counter"}
		}
	}
	if d.TotalSupply != d.Accounted() {
		return &SupplyError{Symbol: d.Symbol, Msg: "total supply does not match buckets"}
	}
	return nil
}

func (d DynamicData) get(f Field) int64 {
	switch f {
	case Liquid:
		return d.LiquidSupply
	case Staked:
		return d.StakedSupply
	case Savings:
		return d.SavingsSupply
	case Reward:
		return d.RewardSupply
	case Delegated:
		return d.DelegatedSupply
	case Receiving:
		return d.ReceivingSupply
	}
	return 0
}

func (d *DynamicData) add(f Field, delta int64) {
	switch f {
	case Liquid:
		d.LiquidSupply += delta
	case Staked:
		d.StakedSupply += delta
	case Savings:
		d.SavingsSupply += delta
	case Reward:
		d.RewardSupply += delta
	case Delegated:
		d.DelegatedSupply += delta
	case Receiving:
		d.ReceivingSupply += delta
	}
}

// Profile holds per-owner ledger flags
type Profile struct {
	Owner common.Address `json:"owner"`

	// LoanDefaultBalance is network credit minted to cover this owner's
	// unpaid debt; while positive the owner cannot open loans or margin orders
	LoanDefaultBalance int64 `json:"loan_default_balance"`

	// CreditInterestCarry is network credit interest not yet paid out, per
	// bucket (liquid, staked, savings), in 1/(10000 × year) of a unit
	CreditInterestCarry [3]int64 `json:"credit_interest_carry"`
}

// UnstakeRequest releases staked balance to liquid in equal instalments
type UnstakeRequest struct {
	Owner       common.Address `json:"owner"`
	Symbol      asset.Symbol   `json:"symbol"`
	Remaining   int64          `json:"remaining"`
	PerInterval int64          `json:"per_interval"`
	NextTime    int64          `json:"next_time"`
}

// SavingsWithdraw is a savings withdrawal waiting out its delay
type SavingsWithdraw struct {
	From      common.Address `json:"from"`
	RequestID string         `json:"request_id"`
	To        common.Address `json:"to"`
	Amount    asset.Asset    `json:"amount"`
	Complete  int64          `json:"complete"`
}

// RecurringTransfer pays Amount from From to To every Interval seconds
type RecurringTransfer struct {
	From              common.Address `json:"from"`
	To                common.Address `json:"to"`
	Amount            asset.Asset    `json:"amount"`
	Interval          int64          `json:"interval"`
	NextTime          int64          `json:"next_time"`
	RemainingPayments int64          `json:"remaining_payments"`
}

// CompareAddress orders addresses bytewise
func CompareAddress(a, b common.Address) int {
	return bytes.Compare(a[:], b[:])
}
