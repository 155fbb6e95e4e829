// Package state is the ledger context the engine runs against: every store
// the engine reads and mutates, the chain properties and the virtual
// operation log of the current block.
package state

import (
	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/market"
	"github.com/uhyunpark/hypercredit/pkg/app/core/orderbook"
	"github.com/uhyunpark/hypercredit/pkg/app/core/pool"
)

// Props are the chain-wide properties the engine tracks
type Props struct {
	HeadBlock int64 `json:"head_block"`
	HeadTime  int64 `json:"head_time"` // Unix seconds

	// NextID is the next object id handed out to orders, pools and loans
	NextID uint64 `json:"next_id"`

	LastCreditInterestTime int64 `json:"last_credit_interest_time"`
}

// State aggregates the ledger stores.
//
// Snapshot is O(1): every store is a set of copy-on-write B-trees.
// Restore swaps the snapshot back in, discarding every change since.
type State struct {
	Ledger   *account.Ledger
	Registry *market.Registry
	Book     *orderbook.Book
	Pools    *pool.Store
	Props    Props

	events []Event
}

// New creates an empty state
func New() *State {
	return &State{
		Ledger:   account.NewLedger(),
		Registry: market.NewRegistry(),
		Book:     orderbook.NewBook(),
		Pools:    pool.NewStore(),
		Props:    Props{NextID: 1},
	}
}

// Snapshot returns an independent copy of the state
func (s *State) Snapshot() *State {
	return &State{
		Ledger:   s.Ledger.Copy(),
		Registry: s.Registry.Copy(),
		Book:     s.Book.Copy(),
		Pools:    s.Pools.Copy(),
		Props:    s.Props,
		events:   s.events[:len(s.events):len(s.events)],
	}
}

// Restore replaces the state with a snapshot; the snapshot must not be
// used afterwards
func (s *State) Restore(snap *State) {
	*s = *snap
}

// NewID hands out the next object id
func (s *State) NewID() uint64 {
	id := s.Props.NextID
	s.Props.NextID++
	return id
}

// Emit appends a virtual operation to the current block's log
func (s *State) Emit(typ EventType, data any) {
	s.events = append(s.events, Event{
		Type:  typ,
		Block: s.Props.HeadBlock,
		Time:  s.Props.HeadTime,
		Seq:   len(s.events),
		Data:  data,
	})
}

// Events returns the log accumulated since the last drain
func (s *State) Events() []Event {
	return s.events
}

// DrainEvents returns the log and starts a new one
func (s *State) DrainEvents() []Event {
	out := s.events
	s.events = nil
	return out
}
