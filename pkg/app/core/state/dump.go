package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/market"
	"github.com/uhyunpark/hypercredit/pkg/app/core/orderbook"
	"github.com/uhyunpark/hypercredit/pkg/app/core/pool"
)

// Dump is the whole ledger state as plain data. Every slice is in its
// table's primary key order, so equal states encode to equal bytes.
type Dump struct {
	Props    Props               `json:"props"`
	Ledger   account.LedgerDump  `json:"ledger"`
	Registry market.RegistryDump `json:"registry"`
	Book     orderbook.BookDump  `json:"book"`
	Pools    pool.StoreDump      `json:"pools"`
}

// Dump exports the state; the event log is not part of it
func (s *State) Dump() Dump {
	return Dump{
		Props:    s.Props,
		Ledger:   s.Ledger.Dump(),
		Registry: s.Registry.Dump(),
		Book:     s.Book.Dump(),
		Pools:    s.Pools.Dump(),
	}
}

// Load rebuilds a state from a dump
func Load(d Dump) (*State, error) {
	ledger, err := account.LoadLedger(d.Ledger)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	registry, err := market.LoadRegistry(d.Registry)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	book, err := orderbook.LoadBook(d.Book)
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}
	pools, err := pool.LoadStore(d.Pools)
	if err != nil {
		return nil, fmt.Errorf("load pools: %w", err)
	}
	return &State{
		Ledger:   ledger,
		Registry: registry,
		Book:     book,
		Pools:    pools,
		Props:    d.Props,
	}, nil
}

// Hash is the SHA-256 of the state's canonical JSON encoding
func (s *State) Hash() ([32]byte, error) {
	b, err := json.Marshal(s.Dump())
	if err != nil {
		return [32]byte{}, fmt.Errorf("encode state: %w", err)
	}
	return sha256.Sum256(b), nil
}
