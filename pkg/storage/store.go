// Package storage persists committed blocks: the state of the head block,
// a per-account balance index and the virtual operations of every block.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
)

// Head identifies the last committed block
type Head struct {
	Height  int64    `json:"height"`
	AppHash [32]byte `json:"app_hash"`
}

// StoredEvent is a virtual operation read back from disk; its payload
// stays encoded since the concrete type is known only from Type
type StoredEvent struct {
	Type  state.EventType `json:"type"`
	Block int64           `json:"block"`
	Time  int64           `json:"time"`
	Seq   int             `json:"seq"`
	Data  json.RawMessage `json:"data"`
}

type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the store at path
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(128 << 20), // 128MB cache
		MemTableSize:             64 << 20,                   // 64MB memtable
		MaxConcurrentCompactions: func() int { return 3 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10, // 512KB
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that lives only as long as the process
func OpenInMemory() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveBlock commits one block atomically: the new head, the full state
// dump, a fresh balance index and the block's virtual operations
func (s *Store) SaveBlock(height int64, appHash [32]byte, dump state.Dump, events []state.Event) error {
	b := s.db.NewBatch()
	defer b.Close()

	all := balancePrefix()
	if err := b.DeleteRange(all, keyUpperBound(all), nil); err != nil {
		return fmt.Errorf("clear balances: %w", err)
	}
	for _, bal := range dump.Ledger.Balances {
		val, err := json.Marshal(bal)
		if err != nil {
			return fmt.Errorf("failed to marshal balance: %w", err)
		}
		if err := b.Set(balanceKey(bal.Owner, bal.Symbol), val, nil); err != nil {
			return err
		}
	}

	val, err := json.Marshal(dump)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := b.Set(stateKey(), val, nil); err != nil {
		return err
	}

	for _, ev := range events {
		val, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
		}
		if err := b.Set(eventKey(height, ev.Seq), val, nil); err != nil {
			return err
		}
	}

	val, err = json.Marshal(Head{Height: height, AppHash: appHash})
	if err != nil {
		return err
	}
	if err := b.Set(headKey(), val, nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit block %d: %w", height, err)
	}
	return nil
}

// Head returns the last committed block; false on an empty store
func (s *Store) Head() (Head, bool, error) {
	var h Head
	ok, err := s.get(headKey(), &h)
	return h, ok, err
}

// LoadState rebuilds the state of the head block; false on an empty store
func (s *Store) LoadState() (*state.State, bool, error) {
	var d state.Dump
	ok, err := s.get(stateKey(), &d)
	if err != nil || !ok {
		return nil, ok, err
	}
	st, err := state.Load(d)
	if err != nil {
		return nil, false, err
	}
	return st, true, nil
}

// Events returns the virtual operations of a block in emission order
func (s *Store) Events(height int64) ([]StoredEvent, error) {
	prefix := eventPrefix(height)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []StoredEvent
	for iter.First(); iter.Valid(); iter.Next() {
		if _, _, err := decodeEventKey(iter.Key()); err != nil {
			return nil, err
		}
		var ev StoredEvent
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		out = append(out, ev)
	}
	return out, iter.Error()
}

// Balances returns an owner's balances at the head block, by symbol
func (s *Store) Balances(owner common.Address) ([]account.Balance, error) {
	prefix := balancePrefix(owner)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []account.Balance
	for iter.First(); iter.Valid(); iter.Next() {
		var bal account.Balance
		if err := json.Unmarshal(iter.Value(), &bal); err != nil {
			return nil, fmt.Errorf("failed to unmarshal balance: %w", err)
		}
		out = append(out, bal)
	}
	return out, iter.Error()
}

func (s *Store) get(key []byte, v any) (bool, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %x: %w", key, err)
	}
	return true, nil
}
