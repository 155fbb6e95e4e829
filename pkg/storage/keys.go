package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/orderedcode"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

// Key schema (orderedcode tuples):
//
//	(prefixHead)                    → Head
//	(prefixState)                   → state.Dump of the head block
//	(prefixBalance, owner, symbol)  → account.Balance at the head block
//	(prefixEvent, height, seq)      → state.Event
const (
	prefixHead    = int64(0)
	prefixState   = int64(1)
	prefixBalance = int64(2)
	prefixEvent   = int64(3)
)

func mustKey(items ...any) []byte {
	key, err := orderedcode.Append(nil, items...)
	if err != nil {
		panic(err)
	}
	return key
}

func headKey() []byte  { return mustKey(prefixHead) }
func stateKey() []byte { return mustKey(prefixState) }

func balanceKey(owner common.Address, symbol asset.Symbol) []byte {
	return mustKey(prefixBalance, string(owner.Bytes()), string(symbol))
}

// balancePrefix covers every balance, or one owner's when owner is given
func balancePrefix(owner ...common.Address) []byte {
	if len(owner) == 0 {
		return mustKey(prefixBalance)
	}
	return mustKey(prefixBalance, string(owner[0].Bytes()))
}

func eventKey(height int64, seq int) []byte {
	return mustKey(prefixEvent, height, int64(seq))
}

func eventPrefix(height int64) []byte {
	return mustKey(prefixEvent, height)
}

func decodeEventKey(key []byte) (height, seq int64, err error) {
	var prefix int64
	remaining, err := orderedcode.Parse(string(key), &prefix, &height, &seq)
	if err != nil {
		return 0, 0, err
	}
	if len(remaining) != 0 {
		return 0, 0, fmt.Errorf("expected complete key but got remainder: %x", remaining)
	}
	if prefix != prefixEvent {
		return 0, 0, fmt.Errorf("incorrect prefix. Expected %v, got %v", prefixEvent, prefix)
	}
	return height, seq, nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] < 0xff {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil
}
