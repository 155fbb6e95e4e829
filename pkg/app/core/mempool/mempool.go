package mempool

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"sync"

	"github.com/uhyunpark/hypercredit/pkg/app/core/transaction"
)

// ErrDuplicate is returned for a tx already waiting in the pool.
var ErrDuplicate = errors.New("mempool: duplicate transaction")

// ClassifyRaw buckets a raw transaction by its envelope type.
//
// Unparseable bytes are treated as orders: they go last and are rejected
// when the block applies them.
func ClassifyRaw(b []byte) transaction.Category {
	if len(b) == 0 || b[0] != '{' {
		return transaction.Order
	}
	var envelope struct {
		Type transaction.TxType `json:"type"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return transaction.Order
	}
	return envelope.Type.Category()
}

// Mempool keeps three queues and proposes them in order:
// (1) non-order operations, (2) cancels, (3) orders.
// Within each bucket, FIFO by admission order.
type Mempool struct {
	mu       sync.Mutex
	nonOrder [][]byte
	cancel   [][]byte
	orders   [][]byte
	pending  map[[sha256.Size]byte]struct{}
}

func NewMempool() *Mempool {
	return &Mempool{pending: make(map[[sha256.Size]byte]struct{})}
}

// PushRaw classifies and enqueues a tx. Identical bytes are admitted again
// only once the earlier copy has been proposed.
func (m *Mempool) PushRaw(b []byte) error {
	cp := append([]byte(nil), b...)
	id := sha256.Sum256(cp)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[id]; ok {
		return ErrDuplicate
	}
	m.pending[id] = struct{}{}
	switch ClassifyRaw(b) {
	case transaction.NonOrder:
		m.nonOrder = append(m.nonOrder, cp)
	case transaction.Cancel:
		m.cancel = append(m.cancel, cp)
	default:
		m.orders = append(m.orders, cp)
	}
	return nil
}

// SelectForProposal returns up to maxBytes worth of txs in bucket order,
// removing them from the mempool. A tx that does not fit ends selection so
// admission order is kept.
func (m *Mempool) SelectForProposal(maxBytes int64) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	var used int64
	full := false

	pull := func(q *[][]byte) {
		for !full && len(*q) > 0 {
			tx := (*q)[0]
			n := int64(len(tx))
			if maxBytes > 0 && used+n > maxBytes {
				full = true
				return
			}
			out = append(out, tx)
			delete(m.pending, sha256.Sum256(tx))
			used += n
			*q = (*q)[1:]
		}
	}

	pull(&m.nonOrder)
	pull(&m.cancel)
	pull(&m.orders)

	return out
}

// Len returns total pending txs.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nonOrder) + len(m.cancel) + len(m.orders)
}
