package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hypercredit/pkg/app/core/transaction"
)

func TestClassifyRaw(t *testing.T) {
	tests := []struct {
		name     string
		tx       string
		expected transaction.Category
	}{
		{"limit order", `{"type":"limit_order","payload":{}}`, transaction.Order},
		{"pool exchange", `{"type":"liquidity_exchange","payload":{}}`, transaction.Order},
		{"cancel", `{"type":"cancel_limit_order","payload":{}}`, transaction.Cancel},
		{"transfer", `{"type":"transfer","payload":{}}`, transaction.NonOrder},
		{"feed", `{"type":"publish_feed","payload":{}}`, transaction.NonOrder},
		{"invalid JSON", `{"invalid": "json"`, transaction.Order},
		{"not JSON", "O:GTC:BTC-USDT", transaction.Order},
		{"empty", "", transaction.Order},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyRaw([]byte(tt.tx)))
		})
	}
}

func TestMempool_Ordering(t *testing.T) {
	m := NewMempool()

	order1 := `{"type":"limit_order","payload":{"order_id":"1"}}`
	order2 := `{"type":"auction_order","payload":{"order_id":"2"}}`
	cancel1 := `{"type":"cancel_limit_order","payload":{"order_id":"1"}}`
	feed := `{"type":"publish_feed","payload":{}}`
	transfer := `{"type":"transfer","payload":{}}`

	for _, tx := range []string{order1, cancel1, feed, order2, transfer} {
		require.NoError(t, m.PushRaw([]byte(tx)))
	}
	require.Equal(t, 5, m.Len())

	got := m.SelectForProposal(0)
	want := []string{feed, transfer, cancel1, order1, order2}
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i], string(got[i]), "position %d", i)
	}
	assert.Zero(t, m.Len())
}

func TestMempool_MaxBytes(t *testing.T) {
	m := NewMempool()
	a := `{"type":"transfer","payload":{"n":1}}`
	b := `{"type":"limit_order","payload":{"n":2}}`
	m.PushRaw([]byte(a))
	m.PushRaw([]byte(b))

	got := m.SelectForProposal(int64(len(a)))
	require.Len(t, got, 1)
	assert.Equal(t, a, string(got[0]))
	assert.Equal(t, 1, m.Len())

	got = m.SelectForProposal(0)
	require.Len(t, got, 1)
	assert.Equal(t, b, string(got[0]))
}

func TestMempool_CopiesInput(t *testing.T) {
	m := NewMempool()
	buf := []byte(`{"type":"transfer","payload":{}}`)
	m.PushRaw(buf)
	buf[0] = 'X'
	got := m.SelectForProposal(0)
	require.Len(t, got, 1)
	assert.Equal(t, byte('{'), got[0][0])
}

func TestMempool_RefusesDuplicateUntilProposed(t *testing.T) {
	m := NewMempool()
	tx := []byte(`{"type":"transfer","payload":{"n":1}}`)
	require.NoError(t, m.PushRaw(tx))
	require.ErrorIs(t, m.PushRaw(tx), ErrDuplicate)
	assert.Equal(t, 1, m.Len())

	require.Len(t, m.SelectForProposal(0), 1)
	require.NoError(t, m.PushRaw(tx), "proposed txs leave the pending set")
}
