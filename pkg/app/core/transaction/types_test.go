package transaction

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

var alice = common.HexToAddress("0xa11ce")

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name: "limit order",
			data: `{"type":"limit_order","sender":"0x00000000000000000000000000000000000a11ce","payload":{"order_id":"a1"}}`,
		},
		{
			name:    "not json",
			data:    `O:GTC:BTC-USDT:BUY`,
			wantErr: "failed to parse",
		},
		{
			name:    "missing type",
			data:    `{"sender":"0x00000000000000000000000000000000000a11ce","payload":{}}`,
			wantErr: "missing transaction type",
		},
		{
			name:    "unknown type",
			data:    `{"type":"perp_order","sender":"0x00000000000000000000000000000000000a11ce","payload":{}}`,
			wantErr: "unknown transaction type",
		},
		{
			name:    "missing sender",
			data:    `{"type":"transfer","payload":{}}`,
			wantErr: "missing sender",
		},
		{
			name:    "missing payload",
			data:    `{"type":"transfer","sender":"0x00000000000000000000000000000000000a11ce"}`,
			wantErr: "requires a payload",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := Parse([]byte(tt.data))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, alice, tx.Sender)
		})
	}
}

func TestDecode(t *testing.T) {
	tx, err := New(TxTransfer, alice, Movement{To: common.HexToAddress("0xb0b"), Amount: asset.New(5, asset.CoinSymbol)})
	require.NoError(t, err)
	raw, err := tx.Serialize()
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	m, err := Decode[Movement](parsed)
	require.NoError(t, err)
	assert.Equal(t, asset.New(5, asset.CoinSymbol), m.Amount)

	parsed.Payload = []byte(`{"to":"0x0000000000000000000000000000000000000b0b","amount":{"amount":5,"symbol":"COIN"},"memo":"x"}`)
	_, err = Decode[Movement](parsed)
	require.Error(t, err, "unknown fields are rejected")
}

func TestCategory(t *testing.T) {
	assert.Equal(t, Order, TxLimitOrder.Category())
	assert.Equal(t, Order, TxPoolExchange.Category())
	assert.Equal(t, Cancel, TxCancelAuction.Category())
	assert.Equal(t, NonOrder, TxTransfer.Category())
	assert.Equal(t, NonOrder, TxPublishFeed.Category())
	assert.Equal(t, Order, TxType("bogus").Category())
}
