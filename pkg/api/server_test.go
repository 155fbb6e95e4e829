package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/hypercredit/params"
	"github.com/uhyunpark/hypercredit/pkg/abci"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/transaction"
	"github.com/uhyunpark/hypercredit/pkg/app/dex"
	"github.com/uhyunpark/hypercredit/pkg/metrics"
	"github.com/uhyunpark/hypercredit/pkg/storage"
)

const genesisTime int64 = 1_700_000_000

type fixture struct {
	app     *dex.App
	server  *Server
	trader  common.Address
	lastRes abci.ResponseFinalizeBlock
}

// newFixture starts a chain on BASE/QUOTE where the first trader rests an
// order selling 1 BASE for 2 QUOTE
func newFixture(t *testing.T, opts ...dex.Option) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	m := metrics.New()
	p := params.DefaultEngine()
	p.ValidateInvariants = true
	app := dex.New(p, append([]dex.Option{dex.WithLogger(log), dex.WithMetrics(m)}, opts...)...)

	gen := dex.NewTxGenerator(2, "BASE", "QUOTE", 1)
	_, err := app.InitChain(gen.Genesis(100), genesisTime)
	require.NoError(t, err)

	trader := gen.Traders()[0]
	tx, err := transaction.New(transaction.TxLimitOrder, trader, transaction.LimitOrder{
		OrderID:      "r1",
		AmountToSell: asset.Units(1, "BASE"),
		MinToReceive: asset.Units(2, "QUOTE"),
	})
	require.NoError(t, err)
	raw, err := tx.Serialize()
	require.NoError(t, err)
	res := app.FinalizeBlock(abci.RequestFinalizeBlock{Height: 2, Timestamp: genesisTime + 1, Txs: [][]byte{raw}})
	require.Equal(t, uint32(0), res.TxResults[0].Code, res.TxResults[0].Log)

	return &fixture{app: app, server: NewServer(app, m, log), trader: trader, lastRes: res}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)
	var body map[string]string
	require.Equal(t, http.StatusOK, f.get(t, "/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_ChainStatus(t *testing.T) {
	f := newFixture(t)
	var st ChainStatus
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/chain/status", &st))
	assert.Equal(t, int64(2), st.Height)
	assert.True(t, strings.HasPrefix(st.AppHash, "0x"))
	assert.Len(t, st.AppHash, 66)
}

func TestServer_Balances(t *testing.T) {
	f := newFixture(t)
	var out []BalanceInfo
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/accounts/"+f.trader.Hex()+"/balances", &out))

	got := map[asset.Symbol]BalanceInfo{}
	for _, b := range out {
		got[b.Symbol] = b
	}
	assert.Equal(t, asset.Units(99, "BASE").Amount, got["BASE"].Liquid, "one BASE rests on the book")
	assert.Equal(t, asset.Units(100, "QUOTE").Amount, got["QUOTE"].Liquid)
	assert.Equal(t, asset.Units(99, "BASE").String(), got["BASE"].Display)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/accounts/nope/balances", nil))
}

func TestServer_OrdersAndBook(t *testing.T) {
	f := newFixture(t)

	var orders []OrderInfo
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/accounts/"+f.trader.Hex()+"/orders", &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "r1", orders[0].OrderID)
	assert.Equal(t, asset.Units(1, "BASE"), orders[0].ForSale)

	var book BookSnapshot
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/books/BASE/QUOTE?depth=5", &book))
	require.Len(t, book.Levels, 1)
	assert.Equal(t, asset.Units(1, "BASE"), book.Levels[0].ForSale)
	assert.Equal(t, int64(2), book.Height)

	var other BookSnapshot
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/books/QUOTE/BASE", &other))
	assert.Empty(t, other.Levels)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/books/BASE/QUOTE?depth=-1", nil))
}

func TestServer_Registry(t *testing.T) {
	f := newFixture(t)
	var pools []map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/pools", &pools))
	assert.Len(t, pools, 1)

	var credit []map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/credit-pools", &credit))
	assert.Len(t, credit, 2, "one per tradable asset")

	var assets []map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/assets", &assets))
	assert.NotEmpty(t, assets)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/stablecoins/NOPE", nil))
}

func TestServer_SubmitTx(t *testing.T) {
	f := newFixture(t)
	post := func(body []byte) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tx", bytes.NewReader(body)))
		return rec
	}

	tx, err := transaction.New(transaction.TxCancelLimit, f.trader, transaction.CancelOrder{OrderID: "r1"})
	require.NoError(t, err)
	raw, err := tx.Serialize()
	require.NoError(t, err)

	rec := post(raw)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp SubmitTxResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancel_limit_order", resp.Type)
	assert.Equal(t, 1, f.app.Pending())
	assert.Equal(t, http.StatusConflict, post(raw).Code)

	assert.Equal(t, http.StatusBadRequest, post([]byte(`{"type":"limit_order"}`)).Code)
	assert.Equal(t, 1, f.app.Pending())
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hypercredit_block_height 2")
}

func TestServer_BlockEvents(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/v1/blocks/1/events", nil))

	s, err := storage.OpenInMemory()
	require.NoError(t, err)
	defer s.Close()
	f = newFixture(t, dex.WithStore(s))

	var events []storage.StoredEvent
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/blocks/1/events", &events))
	assert.NotEmpty(t, events)

	var none []storage.StoredEvent
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/blocks/99/events", &none))
	assert.Empty(t, none)
}

func TestServer_WebSocketBroadcast(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.server.hub.Run(ctx)

	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"book:nope"}}))
	var ack WSAck
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "error", ack.Type)
	assert.Equal(t, []string{"book:nope"}, ack.Channels)

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"blocks", "book:BASE/QUOTE"}}))
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, []string{"blocks", "book:BASE/QUOTE"}, f.server.hub.Channels())

	f.server.BroadcastBlock(2, f.lastRes)

	var block BlockUpdate
	require.NoError(t, conn.ReadJSON(&block))
	assert.Equal(t, "block", block.Type)
	assert.Equal(t, int64(2), block.Height)
	assert.Equal(t, 1, block.Txs)

	var book BookUpdate
	require.NoError(t, conn.ReadJSON(&book))
	assert.Equal(t, "book", book.Type)
	assert.Equal(t, asset.Symbol("BASE"), book.Sell)
	assert.Len(t, book.Levels, 1)
}

func TestParseBookChannel(t *testing.T) {
	sell, receive, ok := parseBookChannel("book:COIN/USD")
	require.True(t, ok)
	assert.Equal(t, asset.Symbol("COIN"), sell)
	assert.Equal(t, asset.Symbol("USD"), receive)

	for _, ch := range []string{"blocks", "book:COIN", "book:/USD", "book:COIN/"} {
		_, _, ok := parseBookChannel(ch)
		assert.False(t, ok, ch)
	}
}
