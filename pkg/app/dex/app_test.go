package dex

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/hypercredit/params"
	"github.com/uhyunpark/hypercredit/pkg/abci"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
	"github.com/uhyunpark/hypercredit/pkg/app/core/transaction"
	"github.com/uhyunpark/hypercredit/pkg/metrics"
	"github.com/uhyunpark/hypercredit/pkg/storage"
	"github.com/uhyunpark/hypercredit/pkg/util"
)

const (
	base        asset.Symbol = "BASE"
	quote       asset.Symbol = "QUOTE"
	genesisTime int64        = 1_700_000_000
)

func testParams() params.Engine {
	p := params.DefaultEngine()
	p.ValidateInvariants = true
	return p
}

func testApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	return New(testParams(), append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
}

func started(t *testing.T, seed int64, opts ...Option) (*App, *TxGenerator) {
	t.Helper()
	app := testApp(t, opts...)
	gen := NewTxGenerator(4, base, quote, seed)
	_, err := app.InitChain(gen.Genesis(1000), genesisTime)
	require.NoError(t, err)
	return app, gen
}

func mustTx(t *testing.T, typ transaction.TxType, sender common.Address, payload any) []byte {
	t.Helper()
	tx, err := transaction.New(typ, sender, payload)
	require.NoError(t, err)
	b, err := tx.Serialize()
	require.NoError(t, err)
	return b
}

func liquid(app *App, owner common.Address, sym asset.Symbol) (out asset.Asset) {
	app.View(func(st *state.State) { out = st.Ledger.GetLiquidBalance(owner, sym) })
	return out
}

func TestInitChain_AppliesGenesis(t *testing.T) {
	app, gen := started(t, 1)
	assert.Equal(t, int64(1), app.Height())
	assert.NotEqual(t, abci.Hash{}, app.AppHash())

	for _, tr := range gen.Traders() {
		assert.Equal(t, asset.Units(1000, base), liquid(app, tr, base))
		assert.Equal(t, asset.Units(1000, quote), liquid(app, tr, quote))
	}
	app.View(func(st *state.State) {
		_, ok := st.Pools.Liquidity(base, quote)
		assert.True(t, ok)
	})

	_, err := app.InitChain(nil, genesisTime)
	assert.Error(t, err)
}

func TestInitChain_RejectsFailingGenesis(t *testing.T) {
	app := testApp(t)
	bad := mustTx(t, transaction.TxIssue, common.HexToAddress("0x1"), transaction.Movement{
		To:     common.HexToAddress("0x2"),
		Amount: asset.New(1, "NOPE"),
	})
	_, err := app.InitChain([][]byte{bad}, genesisTime)
	assert.ErrorContains(t, err, "genesis tx 0")
}

func TestFinalizeBlock_RejectedTxLeavesNoTrace(t *testing.T) {
	m := metrics.New()
	app, gen := started(t, 1, WithMetrics(m))
	a, b := gen.Traders()[0], gen.Traders()[1]

	txs := [][]byte{
		mustTx(t, transaction.TxTransfer, a, transaction.Movement{To: b, Amount: asset.Units(10, base)}),
		mustTx(t, transaction.TxTransfer, a, transaction.Movement{To: b, Amount: asset.Units(5000, base)}),
		[]byte("not json"),
		[]byte(`{"type":"limit_order","sender":"` + a.Hex() + `","payload":{"order_id":"x","price":1}}`),
	}
	resp := app.FinalizeBlock(abci.RequestFinalizeBlock{Height: 2, Timestamp: genesisTime + 1, Txs: txs})

	require.Len(t, resp.TxResults, 4)
	assert.Equal(t, uint32(0), resp.TxResults[0].Code)
	for _, r := range resp.TxResults[1:] {
		assert.Equal(t, uint32(1), r.Code)
		assert.NotEmpty(t, r.Log)
	}
	assert.Equal(t, asset.Units(990, base), liquid(app, a, base))
	assert.Equal(t, asset.Units(1010, base), liquid(app, b, base))
	assert.Equal(t, int64(2), app.Height())
	assert.Equal(t, app.AppHash(), resp.AppHash)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectedTxs.WithLabelValues("transfer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectedTxs.WithLabelValues("decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectedTxs.WithLabelValues("limit_order")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BlockHeight))
}

func TestPushTx_RefusesMalformed(t *testing.T) {
	app := testApp(t)
	require.Error(t, app.PushTx([]byte("{")))
	require.Error(t, app.PushTx([]byte(`{"type":"teleport","sender":"0x01","payload":{}}`)))
	assert.Zero(t, app.Pending())

	require.NoError(t, app.PushTx(mustTx(t, transaction.TxBurn, common.HexToAddress("0x1"), transaction.Amount{Amount: asset.New(1, base)})))
	assert.Equal(t, 1, app.Pending())
}

func TestProcessProposal_RejectsMalformed(t *testing.T) {
	app := testApp(t)
	ok := mustTx(t, transaction.TxBurn, common.HexToAddress("0x1"), transaction.Amount{Amount: asset.New(1, base)})
	assert.True(t, app.ProcessProposal(abci.RequestProcessProposal{Height: 1, Txs: [][]byte{ok}}).Accept)
	assert.False(t, app.ProcessProposal(abci.RequestProcessProposal{Height: 1, Txs: [][]byte{ok, []byte("x")}}).Accept)
}

// produce drives n blocks through a bridge, feeding a batch before each
func produce(t *testing.T, app *App, gen *TxGenerator, from int64, n int) []abci.Hash {
	t.Helper()
	clock := util.NewManualClock(time.Unix(genesisTime+from, 0))
	br := &abci.Bridge{App: app, Clock: clock, MaxBlockBytes: 1 << 20}
	var hashes []abci.Hash
	for h := from + 1; h <= from+int64(n); h++ {
		for _, tx := range gen.GenerateBatch(20) {
			require.NoError(t, app.PushTx(tx))
		}
		clock.Advance(time.Second)
		resp := br.ProduceBlock(h)
		hashes = append(hashes, resp.AppHash)
	}
	return hashes
}

func TestBridge_SameBlocksSameHashes(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		a1, g1 := started(t, seed)
		a2, g2 := started(t, seed)
		require.Equal(t, a1.AppHash(), a2.AppHash())

		h1 := produce(t, a1, g1, 1, 10)
		h2 := produce(t, a2, g2, 1, 10)
		assert.Equal(t, h1, h2, "seed %d", seed)
		assert.Zero(t, a1.Pending())

		// network fees burn; nothing else changes the supply
		var total asset.Asset
		a1.View(func(st *state.State) {
			d, _ := st.Ledger.Supply(base)
			total = asset.New(d.TotalSupply, base)
		})
		assert.True(t, total.LessEq(asset.Units(5000, base)))
		assert.True(t, asset.Units(4990, base).Less(total))
	}
}

func TestOpen_ResumesFromStore(t *testing.T) {
	s, err := storage.OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	journalPath := filepath.Join(t.TempDir(), "blocks.jsonl")
	journal, err := storage.NewFileJournal(journalPath)
	require.NoError(t, err)

	app, gen := started(t, 3, WithStore(s), WithJournal(journal))
	produce(t, app, gen, 1, 5)
	require.NoError(t, journal.Close())

	resumed, err := Open(testParams(), s, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, app.Height(), resumed.Height())
	assert.Equal(t, app.AppHash(), resumed.AppHash())
	tr := gen.Traders()[2]
	assert.Equal(t, liquid(app, tr, quote), liquid(resumed, tr, quote))

	head, ok, err := s.Head()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(6), head.Height)
	events, err := s.Events(1)
	require.NoError(t, err)
	assert.NotEmpty(t, events)

	// replaying the journal into a fresh app reaches the same state
	raw, err := os.ReadFile(journalPath)
	require.NoError(t, err)
	blocks, err := storage.ReadJournal(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, blocks, 6)

	replayed := testApp(t)
	for _, b := range blocks {
		replayed.FinalizeBlock(abci.RequestFinalizeBlock{Height: b.Height, Timestamp: b.Time, Txs: b.Txs})
	}
	assert.Equal(t, app.AppHash(), replayed.AppHash())
}

func TestReadGenesis(t *testing.T) {
	txs, err := ReadGenesis(bytes.NewBufferString(`[{"type":"burn","sender":"0x01","payload":{}}, {"a":1}]`))
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.JSONEq(t, `{"a":1}`, string(txs[1]))

	_, err = ReadGenesis(bytes.NewBufferString(`{}`))
	assert.Error(t, err)
}
