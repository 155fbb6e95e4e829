// Package dex is the ledger application: it admits transactions into the
// mempool, applies finalized blocks to the engine and persists the result.
package dex

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/params"
	"github.com/uhyunpark/hypercredit/pkg/abci"
	"github.com/uhyunpark/hypercredit/pkg/app/core/engine"
	"github.com/uhyunpark/hypercredit/pkg/app/core/mempool"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
	"github.com/uhyunpark/hypercredit/pkg/app/core/transaction"
	"github.com/uhyunpark/hypercredit/pkg/metrics"
	"github.com/uhyunpark/hypercredit/pkg/storage"
)

type App struct {
	mu      sync.RWMutex
	eng     *engine.Engine
	mempool *mempool.Mempool

	store   *storage.Store
	journal storage.Journal
	log     *zap.Logger
	metrics *metrics.Metrics

	height  int64
	appHash abci.Hash
}

type Option func(*App)

func WithLogger(l *zap.Logger) Option { return func(a *App) { a.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(a *App) { a.metrics = m } }

// WithStore persists every finalized block
func WithStore(s *storage.Store) Option { return func(a *App) { a.store = s } }

// WithJournal records the transactions of every finalized block
func WithJournal(j storage.Journal) Option { return func(a *App) { a.journal = j } }

// New creates an app over an empty ledger
func New(p params.Engine, opts ...Option) *App {
	return newApp(state.New(), p, opts...)
}

// Open resumes from the store's head block, or starts empty when the store
// has none
func Open(p params.Engine, s *storage.Store, opts ...Option) (*App, error) {
	opts = append(opts, WithStore(s))
	head, ok, err := s.Head()
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}
	if !ok {
		return New(p, opts...), nil
	}
	st, _, err := s.LoadState()
	if err != nil {
		return nil, fmt.Errorf("load state at %d: %w", head.Height, err)
	}
	hash, err := st.Hash()
	if err != nil {
		return nil, err
	}
	if hash != head.AppHash {
		return nil, fmt.Errorf("state at %d hashes to %x, head says %x", head.Height, hash, head.AppHash)
	}
	a := newApp(st, p, opts...)
	a.height = head.Height
	a.appHash = head.AppHash
	a.log.Info("resumed from store", zap.Int64("height", head.Height), zap.String("app_hash", fmt.Sprintf("0x%x", hash[:])))
	return a, nil
}

func newApp(st *state.State, p params.Engine, opts ...Option) *App {
	a := &App{
		mempool: mempool.NewMempool(),
		journal: storage.NopJournal{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.eng = engine.New(st, p, engine.WithLogger(a.log), engine.WithMetrics(a.metrics))
	return a
}

// PushTx admits a transaction into the mempool; malformed envelopes are
// refused here rather than in a block
func (a *App) PushTx(b []byte) error {
	if _, err := transaction.Parse(b); err != nil {
		return err
	}
	return a.mempool.PushRaw(b)
}

// Pending is the number of transactions waiting in the mempool
func (a *App) Pending() int { return a.mempool.Len() }

func (a *App) PrepareProposal(req abci.RequestPrepareProposal) abci.ResponsePrepareProposal {
	return abci.ResponsePrepareProposal{Txs: a.mempool.SelectForProposal(req.MaxTxBytes)}
}

// ProcessProposal accepts a proposal whose transactions all parse
func (a *App) ProcessProposal(req abci.RequestProcessProposal) abci.ResponseProcessProposal {
	for _, tx := range req.Txs {
		if _, err := transaction.Parse(tx); err != nil {
			a.log.Warn("proposal carries a malformed tx", zap.Int64("height", req.Height), zap.Error(err))
			return abci.ResponseProcessProposal{Accept: false}
		}
	}
	return abci.ResponseProcessProposal{Accept: true}
}

// FinalizeBlock applies the block's transactions in order, then the
// block's maintenance, and commits. A rejected transaction leaves no trace
// in the ledger.
//
// Failing to hash or persist the state leaves the node unable to continue
// and panics, as does a failed supply audit.
func (a *App) FinalizeBlock(req abci.RequestFinalizeBlock) abci.ResponseFinalizeBlock {
	start := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	a.eng.SetHead(req.Height, req.Timestamp)
	results := make([]abci.TxResult, len(req.Txs))
	rejected := 0
	for i, raw := range req.Txs {
		results[i] = a.deliver(req.Height, raw)
		if results[i].Code != 0 {
			rejected++
		}
	}
	if err := a.eng.RunMaintenance(req.Height, req.Timestamp); err != nil {
		panic(err)
	}

	st := a.eng.State()
	events := st.DrainEvents()
	hash, err := st.Hash()
	if err != nil {
		panic(err)
	}
	if a.store != nil {
		if err := a.store.SaveBlock(req.Height, hash, st.Dump(), events); err != nil {
			panic(fmt.Errorf("save block %d: %w", req.Height, err))
		}
	}
	if err := a.journal.Append(storage.Block{Height: req.Height, Time: req.Timestamp, Txs: req.Txs}); err != nil {
		a.log.Error("journal append failed", zap.Int64("height", req.Height), zap.Error(err))
	}

	a.height = req.Height
	a.appHash = hash
	a.metrics.Block(req.Height, len(req.Txs), time.Since(start))

	// Quiet logging: only log non-empty blocks
	if len(req.Txs) > 0 || len(events) > 0 {
		a.log.Info("block finalized",
			zap.Int64("height", req.Height),
			zap.Int("txs", len(req.Txs)),
			zap.Int("rejected", rejected),
			zap.Int("events", len(events)),
			zap.String("app_hash", fmt.Sprintf("0x%x", hash[:])))
	}

	return abci.ResponseFinalizeBlock{
		TxResults: results,
		Events:    len(events),
		AppHash:   hash,
	}
}

func (a *App) deliver(height int64, raw []byte) abci.TxResult {
	tx, err := transaction.Parse(raw)
	if err != nil {
		return a.reject(height, "decode", err)
	}
	if err := a.eng.Apply(func() error { return a.applyTx(tx) }); err != nil {
		return a.reject(height, string(tx.Type), err)
	}
	return abci.TxResult{}
}

func (a *App) reject(height int64, op string, err error) abci.TxResult {
	a.log.Warn("tx rejected", zap.Int64("height", height), zap.String("op", op), zap.Error(err))
	a.metrics.Rejected(op)
	return abci.TxResult{Code: 1, Log: err.Error()}
}

// InitChain finalizes the genesis block; every genesis transaction must
// apply
func (a *App) InitChain(txs [][]byte, unix int64) (abci.ResponseFinalizeBlock, error) {
	if h := a.Height(); h != 0 {
		return abci.ResponseFinalizeBlock{}, fmt.Errorf("chain already at height %d", h)
	}
	resp := a.FinalizeBlock(abci.RequestFinalizeBlock{Height: 1, Timestamp: unix, Txs: txs})
	for i, r := range resp.TxResults {
		if r.Code != 0 {
			return resp, fmt.Errorf("genesis tx %d: %s", i, r.Log)
		}
	}
	return resp, nil
}

// ReadGenesis decodes a JSON array of transactions
func ReadGenesis(r io.Reader) ([][]byte, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse genesis: %w", err)
	}
	out := make([][]byte, len(raw))
	for i, tx := range raw {
		out[i] = []byte(tx)
	}
	return out, nil
}

// View runs fn against the committed state; fn must not mutate it or keep
// references past its return
func (a *App) View(fn func(st *state.State)) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fn(a.eng.State())
}

func (a *App) Height() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.height
}

func (a *App) AppHash() abci.Hash {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.appHash
}

func (a *App) Params() params.Engine { return a.eng.Params() }

// Store is the app's block store, nil when running in memory
func (a *App) Store() *storage.Store { return a.store }

var _ abci.Application = (*App)(nil)
