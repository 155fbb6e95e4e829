// Package engine applies ledger operations to a state.State: order
// matching across the book, liquidity pools and margin-called positions,
// credit pools and loans, margin orders, stablecoin settlement, auctions,
// options and the maintenance that runs once per block.
//
// The engine is single-threaded. Every public operation assumes it runs
// inside Apply, which makes it all-or-nothing.
package engine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/params"
	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
	"github.com/uhyunpark/hypercredit/pkg/metrics"
)

// Engine mutates one ledger state
type Engine struct {
	st      *state.State
	params  params.Engine
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics records engine activity on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine over st
func New(st *state.State, p params.Engine, opts ...Option) *Engine {
	e := &Engine{
		st:     st,
		params: p,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the state the engine mutates
func (e *Engine) State() *state.State { return e.st }

// Params returns the consensus constants
func (e *Engine) Params() params.Engine { return e.params }

// SetHead moves the chain head; called once before a block's operations
func (e *Engine) SetHead(height, unix int64) {
	e.st.Props.HeadBlock = height
	e.st.Props.HeadTime = unix
}

func (e *Engine) now() int64 { return e.st.Props.HeadTime }

func seconds(d time.Duration) int64 { return int64(d / time.Second) }

// Apply runs fn as one transaction. On error, or on a panic raised by a
// violated arithmetic precondition, every change fn made is discarded.
// Other panics are re-raised after the state is restored.
func (e *Engine) Apply(fn func() error) (err error) {
	snap := e.st.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			e.st.Restore(snap)
			if pe, ok := r.(*asset.PreconditionError); ok {
				err = pe
				return
			}
			panic(r)
		}
		if err != nil {
			e.st.Restore(snap)
		}
	}()
	return fn()
}

// lock moves amount from owner's liquid balance into a holding
func (e *Engine) lock(owner common.Address, amount asset.Asset) error {
	if amount.IsZero() {
		return nil
	}
	if err := e.st.Ledger.AdjustLiquidBalance(owner, amount.Neg()); err != nil {
		return err
	}
	return e.st.Ledger.AdjustPendingSupply(amount)
}

// release pays amount out of a holding into to's liquid balance.
// Releasing to the null account burns it (COIN accrues to revenue).
func (e *Engine) release(to common.Address, amount asset.Asset) error {
	if amount.IsZero() {
		return nil
	}
	if err := e.st.Ledger.AdjustPendingSupply(amount.Neg()); err != nil {
		return err
	}
	return e.st.Ledger.AdjustLiquidBalance(to, amount)
}

func positive(op string, amounts ...asset.Asset) error {
	for _, a := range amounts {
		if !a.IsPositive() {
			return invalidf("%s: amount %s must be positive", op, a)
		}
	}
	return nil
}

func isNull(a common.Address) bool { return a == account.NullAccount }
