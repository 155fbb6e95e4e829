package abci

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/util"
)

// Hash is a 32-byte application state hash
type Hash [32]byte

type RequestPrepareProposal struct{ Height, MaxTxBytes int64 }
type ResponsePrepareProposal struct{ Txs [][]byte }
type RequestProcessProposal struct {
	Height int64
	Txs    [][]byte
}
type ResponseProcessProposal struct{ Accept bool }
type RequestFinalizeBlock struct {
	Height    int64
	Timestamp int64 // Unix timestamp in seconds
	Txs       [][]byte
}

// TxResult reports one transaction of a finalized block; a rejected
// transaction changed nothing
type TxResult struct {
	Code uint32 `json:"code"` // 0 accepted
	Log  string `json:"log,omitempty"`
}

type ResponseFinalizeBlock struct {
	TxResults []TxResult
	Events    int  // virtual operations emitted
	AppHash   Hash // Hash of application state after execution
}

type Application interface {
	PrepareProposal(RequestPrepareProposal) ResponsePrepareProposal
	ProcessProposal(RequestProcessProposal) ResponseProcessProposal
	FinalizeBlock(RequestFinalizeBlock) ResponseFinalizeBlock
}

// Bridge produces blocks for an Application on a single node: it proposes
// from the app's mempool, checks the proposal and finalizes it.
type Bridge struct {
	App           Application
	Clock         util.Clock
	Logger        *zap.Logger
	BlockTime     time.Duration
	MaxBlockBytes int64

	// OnCommit runs after every finalized block
	OnCommit func(height int64, resp ResponseFinalizeBlock)
}

// ProduceBlock builds and finalizes one block at height
func (b *Bridge) ProduceBlock(height int64) ResponseFinalizeBlock {
	prop := b.App.PrepareProposal(RequestPrepareProposal{Height: height, MaxTxBytes: b.MaxBlockBytes})
	txs := prop.Txs
	if !b.App.ProcessProposal(RequestProcessProposal{Height: height, Txs: txs}).Accept {
		b.logger().Warn("proposal rejected, finalizing empty block", zap.Int64("height", height), zap.Int("txs", len(txs)))
		txs = nil
	}
	resp := b.App.FinalizeBlock(RequestFinalizeBlock{
		Height:    height,
		Timestamp: b.Clock.Now().Unix(),
		Txs:       txs,
	})
	if b.OnCommit != nil {
		b.OnCommit(height, resp)
	}
	return resp
}

// Run produces a block every BlockTime, starting after from, until ctx is
// done
func (b *Bridge) Run(ctx context.Context, from int64) error {
	height := from
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.Clock.After(b.BlockTime):
			height++
			b.ProduceBlock(height)
		}
	}
}

func (b *Bridge) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}
