package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

func TestState_SnapshotRestore(t *testing.T) {
	s := New()
	require.NoError(t, s.Ledger.CreateSupply(asset.CoinSymbol))
	owner := common.HexToAddress("0x1")
	require.NoError(t, s.Ledger.Issue(owner, asset.New(10, asset.CoinSymbol)))
	s.Emit(EventFillOrder, FillOrder{})

	snap := s.Snapshot()
	id := s.NewID()
	require.NoError(t, s.Ledger.Issue(owner, asset.New(5, asset.CoinSymbol)))
	s.Emit(EventCancelOrder, CancelOrder{})
	require.Len(t, s.Events(), 2)

	s.Restore(snap)
	assert.Equal(t, asset.New(10, asset.CoinSymbol), s.Ledger.GetLiquidBalance(owner, asset.CoinSymbol))
	assert.Equal(t, id, s.NewID(), "ids handed out after the snapshot are reused")
	require.Len(t, s.Events(), 1)
	assert.Equal(t, EventFillOrder, s.Events()[0].Type)
}

func TestState_DrainEvents(t *testing.T) {
	s := New()
	s.Props.HeadBlock = 7
	s.Emit(EventCreditBuyback, CreditBuyback{})
	s.Emit(EventCreditInterest, CreditInterest{})

	events := s.DrainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, int64(7), events[1].Block)
	assert.Equal(t, 1, events[1].Seq)
	assert.Empty(t, s.Events())
}
