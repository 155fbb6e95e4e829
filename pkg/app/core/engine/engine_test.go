package engine

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/hypercredit/params"
	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/market"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
)

const (
	symA asset.Symbol = "AAA"
	symB asset.Symbol = "BBB"
	coin              = asset.CoinSymbol
	usd               = asset.USDSymbol
)

const genesisTime int64 = 1_700_000_000

var (
	issuer = common.HexToAddress("0x1000")
	alice  = common.HexToAddress("0xa11ce")
	bob    = common.HexToAddress("0xb0b")
	carol  = common.HexToAddress("0xca201")
)

// feeless parameters keep expected amounts exact
func testParams() params.Engine {
	p := params.DefaultEngine()
	p.TradingFeePercent = 0
	p.PoolFeePercent = 0
	p.ValidateInvariants = true
	return p
}

func setupEngine(t require.TestingT, log *zap.Logger) *Engine {
	return setupEngineWith(t, testParams(), log)
}

func setupEngineWith(t require.TestingT, p params.Engine, log *zap.Logger) *Engine {
	e := New(state.New(), p, WithLogger(log))
	e.SetHead(1, genesisTime)
	require.NoError(t, e.CreateAsset(market.AssetObject{Symbol: coin, Issuer: issuer, Type: market.Currency}))
	require.NoError(t, e.CreateAsset(market.AssetObject{Symbol: symA, Issuer: issuer, Type: market.Standard}))
	require.NoError(t, e.CreateAsset(market.AssetObject{Symbol: symB, Issuer: issuer, Type: market.Standard}))
	require.NoError(t, e.CreateStablecoin(market.AssetObject{Symbol: usd, Issuer: issuer}, coin))
	return e
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return setupEngine(t, zaptest.NewLogger(t))
}

// newFeeEngine runs with the default fee schedule
func newFeeEngine(t *testing.T) *Engine {
	t.Helper()
	p := params.DefaultEngine()
	p.ValidateInvariants = true
	return setupEngineWith(t, p, zaptest.NewLogger(t))
}

func fund(t require.TestingT, e *Engine, to common.Address, amounts ...asset.Asset) {
	for _, a := range amounts {
		require.NoError(t, e.Issue(issuer, to, a))
	}
}

func liquid(e *Engine, owner common.Address, sym asset.Symbol) int64 {
	return e.State().Ledger.GetLiquidBalance(owner, sym).Amount
}

func eventsOf(e *Engine, typ state.EventType) []state.Event {
	var out []state.Event
	for _, ev := range e.State().Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestApply_RollsBackOnError(t *testing.T) {
	e := newEngine(t)
	fund(t, e, alice, asset.New(100, symA))
	before := len(e.State().Events())
	boom := errors.New("boom")

	err := e.Apply(func() error {
		require.NoError(t, e.Transfer(alice, bob, asset.New(40, symA)))
		e.State().Emit(state.EventFillOrder, state.FillOrder{})
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(100), liquid(e, alice, symA))
	assert.Zero(t, liquid(e, bob, symA))
	assert.Len(t, e.State().Events(), before)
	require.NoError(t, e.AuditSupply())
}

func TestApply_RecoversPreconditionPanic(t *testing.T) {
	e := newEngine(t)
	fund(t, e, alice, asset.New(100, symA))

	err := e.Apply(func() error {
		require.NoError(t, e.Transfer(alice, bob, asset.New(40, symA)))
		asset.New(1, symA).Add(asset.New(1, symB))
		return nil
	})
	var pe *asset.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, int64(100), liquid(e, alice, symA))
}

func TestIssue_RequiresIssuer(t *testing.T) {
	e := newEngine(t)
	require.ErrorIs(t, e.Issue(alice, alice, asset.New(1, symA)), ErrNotIssuer)
	require.ErrorIs(t, e.Issue(issuer, alice, asset.New(1, "NOPE")), ErrUnknownAsset)
	require.ErrorIs(t, e.Issue(issuer, alice, asset.New(1, usd)), ErrInvalidOperation)
}

func TestSavingsWithdraw_CompletesAfterDelay(t *testing.T) {
	e := newEngine(t)
	fund(t, e, alice, asset.New(100, symA))
	require.NoError(t, e.TransferToSavings(alice, alice, asset.New(60, symA)))
	require.NoError(t, e.TransferFromSavings(alice, "w1", bob, asset.New(50, symA)))
	require.ErrorIs(t, e.TransferFromSavings(alice, "w1", bob, asset.New(5, symA)), ErrOrderExists)
	require.NoError(t, e.AuditSupply())

	require.NoError(t, e.RunMaintenance(2, genesisTime+60))
	assert.Zero(t, liquid(e, bob, symA), "still waiting")

	delay := seconds(e.Params().SavingsWithdrawDelay)
	require.NoError(t, e.RunMaintenance(3, genesisTime+delay))
	assert.Equal(t, int64(50), liquid(e, bob, symA))
	assert.Equal(t, int64(10), e.State().Ledger.GetSavingsBalance(alice, symA).Amount)
	assert.Len(t, eventsOf(e, state.EventFillSavingsWithdraw), 1)
}

func TestUnstake_PaysInInstalments(t *testing.T) {
	e := newEngine(t)
	fund(t, e, alice, asset.New(100, symA))
	require.NoError(t, e.Stake(alice, asset.New(100, symA)))
	require.NoError(t, e.Unstake(alice, asset.New(100, symA)))

	step := seconds(e.Params().UnstakeInterval)
	for i := int64(1); i <= e.Params().UnstakeIntervals; i++ {
		require.NoError(t, e.RunMaintenance(1+i, genesisTime+i*step))
		assert.Equal(t, 25*i, liquid(e, alice, symA))
	}
	assert.Zero(t, e.State().Ledger.GetStakedBalance(alice, symA).Amount)
}

func TestRecurringTransfer_CancelsWhenUnfunded(t *testing.T) {
	e := newEngine(t)
	fund(t, e, alice, asset.New(15, symA))
	require.NoError(t, e.SetRecurringTransfer(alice, bob, asset.New(10, symA), 3600, 5))

	require.NoError(t, e.RunMaintenance(2, genesisTime+3600))
	assert.Equal(t, int64(10), liquid(e, bob, symA))

	require.NoError(t, e.RunMaintenance(3, genesisTime+7200))
	assert.Equal(t, int64(10), liquid(e, bob, symA))
	_, ok := e.State().Ledger.GetRecurringTransfer(alice, bob, symA)
	assert.False(t, ok)
	assert.Len(t, eventsOf(e, state.EventFailedRecurring), 1)
}

func TestDelegate_LocksStakeAgainstUnstake(t *testing.T) {
	e := newEngine(t)
	fund(t, e, alice, asset.New(100, symA))
	require.NoError(t, e.Stake(alice, asset.New(100, symA)))
	require.NoError(t, e.Delegate(alice, bob, asset.New(60, symA)))
	require.ErrorIs(t, e.Delegate(alice, alice, asset.New(1, symA)), ErrInvalidOperation)
	assert.Equal(t, int64(60), e.State().Ledger.GetBalance(bob, symA).Receiving)

	var be *account.BalanceError
	require.ErrorAs(t, e.Unstake(alice, asset.New(50, symA)), &be)
	assert.Equal(t, int64(40), be.Available.Amount)

	require.NoError(t, e.Undelegate(alice, bob, asset.New(60, symA)))
	assert.Zero(t, e.State().Ledger.GetBalance(bob, symA).Receiving)
	require.NoError(t, e.Unstake(alice, asset.New(50, symA)))
	require.NoError(t, e.AuditSupply())
}
