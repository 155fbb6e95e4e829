package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
)

func TestOptionSymbol_ReducesStrike(t *testing.T) {
	strike := asset.NewPrice(asset.Units(2, symA), asset.Units(6, symB))
	assert.Equal(t, asset.Symbol("OPT.AAA.BBB.C.1.3.1700086400"), OptionSymbol(strike, true, 1_700_086_400))
	assert.Equal(t, asset.Symbol("OPT.AAA.BBB.P.1.3.1700086400"), OptionSymbol(strike, false, 1_700_086_400))
}

func TestCallOption_WriteExerciseCancel(t *testing.T) {
	e := newEngine(t)
	fund(t, e, alice, asset.Units(2, symA))
	fund(t, e, bob, asset.Units(3, symB))
	strike := asset.NewPrice(asset.Units(1, symA), asset.Units(3, symB))
	expiry := genesisTime + 86400

	_, err := e.PlaceOptionOrder(OptionRequest{Owner: alice, OrderID: "o1", Units: asset.New(1, symA), Strike: strike, Call: true, Expiration: expiry})
	require.ErrorIs(t, err, ErrInvalidOperation, "fractional units")

	var sym asset.Symbol
	require.NoError(t, e.Apply(func() error {
		sym, err = e.PlaceOptionOrder(OptionRequest{Owner: alice, OrderID: "o1", Units: asset.Units(2, symA), Strike: strike, Call: true, Expiration: expiry})
		return err
	}))
	assert.Zero(t, liquid(e, alice, symA))
	assert.Equal(t, asset.Units(2, sym).Amount, liquid(e, alice, sym))
	require.NoError(t, e.AuditSupply())

	require.NoError(t, e.Transfer(alice, bob, asset.Units(1, sym)))
	require.NoError(t, e.Apply(func() error { return e.ExerciseOption(bob, asset.Units(1, sym)) }))
	assert.Equal(t, asset.Units(1, symA).Amount, liquid(e, bob, symA))
	assert.Zero(t, liquid(e, bob, symB))
	assert.Equal(t, asset.Units(3, symB).Amount, liquid(e, alice, symB))
	assert.Len(t, eventsOf(e, state.EventOptionExercise), 1)

	require.NoError(t, e.CancelOptionOrder(alice, "o1"))
	assert.Equal(t, asset.Units(1, symA).Amount, liquid(e, alice, symA))
	_, ok := e.State().Book.OptionByAccount(alice, "o1")
	assert.False(t, ok)
	d, _ := e.State().Ledger.Supply(sym)
	assert.Zero(t, d.TotalSupply)
	require.NoError(t, e.AuditSupply())
}

func TestPutOption_ExpiresAndRefunds(t *testing.T) {
	e := newEngine(t)
	fund(t, e, alice, asset.Units(3, symB))
	strike := asset.NewPrice(asset.Units(1, symA), asset.Units(3, symB))
	expiry := genesisTime + 600

	require.NoError(t, e.Apply(func() error {
		_, err := e.PlaceOptionOrder(OptionRequest{Owner: alice, OrderID: "p1", Units: asset.Units(1, symA), Strike: strike, Expiration: expiry})
		return err
	}))
	assert.Zero(t, liquid(e, alice, symB), "a put locks the strike payment")

	require.NoError(t, e.RunMaintenance(2, expiry))
	assert.Equal(t, asset.Units(3, symB).Amount, liquid(e, alice, symB))
	cancels := eventsOf(e, state.EventCancelOrder)
	require.Len(t, cancels, 1)
	assert.Equal(t, "expired", cancels[0].Data.(state.CancelOrder).Reason)
	require.NoError(t, e.AuditSupply(), "unexercised tokens stay in supply")
}
