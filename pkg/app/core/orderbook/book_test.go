package orderbook

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
)

func limit(id uint64, owner common.Address, orderID string, sell, receive asset.Asset) LimitOrder {
	return LimitOrder{
		ID:         id,
		Owner:      owner,
		OrderID:    orderID,
		SellPrice:  asset.NewPrice(sell, receive),
		ForSale:    sell.Amount,
		Expiration: int64(id) * 100,
	}
}

func TestBook_BestLimitOrdering(t *testing.T) {
	b := NewBook()
	// selling COIN for USD: 1 COIN per 2 USD, 1 per 1, 1 per 3
	require.NoError(t, b.InsertLimit(limit(1, alice, "a", asset.New(100, asset.CoinSymbol), asset.New(200, asset.USDSymbol))))
	require.NoError(t, b.InsertLimit(limit(2, bob, "b", asset.New(100, asset.CoinSymbol), asset.New(100, asset.USDSymbol))))
	require.NoError(t, b.InsertLimit(limit(3, bob, "c", asset.New(100, asset.CoinSymbol), asset.New(300, asset.USDSymbol))))
	// same price as order 2, later
	require.NoError(t, b.InsertLimit(limit(4, alice, "d", asset.New(50, asset.CoinSymbol), asset.New(50, asset.USDSymbol))))
	// other side of the market
	require.NoError(t, b.InsertLimit(limit(5, alice, "e", asset.New(10, asset.USDSymbol), asset.New(5, asset.CoinSymbol))))

	best, ok := b.BestLimit(asset.CoinSymbol, asset.USDSymbol)
	require.True(t, ok)
	assert.Equal(t, uint64(2), best.ID)

	var ids []uint64
	b.LimitsByPrice(asset.CoinSymbol, asset.USDSymbol, func(o LimitOrder) bool {
		ids = append(ids, o.ID)
		return true
	})
	assert.Equal(t, []uint64{2, 4, 1, 3}, ids)

	best, ok = b.BestLimit(asset.USDSymbol, asset.CoinSymbol)
	require.True(t, ok)
	assert.Equal(t, uint64(5), best.ID)

	_, ok = b.BestLimit(asset.EquitySymbol, asset.USDSymbol)
	assert.False(t, ok)
}

func TestBook_LimitAccountIndexUnique(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.InsertLimit(limit(1, alice, "x", asset.New(1, asset.CoinSymbol), asset.New(1, asset.USDSymbol))))
	require.Error(t, b.InsertLimit(limit(2, alice, "x", asset.New(1, asset.CoinSymbol), asset.New(1, asset.USDSymbol))))

	o, ok := b.LimitByAccount(alice, "x")
	require.True(t, ok)
	assert.Equal(t, uint64(1), o.ID)

	_, ok = b.RemoveLimit(1)
	require.True(t, ok)
	_, ok = b.LimitByAccount(alice, "x")
	assert.False(t, ok)
}

func TestBook_ExpiredLimits(t *testing.T) {
	b := NewBook()
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, b.InsertLimit(limit(i, alice, string(rune('a'+i)), asset.New(1, asset.CoinSymbol), asset.New(1, asset.USDSymbol))))
	}
	assert.Len(t, b.ExpiredLimits(99), 0)
	assert.Len(t, b.ExpiredLimits(200), 2)
}

func TestBook_MarginOrdersLeaveBookWhenEmpty(t *testing.T) {
	b := NewBook()
	m := MarginOrder{
		ID:              1,
		Owner:           alice,
		OrderID:         "m",
		SellPrice:       asset.NewPrice(asset.New(1, asset.USDSymbol), asset.New(1, asset.CoinSymbol)),
		Collateral:      asset.New(100, asset.CoinSymbol),
		Debt:            asset.New(100, asset.USDSymbol),
		DebtBalance:     asset.New(100, asset.USDSymbol),
		PositionBalance: asset.Zero(asset.CoinSymbol),
	}
	require.NoError(t, b.InsertMargin(m))
	_, ok := b.BestMargin(asset.USDSymbol, asset.CoinSymbol)
	require.True(t, ok)

	m.DebtBalance = asset.Zero(asset.USDSymbol)
	m.PositionBalance = asset.New(100, asset.CoinSymbol)
	require.NoError(t, b.UpdateMargin(m))
	_, ok = b.BestMargin(asset.USDSymbol, asset.CoinSymbol)
	assert.False(t, ok)

	// flipping to liquidating puts it on the other side
	m.Liquidating = true
	m.SellPrice = m.SellPrice.Invert()
	require.NoError(t, b.UpdateMargin(m))
	got, ok := b.BestMargin(asset.CoinSymbol, asset.USDSymbol)
	require.True(t, ok)
	assert.Equal(t, asset.New(100, asset.CoinSymbol), got.AmountForSale())
	assert.Equal(t, []uint64{1}, b.MarginIDsByGroup())
}

func TestBook_LeastCollateralized(t *testing.T) {
	b := NewBook()
	calls := []CallOrder{
		{ID: 1, Borrower: alice, Collateral: asset.New(300, asset.CoinSymbol), Debt: asset.New(100, asset.USDSymbol)},
		{ID: 2, Borrower: bob, Collateral: asset.New(200, asset.CoinSymbol), Debt: asset.New(100, asset.USDSymbol)},
		{ID: 3, Borrower: bob, Collateral: asset.New(10, asset.CoinSymbol), Debt: asset.New(100, "EUR")},
	}
	for _, c := range calls {
		require.NoError(t, b.InsertCall(c))
	}
	least, ok := b.LeastCollateralized(asset.USDSymbol)
	require.True(t, ok)
	assert.Equal(t, uint64(2), least.ID)

	all := b.CallsByCollateral(asset.USDSymbol)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(1), all[1].ID)

	// one position per borrower and stablecoin
	require.Error(t, b.InsertCall(CallOrder{ID: 4, Borrower: bob, Collateral: asset.New(1, asset.CoinSymbol), Debt: asset.New(1, asset.USDSymbol)}))
	c, ok := b.CallByAccount(bob, "EUR")
	require.True(t, ok)
	assert.Equal(t, uint64(3), c.ID)
}

func TestBook_BidsByRatio(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.InsertBid(CollateralBid{ID: 1, Bidder: alice, AdditionalCollateral: asset.New(10, asset.CoinSymbol), DebtCovered: asset.New(100, asset.USDSymbol)}))
	require.NoError(t, b.InsertBid(CollateralBid{ID: 2, Bidder: bob, AdditionalCollateral: asset.New(50, asset.CoinSymbol), DebtCovered: asset.New(100, asset.USDSymbol)}))
	require.Error(t, b.InsertBid(CollateralBid{ID: 3, Bidder: bob, AdditionalCollateral: asset.New(0, asset.CoinSymbol), DebtCovered: asset.New(100, asset.USDSymbol)}))

	bids := b.BidsByRatio(asset.USDSymbol)
	require.Len(t, bids, 2)
	assert.Equal(t, uint64(2), bids[0].ID)
}

func TestBook_CopyIsolation(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.InsertLimit(limit(1, alice, "a", asset.New(1, asset.CoinSymbol), asset.New(1, asset.USDSymbol))))
	snap := b.Copy()
	_, ok := b.RemoveLimit(1)
	require.True(t, ok)
	assert.Equal(t, 0, b.LimitCount())
	assert.Equal(t, 1, snap.LimitCount())
}

func TestBook_Depth(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.InsertLimit(limit(1, alice, "a", asset.New(100, asset.CoinSymbol), asset.New(200, asset.USDSymbol))))
	require.NoError(t, b.InsertLimit(limit(2, bob, "b", asset.New(50, asset.CoinSymbol), asset.New(100, asset.USDSymbol))))
	require.NoError(t, b.InsertLimit(limit(3, bob, "c", asset.New(10, asset.CoinSymbol), asset.New(10, asset.USDSymbol))))
	require.NoError(t, b.InsertMargin(MarginOrder{
		ID:              4,
		Owner:           alice,
		OrderID:         "m",
		SellPrice:       asset.NewPrice(asset.New(1, asset.CoinSymbol), asset.New(2, asset.USDSymbol)),
		Liquidating:     true,
		Debt:            asset.New(1, asset.USDSymbol),
		PositionBalance: asset.New(5, asset.CoinSymbol),
	}))

	levels := b.Depth(asset.CoinSymbol, asset.USDSymbol, 0)
	require.Len(t, levels, 2)
	assert.Equal(t, asset.New(10, asset.CoinSymbol), levels[0].ForSale)
	assert.Equal(t, asset.New(155, asset.CoinSymbol), levels[1].ForSale)
	assert.Equal(t, 3, levels[1].Orders)

	assert.Len(t, b.Depth(asset.CoinSymbol, asset.USDSymbol, 1), 1)
}
