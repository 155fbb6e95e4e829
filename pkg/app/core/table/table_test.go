package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	ID    uint64
	Owner string
	Ref   string
	Price int64
	Open  bool
}

func newOrders() *Table[order] {
	t := New("orders", func(a, b order) bool { return a.ID < b.ID })
	t.AddIndex("by_price", func(a, b order) bool {
		if a.Price != b.Price {
			return a.Price > b.Price
		}
		return a.ID < b.ID
	}, Where(func(o order) bool { return o.Open }))
	t.AddIndex("by_ref", func(a, b order) bool {
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		return a.Ref < b.Ref
	}, Unique[order]())
	return t
}

func TestTable_InsertGetUpdateRemove(t *testing.T) {
	tbl := newOrders()
	require.NoError(t, tbl.Insert(order{ID: 1, Owner: "alice", Ref: "a", Price: 10, Open: true}))
	require.NoError(t, tbl.Insert(order{ID: 2, Owner: "bob", Ref: "a", Price: 30, Open: true}))
	require.NoError(t, tbl.Insert(order{ID: 3, Owner: "alice", Ref: "b", Price: 20, Open: true}))

	require.ErrorIs(t, tbl.Insert(order{ID: 1}), ErrDuplicate)
	require.ErrorIs(t, tbl.Insert(order{ID: 9, Owner: "alice", Ref: "a"}), ErrDuplicate)

	best, ok := tbl.Index("by_price").Min()
	require.True(t, ok)
	assert.Equal(t, uint64(2), best.ID)

	// re-sort on update
	o, ok := tbl.Get(order{ID: 1})
	require.True(t, ok)
	o.Price = 50
	require.NoError(t, tbl.Update(o))
	best, _ = tbl.Index("by_price").Min()
	assert.Equal(t, uint64(1), best.ID)

	// partial index drops closed objects
	o.Open = false
	require.NoError(t, tbl.Update(o))
	assert.Equal(t, 2, tbl.Index("by_price").Len())
	assert.Equal(t, 3, tbl.Len())

	removed, ok := tbl.Remove(order{ID: 2})
	require.True(t, ok)
	assert.Equal(t, "bob", removed.Owner)
	_, ok = tbl.Index("by_ref").Get(order{Owner: "bob", Ref: "a"})
	assert.False(t, ok)

	require.ErrorIs(t, tbl.Update(order{ID: 42}), ErrNotFound)
}

func TestTable_UpdateRejectsUniqueCollision(t *testing.T) {
	tbl := newOrders()
	require.NoError(t, tbl.Insert(order{ID: 1, Owner: "alice", Ref: "a", Open: true}))
	require.NoError(t, tbl.Insert(order{ID: 2, Owner: "alice", Ref: "b", Open: true}))

	err := tbl.Update(order{ID: 2, Owner: "alice", Ref: "a", Open: true})
	require.ErrorIs(t, err, ErrDuplicate)

	got, ok := tbl.Index("by_ref").Get(order{Owner: "alice", Ref: "b"})
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.ID)
}

func TestTable_CopyIsIndependent(t *testing.T) {
	tbl := newOrders()
	require.NoError(t, tbl.Insert(order{ID: 1, Owner: "alice", Ref: "a", Price: 10, Open: true}))
	snap := tbl.Copy()

	require.NoError(t, tbl.Insert(order{ID: 2, Owner: "bob", Ref: "a", Price: 30, Open: true}))
	o, _ := tbl.Get(order{ID: 1})
	o.Price = 99
	require.NoError(t, tbl.Update(o))

	assert.Equal(t, 1, snap.Len())
	old, ok := snap.Get(order{ID: 1})
	require.True(t, ok)
	assert.Equal(t, int64(10), old.Price)
	assert.Equal(t, 1, snap.Index("by_price").Len())
}

func TestView_FirstAndCollect(t *testing.T) {
	tbl := newOrders()
	for i, p := range []int64{5, 40, 25, 15} {
		require.NoError(t, tbl.Insert(order{ID: uint64(i + 1), Owner: "o", Ref: string(rune('a' + i)), Price: p, Open: true}))
	}
	v := tbl.Index("by_price")

	atLeast20 := func(o order) bool { return o.Price >= 20 }
	first, ok := v.First(order{Price: 1 << 62}, atLeast20)
	require.True(t, ok)
	assert.Equal(t, int64(40), first.Price)

	got := v.Collect(order{Price: 1 << 62}, atLeast20)
	require.Len(t, got, 2)
	assert.Equal(t, int64(25), got[1].Price)

	_, ok = v.First(order{Price: 1 << 62}, func(o order) bool { return o.Price > 100 })
	assert.False(t, ok)
}
