// Package table provides the ordered object stores the ledger keeps its
// state in: a primary B-tree plus any number of secondary indexes, all
// copy-on-write so a whole table can be snapshotted in O(1) and restored
// when a transaction is rejected.
//
// Objects are stored by value. Modifying one is always Get, change the copy,
// then Update, which re-sorts every index the change affects.
package table

import (
	"errors"
	"fmt"

	"github.com/tidwall/btree"
)

var (
	ErrNotFound  = errors.New("object not found")
	ErrDuplicate = errors.New("duplicate object")
)

const degree = 32

type index[T any] struct {
	name    string
	tree    *btree.BTreeG[T]
	unique  bool
	include func(T) bool
}

func (ix *index[T]) covers(item T) bool {
	return ix.include == nil || ix.include(item)
}

// Table is a multi-index collection of T ordered by a primary key
type Table[T any] struct {
	name    string
	primary *btree.BTreeG[T]
	indexes []*index[T]
}

// New creates a table; less defines the primary key order
func New[T any](name string, less func(a, b T) bool) *Table[T] {
	return &Table[T]{
		name:    name,
		primary: newTree(less),
	}
}

func newTree[T any](less func(a, b T) bool) *btree.BTreeG[T] {
	return btree.NewBTreeGOptions(less, btree.Options{Degree: degree, NoLocks: true})
}

// IndexOption configures a secondary index
type IndexOption[T any] func(*index[T])

// Unique rejects inserts that collide with an existing entry of the index
func Unique[T any]() IndexOption[T] {
	return func(ix *index[T]) { ix.unique = true }
}

// Where limits the index to objects matching pred (a partial index)
func Where[T any](pred func(T) bool) IndexOption[T] {
	return func(ix *index[T]) { ix.include = pred }
}

// AddIndex registers a secondary index; must be called before any insert.
// Non-unique indexes must break ties on the primary key.
func (t *Table[T]) AddIndex(name string, less func(a, b T) bool, opts ...IndexOption[T]) {
	if t.primary.Len() > 0 {
		panic(fmt.Sprintf("table %s: index %s added to non-empty table", t.name, name))
	}
	ix := &index[T]{name: name, tree: newTree(less)}
	for _, opt := range opts {
		opt(ix)
	}
	t.indexes = append(t.indexes, ix)
}

func (t *Table[T]) Name() string { return t.name }
func (t *Table[T]) Len() int     { return t.primary.Len() }

// Insert adds a new object; fails if the primary key or a unique index collides
func (t *Table[T]) Insert(item T) error {
	if _, ok := t.primary.Get(item); ok {
		return fmt.Errorf("%s: %w", t.name, ErrDuplicate)
	}
	for _, ix := range t.indexes {
		if ix.unique && ix.covers(item) {
			if _, ok := ix.tree.Get(item); ok {
				return fmt.Errorf("%s.%s: %w", t.name, ix.name, ErrDuplicate)
			}
		}
	}
	t.primary.Set(item)
	for _, ix := range t.indexes {
		if ix.covers(item) {
			ix.tree.Set(item)
		}
	}
	return nil
}

// Get looks an object up by primary key (only the key fields of probe matter)
func (t *Table[T]) Get(probe T) (T, bool) {
	return t.primary.Get(probe)
}

// Update replaces an existing object and re-sorts it in every index
func (t *Table[T]) Update(item T) error {
	old, ok := t.primary.Get(item)
	if !ok {
		return fmt.Errorf("%s: %w", t.name, ErrNotFound)
	}
	for _, ix := range t.indexes {
		if ix.covers(old) {
			ix.tree.Delete(old)
		}
	}
	for _, ix := range t.indexes {
		if ix.unique && ix.covers(item) {
			if _, dup := ix.tree.Get(item); dup {
				// put the old entries back before failing
				for _, back := range t.indexes {
					if back.covers(old) {
						back.tree.Set(old)
					}
				}
				return fmt.Errorf("%s.%s: %w", t.name, ix.name, ErrDuplicate)
			}
		}
	}
	t.primary.Set(item)
	for _, ix := range t.indexes {
		if ix.covers(item) {
			ix.tree.Set(item)
		}
	}
	return nil
}

// Upsert inserts or updates
func (t *Table[T]) Upsert(item T) error {
	if _, ok := t.primary.Get(item); ok {
		return t.Update(item)
	}
	return t.Insert(item)
}

// Remove deletes an object by primary key and returns it
func (t *Table[T]) Remove(probe T) (T, bool) {
	old, ok := t.primary.Delete(probe)
	if !ok {
		return old, false
	}
	for _, ix := range t.indexes {
		if ix.covers(old) {
			ix.tree.Delete(old)
		}
	}
	return old, true
}

// Scan visits every object in primary key order until iter returns false
func (t *Table[T]) Scan(iter func(T) bool) {
	t.primary.Scan(iter)
}

// Ascend visits objects in primary order starting at pivot
func (t *Table[T]) Ascend(pivot T, iter func(T) bool) {
	t.primary.Ascend(pivot, iter)
}

// Items returns every object in primary key order
func (t *Table[T]) Items() []T {
	return t.primary.Items()
}

// Load inserts items into the table, stopping at the first collision
func (t *Table[T]) Load(items []T) error {
	for _, item := range items {
		if err := t.Insert(item); err != nil {
			return err
		}
	}
	return nil
}

// Index returns a read view over a secondary index
func (t *Table[T]) Index(name string) View[T] {
	for _, ix := range t.indexes {
		if ix.name == name {
			return View[T]{tree: ix.tree}
		}
	}
	panic(fmt.Sprintf("table %s: unknown index %s", t.name, name))
}

// Copy returns an independent copy-on-write snapshot of the table
func (t *Table[T]) Copy() *Table[T] {
	cp := &Table[T]{
		name:    t.name,
		primary: t.primary.Copy(),
		indexes: make([]*index[T], len(t.indexes)),
	}
	for i, ix := range t.indexes {
		cp.indexes[i] = &index[T]{
			name:    ix.name,
			tree:    ix.tree.Copy(),
			unique:  ix.unique,
			include: ix.include,
		}
	}
	return cp
}

// View is an ordered read-only cursor source over one index.
// The table must not be modified while a View iteration is running.
type View[T any] struct {
	tree *btree.BTreeG[T]
}

func (v View[T]) Len() int { return v.tree.Len() }

func (v View[T]) Ascend(pivot T, iter func(T) bool) { v.tree.Ascend(pivot, iter) }

func (v View[T]) Descend(pivot T, iter func(T) bool) { v.tree.Descend(pivot, iter) }

func (v View[T]) Scan(iter func(T) bool) { v.tree.Scan(iter) }

func (v View[T]) Get(probe T) (T, bool) { return v.tree.Get(probe) }

func (v View[T]) Min() (T, bool) { return v.tree.Min() }

// First returns the first object at or after pivot that satisfies ok;
// iteration stops at the first object for which more returns false.
func (v View[T]) First(pivot T, more func(T) bool) (T, bool) {
	var (
		found T
		hit   bool
	)
	v.tree.Ascend(pivot, func(item T) bool {
		if !more(item) {
			return false
		}
		found, hit = item, true
		return false
	})
	return found, hit
}

// Collect returns all objects from pivot while more holds
func (v View[T]) Collect(pivot T, more func(T) bool) []T {
	var out []T
	v.tree.Ascend(pivot, func(item T) bool {
		if !more(item) {
			return false
		}
		out = append(out, item)
		return true
	})
	return out
}
