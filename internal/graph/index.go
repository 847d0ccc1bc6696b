package graph

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/netmodel/internal/field"
	"github.com/google/btree"
)

// Presence is a shortcut value that matches on whether a field is set
// rather than on its value.
type Presence int

const (
	Present Presence = iota + 1
	Absent
)

func (p Presence) String() string {
	if p == Present {
		return "PRESENT"
	}
	return "ABSENT"
}

// Index answers equality and presence lookups for one attribute of one
// Collection. Results are member-id bitmaps the caller must not modify.
type Index interface {
	Eq(v any) *roaring.Bitmap
	Any() *roaring.Bitmap
	None() *roaring.Bitmap
}

// Lookup dispatches a shortcut value to the matching Index method.
func Lookup(idx Index, v any) *roaring.Bitmap {
	switch v {
	case Present:
		return idx.Any()
	case Absent:
		return idx.None()
	}
	return idx.Eq(v)
}

type indexEntry struct {
	key any
	id  uint32
}

func lessEntry(a, b indexEntry) bool {
	if o := field.Order(a.key, b.key); o != 0 {
		return o < 0
	}
	return a.id < b.id
}

// sortedIndex keeps (key, id) pairs ordered in a B-tree; members without a
// value live in the empty bucket.
type sortedIndex struct {
	tree    *btree.BTreeG[indexEntry]
	present *roaring.Bitmap
	empty   *roaring.Bitmap
}

func buildSortedIndex(c *Collection, name string) *sortedIndex {
	ix := &sortedIndex{
		tree:    btree.NewG[indexEntry](16, lessEntry),
		present: roaring.New(),
		empty:   roaring.New(),
	}
	it := c.members.Iterator()
	for it.HasNext() {
		id := it.Next()
		v, ok := c.g.arena[id].value(name)
		if !ok || field.IsEmpty(v) {
			ix.empty.Add(id)
			continue
		}
		ix.tree.ReplaceOrInsert(indexEntry{key: v, id: id})
		ix.present.Add(id)
	}
	return ix
}

func (ix *sortedIndex) Eq(v any) *roaring.Bitmap {
	out := roaring.New()
	v = field.Normalize(v)
	if v == nil {
		return ix.empty
	}
	ix.tree.AscendGreaterOrEqual(indexEntry{key: v}, func(e indexEntry) bool {
		if field.Order(e.key, v) != 0 {
			return false
		}
		out.Add(e.id)
		return true
	})
	return out
}

func (ix *sortedIndex) Any() *roaring.Bitmap  { return ix.present }
func (ix *sortedIndex) None() *roaring.Bitmap { return ix.empty }

// linearIndex scans the collection on every lookup. Filter outputs get one
// instead of a sortedIndex since they are rarely queried twice.
type linearIndex struct {
	c    *Collection
	name string
}

func (ix *linearIndex) scan(match func(v any) bool) *roaring.Bitmap {
	out := roaring.New()
	it := ix.c.members.Iterator()
	for it.HasNext() {
		id := it.Next()
		v, _ := ix.c.g.arena[id].value(ix.name)
		if match(v) {
			out.Add(id)
		}
	}
	return out
}

func (ix *linearIndex) Eq(v any) *roaring.Bitmap {
	return ix.scan(func(x any) bool { return !field.IsEmpty(x) && field.Same(x, v) })
}

func (ix *linearIndex) Any() *roaring.Bitmap {
	return ix.scan(func(x any) bool { return !field.IsEmpty(x) })
}

func (ix *linearIndex) None() *roaring.Bitmap {
	return ix.scan(field.IsEmpty)
}
