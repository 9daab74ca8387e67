package bptree

import (
	"github.com/relstore/reldb-core/common"
	"github.com/relstore/reldb-core/storage"
)

// Iterator walks the leaf chain in key order (spec's begin()/begin(key)),
// grounded on original_source's IndexIterator: it pins exactly the leaf
// page it currently sits on and crosses to the next leaf via next_leaf
// once exhausted, matching index_iterator.cpp's operator++. It does not
// hold the leaf's latch between calls — each accessor takes it only for
// the read it needs, the same discipline BPlusTree.Get uses.
type Iterator struct {
	tree  *BPlusTree
	guard *storage.PageGuard
	idx   int
}

// IsEnd reports whether the iterator has been exhausted, the sentinel
// spec.md §4.5's begin()/end() range expects.
func (it *Iterator) IsEnd() bool {
	return it.guard == nil
}

// Key returns the current entry's key. Must not be called when IsEnd.
func (it *Iterator) Key() int64 {
	common.Assert(!it.IsEnd(), "bptree: Key called on an ended iterator")
	it.guard.Frame().Latch.RLock()
	defer it.guard.Frame().Latch.RUnlock()
	return NewLeafPage(it.guard.Frame().Bytes[:]).KeyAt(it.idx)
}

// Value returns the current entry's RID. Must not be called when IsEnd.
func (it *Iterator) Value() common.RID {
	common.Assert(!it.IsEnd(), "bptree: Value called on an ended iterator")
	it.guard.Frame().Latch.RLock()
	defer it.guard.Frame().Latch.RUnlock()
	return NewLeafPage(it.guard.Frame().Bytes[:]).ValueAt(it.idx)
}

// Next advances to the following entry, a no-op once IsEnd.
func (it *Iterator) Next() {
	if it.IsEnd() {
		return
	}
	it.guard.Frame().Latch.RLock()
	atLeafEnd := it.idx >= NewLeafPage(it.guard.Frame().Bytes[:]).Size()-1
	it.guard.Frame().Latch.RUnlock()

	if !atLeafEnd {
		it.idx++
		return
	}
	it.crossToNextLeaf()
}

// crossToNextLeaf releases the current leaf and pins whatever next_leaf
// names, or ends the iterator if there is none.
func (it *Iterator) crossToNextLeaf() {
	it.guard.Frame().Latch.RLock()
	nextID := NewLeafPage(it.guard.Frame().Bytes[:]).NextPageID()
	it.guard.Frame().Latch.RUnlock()

	it.guard.Unpin(false)
	if nextID == common.InvalidPageID {
		it.guard = nil
		it.idx = -1
		return
	}
	next, ok := it.tree.pool.Fetch(nextID)
	if !ok {
		it.guard = nil
		it.idx = -1
		return
	}
	it.guard = next
	it.idx = 0
}

// Close releases the iterator's currently pinned leaf, if any. Callers
// that run an iterator to IsEnd need not call this; it exists for early
// termination of a partial scan.
func (it *Iterator) Close() {
	if it.guard != nil {
		it.guard.Unpin(false)
		it.guard = nil
	}
}

// Begin returns an iterator positioned at the tree's first entry (spec's
// begin()), or an already-ended iterator if the tree is empty.
func (t *BPlusTree) Begin() *Iterator {
	leaf, ok := t.descendToLeaf(func(i InternalPage) common.PageID { return i.ValueAt(0) })
	if !ok {
		return &Iterator{tree: t, idx: -1}
	}
	leaf.Frame().Latch.RUnlock()
	return &Iterator{tree: t, guard: leaf, idx: 0}
}

// BeginAt returns an iterator positioned at the first entry whose key is
// >= key (spec's begin(key)), or an ended iterator if no such entry exists.
func (t *BPlusTree) BeginAt(key int64) *Iterator {
	leaf, ok := t.descendToLeaf(func(i InternalPage) common.PageID { return i.Lookup(key) })
	if !ok {
		return &Iterator{tree: t, idx: -1}
	}
	view := NewLeafPage(leaf.Frame().Bytes[:])
	idx, _ := view.KeyIndex(key)
	size := view.Size()
	leaf.Frame().Latch.RUnlock()

	it := &Iterator{tree: t, guard: leaf, idx: idx}
	if idx >= size {
		it.crossToNextLeaf()
	}
	return it
}
