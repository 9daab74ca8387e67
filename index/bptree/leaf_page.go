package bptree

import (
	"encoding/binary"
	"sort"

	"github.com/relstore/reldb-core/common"
)

// LeafPage is a typed view over a leaf page's buffer: sorted (key, value)
// pairs plus a next_leaf pointer chaining leaves left to right for range
// iteration (spec §4.5.3).
type LeafPage struct {
	header
}

// NewLeafPage wraps buf, which must be exactly common.PageSize bytes.
func NewLeafPage(buf []byte) LeafPage {
	common.Assert(len(buf) == common.PageSize, "leaf page buffer must be PageSize")
	return LeafPage{header{buf: buf}}
}

// Init formats buf as an empty leaf with the given identity and max size.
func (l LeafPage) Init(pageID, parentID common.PageID, maxSize int) {
	common.Assert(maxSize <= MaxLeafCapacity, "leaf max_size exceeds page capacity")
	l.setPageType(TypeLeaf)
	l.SetLSN(common.InvalidLSN)
	l.SetSize(0)
	l.SetMaxSize(maxSize)
	l.SetParentPageID(parentID)
	l.SetPageID(pageID)
	l.SetNextPageID(common.InvalidPageID)
}

func (l LeafPage) NextPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(l.buf[offLeafNextPageID:])))
}

func (l LeafPage) SetNextPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(l.buf[offLeafNextPageID:], uint32(int32(id)))
}

func (l LeafPage) slotOffset(i int) int {
	return leafHeaderSize + i*leafEntrySize
}

// KeyAt returns the key at slot i.
func (l LeafPage) KeyAt(i int) int64 {
	off := l.slotOffset(i)
	return int64(binary.LittleEndian.Uint64(l.buf[off:]))
}

// ValueAt returns the value at slot i.
func (l LeafPage) ValueAt(i int) common.RID {
	off := l.slotOffset(i) + 8
	pid := common.PageID(int32(binary.LittleEndian.Uint32(l.buf[off:])))
	slot := binary.LittleEndian.Uint32(l.buf[off+4:])
	return common.RID{PageID: pid, Slot: slot}
}

func (l LeafPage) setSlot(i int, key int64, value common.RID) {
	off := l.slotOffset(i)
	binary.LittleEndian.PutUint64(l.buf[off:], uint64(key))
	binary.LittleEndian.PutUint32(l.buf[off+8:], uint32(int32(value.PageID)))
	binary.LittleEndian.PutUint32(l.buf[off+12:], value.Slot)
}

// KeyIndex returns the position of the first slot whose key is >= key
// (lower bound), and whether that slot's key equals key exactly.
func (l LeafPage) KeyIndex(key int64) (idx int, found bool) {
	n := l.Size()
	idx = sort.Search(n, func(i int) bool { return l.KeyAt(i) >= key })
	found = idx < n && l.KeyAt(idx) == key
	return idx, found
}

// Insert places (key, value) in sorted position. Returns false if key is
// already present.
func (l LeafPage) Insert(key int64, value common.RID) bool {
	idx, found := l.KeyIndex(key)
	if found {
		return false
	}
	n := l.Size()
	for i := n; i > idx; i-- {
		k, v := l.KeyAt(i-1), l.ValueAt(i-1)
		l.setSlot(i, k, v)
	}
	l.setSlot(idx, key, value)
	l.SetSize(n + 1)
	return true
}

// Remove deletes key if present, returning whether it was found.
func (l LeafPage) Remove(key int64) bool {
	idx, found := l.KeyIndex(key)
	if !found {
		return false
	}
	n := l.Size()
	for i := idx; i < n-1; i++ {
		k, v := l.KeyAt(i+1), l.ValueAt(i+1)
		l.setSlot(i, k, v)
	}
	l.SetSize(n - 1)
	return true
}

// MoveHalfTo appends this leaf's upper half onto dst, used when splitting.
func (l LeafPage) MoveHalfTo(dst LeafPage) {
	n := l.Size()
	mid := n / 2
	for i := mid; i < n; i++ {
		dst.setSlot(i-mid, l.KeyAt(i), l.ValueAt(i))
	}
	dst.SetSize(n - mid)
	l.SetSize(mid)
}

// MoveAllTo appends every entry of this leaf onto dst (coalesce).
func (l LeafPage) MoveAllTo(dst LeafPage) {
	n, dn := l.Size(), dst.Size()
	for i := 0; i < n; i++ {
		dst.setSlot(dn+i, l.KeyAt(i), l.ValueAt(i))
	}
	dst.SetSize(dn + n)
	dst.SetNextPageID(l.NextPageID())
	l.SetSize(0)
}

// MoveFirstToEndOf pops this leaf's first entry and appends it to dst
// (right-to-left redistribution).
func (l LeafPage) MoveFirstToEndOf(dst LeafPage) {
	key, value := l.KeyAt(0), l.ValueAt(0)
	l.Remove(key)
	dn := dst.Size()
	dst.setSlot(dn, key, value)
	dst.SetSize(dn + 1)
}

// MoveLastToFrontOf pops this leaf's last entry and prepends it to dst
// (left-to-right redistribution).
func (l LeafPage) MoveLastToFrontOf(dst LeafPage) {
	n := l.Size()
	key, value := l.KeyAt(n-1), l.ValueAt(n-1)
	l.SetSize(n - 1)
	dn := dst.Size()
	for i := dn; i > 0; i-- {
		k, v := dst.KeyAt(i-1), dst.ValueAt(i-1)
		dst.setSlot(i, k, v)
	}
	dst.setSlot(0, key, value)
	dst.SetSize(dn + 1)
}
