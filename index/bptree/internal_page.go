package bptree

import (
	"encoding/binary"
	"sort"

	"github.com/relstore/reldb-core/common"
)

// InternalPage is a typed view over an internal page's buffer: array[0] is
// an invalid separator paired with the leftmost child; array[i].key for
// i>=1 is the minimum key of the subtree rooted at array[i].value (spec
// §3).
type InternalPage struct {
	header
}

// NewInternalPage wraps buf, which must be exactly common.PageSize bytes.
func NewInternalPage(buf []byte) InternalPage {
	common.Assert(len(buf) == common.PageSize, "internal page buffer must be PageSize")
	return InternalPage{header{buf: buf}}
}

// Init formats buf as an empty internal page.
func (p InternalPage) Init(pageID, parentID common.PageID, maxSize int) {
	common.Assert(maxSize <= MaxInternalCapacity, "internal max_size exceeds page capacity")
	p.setPageType(TypeInternal)
	p.SetLSN(common.InvalidLSN)
	p.SetSize(0)
	p.SetMaxSize(maxSize)
	p.SetParentPageID(parentID)
	p.SetPageID(pageID)
}

func (p InternalPage) slotOffset(i int) int {
	return commonHeaderSize + i*internalEntrySize
}

// KeyAt returns array[i].key. Slot 0's key is meaningless.
func (p InternalPage) KeyAt(i int) int64 {
	off := p.slotOffset(i)
	return int64(binary.LittleEndian.Uint64(p.buf[off:]))
}

func (p InternalPage) setKeyAt(i int, key int64) {
	off := p.slotOffset(i)
	binary.LittleEndian.PutUint64(p.buf[off:], uint64(key))
}

// ValueAt returns array[i].value (a child page id).
func (p InternalPage) ValueAt(i int) common.PageID {
	off := p.slotOffset(i) + 8
	return common.PageID(int32(binary.LittleEndian.Uint32(p.buf[off:])))
}

func (p InternalPage) setValueAt(i int, id common.PageID) {
	off := p.slotOffset(i) + 8
	binary.LittleEndian.PutUint32(p.buf[off:], uint32(int32(id)))
}

func (p InternalPage) setSlot(i int, key int64, value common.PageID) {
	p.setKeyAt(i, key)
	p.setValueAt(i, value)
}

// InitAsRoot writes the two-entry root created when the tree's first split
// happens (spec §4.5.4 step 5): (⊥, leftChild), (sepKey, rightChild).
func (p InternalPage) InitAsRoot(pageID common.PageID, maxSize int, leftChild common.PageID, sepKey int64, rightChild common.PageID) {
	p.Init(pageID, common.InvalidPageID, maxSize)
	p.setSlot(0, 0, leftChild)
	p.setSlot(1, sepKey, rightChild)
	p.SetSize(2)
}

// ValueIndex returns the index of value in array, or -1.
func (p InternalPage) ValueIndex(value common.PageID) int {
	n := p.Size()
	for i := 0; i < n; i++ {
		if p.ValueAt(i) == value {
			return i
		}
	}
	return -1
}

// Lookup returns the child page id to descend into for key: the value of
// the last slot whose key is <= key (slot 0 if key is less than every
// separator).
func (p InternalPage) Lookup(key int64) common.PageID {
	n := p.Size()
	idx := sort.Search(n-1, func(i int) bool { return p.KeyAt(i+1) > key }) + 1
	return p.ValueAt(idx - 1)
}

// InsertAfter inserts (sepKey, value) immediately after the slot holding
// afterValue, shifting later entries right.
func (p InternalPage) InsertAfter(afterValue common.PageID, sepKey int64, value common.PageID) {
	at := p.ValueIndex(afterValue) + 1
	n := p.Size()
	for i := n; i > at; i-- {
		p.setSlot(i, p.KeyAt(i-1), p.ValueAt(i-1))
	}
	p.setSlot(at, sepKey, value)
	p.SetSize(n + 1)
}

// RemoveAt deletes the entry at index i.
func (p InternalPage) RemoveAt(i int) {
	n := p.Size()
	for j := i; j < n-1; j++ {
		p.setSlot(j, p.KeyAt(j+1), p.ValueAt(j+1))
	}
	p.SetSize(n - 1)
}

// MoveHalfTo appends this page's upper half onto dst, used when splitting.
// The moved entries' children must have their parent pointer updated by
// the caller (this view has no access to the buffer pool).
func (p InternalPage) MoveHalfTo(dst InternalPage) []common.PageID {
	n := p.Size()
	mid := n / 2
	moved := make([]common.PageID, 0, n-mid)
	for i := mid; i < n; i++ {
		dst.setSlot(i-mid, p.KeyAt(i), p.ValueAt(i))
		moved = append(moved, p.ValueAt(i))
	}
	dst.SetSize(n - mid)
	p.SetSize(mid)
	return moved
}

// MoveAllTo appends every entry of this page onto dst (coalesce), returning
// the moved children for the caller to re-parent. sepKey becomes the key of
// the first moved entry (the parent's separator for this node).
func (p InternalPage) MoveAllTo(dst InternalPage, sepKey int64) []common.PageID {
	n, dn := p.Size(), dst.Size()
	moved := make([]common.PageID, 0, n)
	for i := 0; i < n; i++ {
		key := p.KeyAt(i)
		if i == 0 {
			key = sepKey
		}
		dst.setSlot(dn+i, key, p.ValueAt(i))
		moved = append(moved, p.ValueAt(i))
	}
	dst.SetSize(dn + n)
	p.SetSize(0)
	return moved
}

// MoveFirstToEndOf pops this page's first entry (re-keyed with sepKey, the
// parent's separator for this page) and appends it to dst. Returns the
// moved child and the key that must become the new parent separator
// between dst and this page (the key of what was this page's second
// entry, now shifted to index 0 where it is unused by Lookup).
func (p InternalPage) MoveFirstToEndOf(dst InternalPage, sepKey int64) (moved common.PageID, newSep int64) {
	value := p.ValueAt(0)
	newSep = p.KeyAt(1)
	p.RemoveAt(0)
	dn := dst.Size()
	dst.setSlot(dn, sepKey, value)
	dst.SetSize(dn + 1)
	return value, newSep
}

// MoveLastToFrontOf pops this page's last entry and prepends it to dst,
// re-keying dst's old first slot with sepKey (the parent separator moving
// down). Returns the moved child and the key that must become the new
// parent separator between this page and dst (the key that had marked the
// start of the moved entry's subtree).
func (p InternalPage) MoveLastToFrontOf(dst InternalPage, sepKey int64) (moved common.PageID, newSep int64) {
	n := p.Size()
	value := p.ValueAt(n - 1)
	newSep = p.KeyAt(n - 1)
	p.SetSize(n - 1)

	dn := dst.Size()
	for i := dn; i > 0; i-- {
		key := dst.KeyAt(i - 1)
		if i == 1 {
			key = sepKey
		}
		dst.setSlot(i, key, dst.ValueAt(i-1))
	}
	dst.setSlot(0, 0, value)
	dst.SetSize(dn + 1)
	return value, newSep
}
