package bptree

import (
	"testing"

	"github.com/relstore/reldb-core/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInternal(maxSize int) InternalPage {
	buf := make([]byte, common.PageSize)
	p := NewInternalPage(buf)
	p.Init(1, common.InvalidPageID, maxSize)
	return p
}

func TestInternalPageInitAsRoot(t *testing.T) {
	p := newTestInternal(10)
	p.InitAsRoot(1, 10, 100, 50, 200)

	assert.Equal(t, 2, p.Size())
	assert.Equal(t, common.PageID(100), p.ValueAt(0))
	assert.Equal(t, int64(50), p.KeyAt(1))
	assert.Equal(t, common.PageID(200), p.ValueAt(1))
}

func TestInternalPageLookup(t *testing.T) {
	p := newTestInternal(10)
	p.InitAsRoot(1, 10, 100, 50, 200)
	p.InsertAfter(200, 80, 300)

	assert.Equal(t, common.PageID(100), p.Lookup(10))
	assert.Equal(t, common.PageID(100), p.Lookup(49))
	assert.Equal(t, common.PageID(200), p.Lookup(50))
	assert.Equal(t, common.PageID(200), p.Lookup(79))
	assert.Equal(t, common.PageID(300), p.Lookup(80))
	assert.Equal(t, common.PageID(300), p.Lookup(1000))
}

func TestInternalPageInsertAfterShiftsRight(t *testing.T) {
	p := newTestInternal(10)
	p.InitAsRoot(1, 10, 100, 50, 200)
	p.InsertAfter(100, 25, 150)

	require.Equal(t, 3, p.Size())
	assert.Equal(t, common.PageID(100), p.ValueAt(0))
	assert.Equal(t, int64(25), p.KeyAt(1))
	assert.Equal(t, common.PageID(150), p.ValueAt(1))
	assert.Equal(t, int64(50), p.KeyAt(2))
	assert.Equal(t, common.PageID(200), p.ValueAt(2))
}

func TestInternalPageRemoveAt(t *testing.T) {
	p := newTestInternal(10)
	p.InitAsRoot(1, 10, 100, 50, 200)
	p.RemoveAt(1)
	require.Equal(t, 1, p.Size())
	assert.Equal(t, common.PageID(100), p.ValueAt(0))
}

func TestInternalPageMoveHalfTo(t *testing.T) {
	p := newTestInternal(10)
	p.InitAsRoot(1, 10, 100, 10, 200)
	p.InsertAfter(200, 20, 300)
	p.InsertAfter(300, 30, 400)

	dst := newTestInternal(10)
	moved := p.MoveHalfTo(dst)

	assert.Equal(t, 2, p.Size())
	assert.Equal(t, 2, dst.Size())
	assert.ElementsMatch(t, []common.PageID{300, 400}, moved)
}

func TestInternalPageMoveAllToReKeysFirstEntry(t *testing.T) {
	src := newTestInternal(10)
	src.InitAsRoot(1, 10, 500, 60, 600)

	dst := newTestInternal(10)
	dst.InitAsRoot(2, 10, 100, 50, 200)

	moved := src.MoveAllTo(dst, 55)
	assert.ElementsMatch(t, []common.PageID{500, 600}, moved)
	require.Equal(t, 4, dst.Size())
	assert.Equal(t, int64(55), dst.KeyAt(2))
	assert.Equal(t, common.PageID(500), dst.ValueAt(2))
	assert.Equal(t, int64(60), dst.KeyAt(3))
	assert.Equal(t, common.PageID(600), dst.ValueAt(3))
	assert.Equal(t, 0, src.Size())
}

func TestInternalPageMoveFirstToEndOfReturnsNewSeparator(t *testing.T) {
	src := newTestInternal(10)
	src.InitAsRoot(1, 10, 100, 50, 200)
	src.InsertAfter(200, 80, 300)

	dst := newTestInternal(10)
	dst.Init(2, common.InvalidPageID, 10)
	dst.setSlot(0, 0, 999)
	dst.SetSize(1)

	moved, newSep := src.MoveFirstToEndOf(dst, 40)
	assert.Equal(t, common.PageID(100), moved)
	assert.Equal(t, int64(50), newSep, "new separator is what was src's second key")
	require.Equal(t, 2, src.Size())
	assert.Equal(t, common.PageID(200), src.ValueAt(0))

	require.Equal(t, 2, dst.Size())
	assert.Equal(t, int64(40), dst.KeyAt(1))
	assert.Equal(t, common.PageID(100), dst.ValueAt(1))
}

func TestInternalPageMoveLastToFrontOfReturnsNewSeparator(t *testing.T) {
	src := newTestInternal(10)
	src.InitAsRoot(1, 10, 100, 50, 200)
	src.InsertAfter(200, 80, 300)

	dst := newTestInternal(10)
	dst.Init(2, common.InvalidPageID, 10)
	dst.setSlot(0, 0, 999)
	dst.SetSize(1)

	moved, newSep := src.MoveLastToFrontOf(dst, 90)
	assert.Equal(t, common.PageID(300), moved)
	assert.Equal(t, int64(80), newSep, "new separator is what was src's last key")
	require.Equal(t, 2, src.Size())

	require.Equal(t, 2, dst.Size())
	assert.Equal(t, common.PageID(300), dst.ValueAt(0))
	assert.Equal(t, int64(90), dst.KeyAt(1))
	assert.Equal(t, common.PageID(999), dst.ValueAt(1))
}

func TestInternalPageValueIndex(t *testing.T) {
	p := newTestInternal(10)
	p.InitAsRoot(1, 10, 100, 50, 200)
	assert.Equal(t, 0, p.ValueIndex(100))
	assert.Equal(t, 1, p.ValueIndex(200))
	assert.Equal(t, -1, p.ValueIndex(999))
}
