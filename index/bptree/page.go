// Package bptree implements the concurrent, disk-paged B⁺-tree index (spec
// §4.5): latch-crabbing descent, leaf/internal page splitting, and
// coalesce-or-redistribute on deletion. Every page is a typed view over a
// storage.Frame's byte buffer, following the same "typed view instead of
// reinterpret_cast" idiom as index/hashindex (Design Notes §9).
package bptree

import (
	"encoding/binary"

	"github.com/relstore/reldb-core/common"
)

// PageType tags a B⁺-tree page as internal or leaf, replacing the source's
// downcast-by-reinterpret_cast between page kinds.
type PageType uint8

const (
	TypeInvalid PageType = iota
	TypeLeaf
	TypeInternal
)

// Common header layout (spec §6): page_type(1), lsn(4), size(4),
// max_size(4), parent_page_id(4), page_id(4).
const (
	offPageType       = 0
	offLSN            = 1
	offSize           = 5
	offMaxSize        = 9
	offParentPageID   = 13
	offPageID         = 17
	commonHeaderSize  = 21
	offLeafNextPageID = commonHeaderSize
	leafHeaderSize    = commonHeaderSize + 4
)

// internalEntrySize is (key int64, child page_id int32); array[0].key is
// unused, an invalid separator per spec §3.
const internalEntrySize = 8 + 4

// leafEntrySize is (key int64, value RID).
const leafEntrySize = 8 + common.RIDSize

// MaxInternalCapacity is the largest internal_max_size a page can
// physically hold.
const MaxInternalCapacity = (common.PageSize - commonHeaderSize) / internalEntrySize

// MaxLeafCapacity is the largest leaf_max_size a page can physically hold.
const MaxLeafCapacity = (common.PageSize - leafHeaderSize) / leafEntrySize

// header is embedded (by value, over the same buf) in both LeafPage and
// InternalPage to share the common-header accessors.
type header struct {
	buf []byte
}

func (h header) PageType() PageType {
	return PageType(h.buf[offPageType])
}

func (h header) setPageType(t PageType) {
	h.buf[offPageType] = byte(t)
}

func (h header) LSN() common.LSN {
	return common.LSN(int32(binary.LittleEndian.Uint32(h.buf[offLSN:])))
}

func (h header) SetLSN(lsn common.LSN) {
	binary.LittleEndian.PutUint32(h.buf[offLSN:], uint32(int32(lsn)))
}

func (h header) Size() int {
	return int(int32(binary.LittleEndian.Uint32(h.buf[offSize:])))
}

func (h header) SetSize(n int) {
	binary.LittleEndian.PutUint32(h.buf[offSize:], uint32(int32(n)))
}

func (h header) MaxSize() int {
	return int(int32(binary.LittleEndian.Uint32(h.buf[offMaxSize:])))
}

func (h header) SetMaxSize(n int) {
	binary.LittleEndian.PutUint32(h.buf[offMaxSize:], uint32(int32(n)))
}

func (h header) ParentPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(h.buf[offParentPageID:])))
}

func (h header) SetParentPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(h.buf[offParentPageID:], uint32(int32(id)))
}

func (h header) PageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(h.buf[offPageID:])))
}

func (h header) SetPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(h.buf[offPageID:], uint32(int32(id)))
}

// IsLeaf reports whether the underlying page is tagged as a leaf.
func IsLeaf(buf []byte) bool {
	return PageType(buf[offPageType]) == TypeLeaf
}

// MinSize computes ⌈max_size/2⌉ for internal pages and ⌈(max_size-1)/2⌉ for
// leaf pages, per spec §3.
func MinSize(t PageType, maxSize int) int {
	if t == TypeInternal {
		return (maxSize + 1) / 2
	}
	return maxSize / 2
}

// setParentPageID writes the parent_page_id field shared by both page
// kinds without the caller needing to know which kind buf holds.
func setParentPageID(buf []byte, id common.PageID) {
	header{buf: buf}.SetParentPageID(id)
}
