// Package hashindex implements the persistent extendible hash index (spec
// §4.4): a directory page fanning out to bucket pages, doubling and
// halving as buckets split and merge. Backed entirely by storage.Frame
// pages pinned through a buffer pool, following the teacher's pattern of
// typed views layered directly over a page's raw byte buffer (Design Notes
// §9) rather than the C++ source's reinterpret_cast between page types.
package hashindex

import (
	"encoding/binary"

	"github.com/relstore/reldb-core/common"
)

// MaxDirectorySize is 2^9: global depth is capped at 9 so the directory's
// two parallel arrays fit in one page (spec §3: "g ≤ 9").
const MaxDirectorySize = 512

const (
	dirOffsetPageID       = 0
	dirOffsetLSN          = 4
	dirOffsetGlobalDepth  = 8
	dirOffsetLocalDepths  = 12
	dirOffsetBucketPageID = dirOffsetLocalDepths + MaxDirectorySize
	dirPageHeaderSize     = dirOffsetBucketPageID + MaxDirectorySize*4
)

func init() {
	if dirPageHeaderSize > common.PageSize {
		panic("hashindex: directory page layout overflows PageSize")
	}
}

// DirectoryPage is a typed view over a page's byte buffer. It does not own
// the bytes — callers must hold the page's latch for the lifetime of any
// method call, exactly as the B⁺-tree page views do.
type DirectoryPage struct {
	buf []byte
}

// NewDirectoryPage wraps buf, which must be exactly common.PageSize bytes.
func NewDirectoryPage(buf []byte) DirectoryPage {
	common.Assert(len(buf) == common.PageSize, "directory page buffer must be PageSize")
	return DirectoryPage{buf: buf}
}

// Init sets up a brand-new, empty directory: global depth 0, a single
// bucket at index 0.
func (d DirectoryPage) Init(pageID, bucket0 common.PageID) {
	d.SetPageID(pageID)
	d.SetGlobalDepth(0)
	for i := 0; i < MaxDirectorySize; i++ {
		d.setLocalDepth(i, 0)
		d.setBucketPageID(i, common.InvalidPageID)
	}
	d.setBucketPageID(0, bucket0)
}

func (d DirectoryPage) PageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(d.buf[dirOffsetPageID:])))
}

func (d DirectoryPage) SetPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(d.buf[dirOffsetPageID:], uint32(int32(id)))
}

func (d DirectoryPage) GlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(d.buf[dirOffsetGlobalDepth:])
}

func (d DirectoryPage) SetGlobalDepth(g uint32) {
	common.Assert(g <= 9, "global depth exceeds directory capacity")
	binary.LittleEndian.PutUint32(d.buf[dirOffsetGlobalDepth:], g)
}

// Size returns the number of directory entries currently in use: 2^g.
func (d DirectoryPage) Size() int {
	return 1 << d.GlobalDepth()
}

func (d DirectoryPage) localDepth(i int) uint8 {
	return d.buf[dirOffsetLocalDepths+i]
}

func (d DirectoryPage) setLocalDepth(i int, depth uint8) {
	d.buf[dirOffsetLocalDepths+i] = depth
}

// LocalDepth returns local_depth[i].
func (d DirectoryPage) LocalDepth(i int) uint8 {
	return d.localDepth(i)
}

// SetLocalDepth sets local_depth[i], asserting the §7 invariant
// local_depth[i] <= global_depth.
func (d DirectoryPage) SetLocalDepth(i int, depth uint8) {
	common.Assert(depth <= uint8(d.GlobalDepth()), "local depth exceeds global depth")
	d.setLocalDepth(i, depth)
}

func (d DirectoryPage) bucketPageID(i int) common.PageID {
	off := dirOffsetBucketPageID + i*4
	return common.PageID(int32(binary.LittleEndian.Uint32(d.buf[off:])))
}

func (d DirectoryPage) setBucketPageID(i int, id common.PageID) {
	off := dirOffsetBucketPageID + i*4
	binary.LittleEndian.PutUint32(d.buf[off:], uint32(int32(id)))
}

// BucketPageID returns bucket_page_id[i].
func (d DirectoryPage) BucketPageID(i int) common.PageID {
	return d.bucketPageID(i)
}

// SetBucketPageID sets bucket_page_id[i].
func (d DirectoryPage) SetBucketPageID(i int, id common.PageID) {
	d.setBucketPageID(i, id)
}

// IndexOf computes dir_index(key) = hash(key) & ((1 << g) - 1).
func (d DirectoryPage) IndexOf(key int64) int {
	mask := uint32(d.Size() - 1)
	return int(common.HashKey(key) & mask)
}

// LocalHighBit returns the bit introduced by index i's most recent split:
// 1 << (local_depth[i] - 1). Index i with local depth 0 has no high bit.
func (d DirectoryPage) LocalHighBit(i int) uint32 {
	ld := d.localDepth(i)
	if ld == 0 {
		return 0
	}
	return uint32(1) << (ld - 1)
}

// SplitImage returns the directory index that shares all but the high bit
// of index i's local depth.
func (d DirectoryPage) SplitImage(i int) int {
	return i ^ int(d.LocalHighBit(i))
}

// CanShrink reports whether every local depth is below the global depth,
// i.e. every upper-half entry points at the same bucket as its lower-half
// twin — the precondition for halving the directory.
func (d DirectoryPage) CanShrink() bool {
	g := uint8(d.GlobalDepth())
	for i := 0; i < d.Size(); i++ {
		if d.localDepth(i) >= g {
			return false
		}
	}
	return true
}
