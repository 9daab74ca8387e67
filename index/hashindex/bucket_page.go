package hashindex

import (
	"encoding/binary"

	"github.com/relstore/reldb-core/common"
	"github.com/relstore/reldb-core/storage"
)

// BucketArraySize is the number of (key, value) slots a bucket page holds.
// Chosen so occupied+readable bitmaps (ceil(N/8) bytes each) plus the
// key/value array (16 bytes per slot: int64 key + RID value) exactly fill
// one page: 252*16 + 2*32 = 4096 (spec §6's bucket page layout).
const BucketArraySize = 252

const (
	bucketBitmapBytes = (BucketArraySize + 7) / 8
	bucketOffOccupied = 0
	bucketOffReadable = bucketOffOccupied + bucketBitmapBytes
	bucketOffArray    = bucketOffReadable + bucketBitmapBytes
	bucketSlotSize    = 8 + common.RIDSize // int64 key + RID value
)

func init() {
	if bucketOffArray+BucketArraySize*bucketSlotSize > common.PageSize {
		panic("hashindex: bucket page layout overflows PageSize")
	}
}

// BucketPage is a typed view over a page's byte buffer holding up to
// BucketArraySize (key, value) pairs, tracked by parallel occupied/readable
// bitmaps (spec §3: "readable[i] => occupied[i]").
type BucketPage struct {
	buf      []byte
	occupied storage.Bitmap
	readable storage.Bitmap
}

// NewBucketPage wraps buf, which must be exactly common.PageSize bytes.
func NewBucketPage(buf []byte) BucketPage {
	common.Assert(len(buf) == common.PageSize, "bucket page buffer must be PageSize")
	return BucketPage{
		buf:      buf,
		occupied: storage.AsBitmap(buf[bucketOffOccupied:bucketOffReadable], BucketArraySize),
		readable: storage.AsBitmap(buf[bucketOffReadable:bucketOffArray], BucketArraySize),
	}
}

// Init clears every slot, marking the bucket empty.
func (b BucketPage) Init() {
	for i := 0; i < bucketOffArray; i++ {
		b.buf[i] = 0
	}
}

func (b BucketPage) slotOffset(i int) int {
	return bucketOffArray + i*bucketSlotSize
}

func (b BucketPage) keyAt(i int) int64 {
	off := b.slotOffset(i)
	return int64(binary.LittleEndian.Uint64(b.buf[off:]))
}

func (b BucketPage) valueAt(i int) common.RID {
	off := b.slotOffset(i) + 8
	pid := common.PageID(int32(binary.LittleEndian.Uint32(b.buf[off:])))
	slot := binary.LittleEndian.Uint32(b.buf[off+4:])
	return common.RID{PageID: pid, Slot: slot}
}

func (b BucketPage) setSlot(i int, key int64, value common.RID) {
	off := b.slotOffset(i)
	binary.LittleEndian.PutUint64(b.buf[off:], uint64(key))
	binary.LittleEndian.PutUint32(b.buf[off+8:], uint32(int32(value.PageID)))
	binary.LittleEndian.PutUint32(b.buf[off+12:], value.Slot)
}

// IsFull reports whether every slot is occupied.
func (b BucketPage) IsFull() bool {
	return b.occupied.CountSet() == BucketArraySize
}

// IsEmpty reports whether no slot is readable.
func (b BucketPage) IsEmpty() bool {
	return b.readable.CountSet() == 0
}

// GetValue collects every readable value bound to key (spec §4.4.1's
// linear scan over occupied slots).
func (b BucketPage) GetValue(key int64) []common.RID {
	var out []common.RID
	for i := 0; i < BucketArraySize; i++ {
		if !b.occupied.LoadBit(i) {
			break
		}
		if b.readable.LoadBit(i) && b.keyAt(i) == key {
			out = append(out, b.valueAt(i))
		}
	}
	return out
}

// Insert adds (key, value) to the first free slot. Returns false if the
// bucket is full or the exact pair is already present (spec §9 open
// question 2: a duplicate (key,value) pair is "not inserted").
func (b BucketPage) Insert(key int64, value common.RID) bool {
	firstFree := -1
	for i := 0; i < BucketArraySize; i++ {
		if !b.occupied.LoadBit(i) {
			// Occupied bits form a monotonic prefix: Remove only clears
			// readable, never occupied, so the first unoccupied slot marks
			// the end of every slot ever used. Matches
			// _examples/original_source/src/storage/page/hash_table_bucket_page.cpp:49-54,
			// which also stops scanning here instead of continuing past it.
			firstFree = i
			break
		}
		if b.readable.LoadBit(i) && b.keyAt(i) == key && b.valueAt(i) == value {
			return false
		}
	}
	if firstFree == -1 {
		return false
	}
	b.setSlot(firstFree, key, value)
	b.occupied.SetBit(firstFree, true)
	b.readable.SetBit(firstFree, true)
	return true
}

// Remove deletes the (key, value) pair if present, returning whether it was
// found. The slot stays occupied (linear-probe style tombstoning) but is
// marked unreadable.
func (b BucketPage) Remove(key int64, value common.RID) bool {
	for i := 0; i < BucketArraySize; i++ {
		if !b.occupied.LoadBit(i) {
			break
		}
		if b.readable.LoadBit(i) && b.keyAt(i) == key && b.valueAt(i) == value {
			b.readable.SetBit(i, false)
			return true
		}
	}
	return false
}

// AllReadable returns every (key, value) pair currently readable, used
// during split_insert's rehash pass and merge's redistribution check.
func (b BucketPage) AllReadable() []struct {
	Key   int64
	Value common.RID
} {
	var out []struct {
		Key   int64
		Value common.RID
	}
	for i := 0; i < BucketArraySize; i++ {
		if !b.occupied.LoadBit(i) {
			break
		}
		if b.readable.LoadBit(i) {
			out = append(out, struct {
				Key   int64
				Value common.RID
			}{b.keyAt(i), b.valueAt(i)})
		}
	}
	return out
}
