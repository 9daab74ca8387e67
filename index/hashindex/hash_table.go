package hashindex

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/relstore/reldb-core/common"
	"github.com/relstore/reldb-core/storage"
)

// Pool is the slice of the buffer pool the hash index depends on. Both
// storage.BufferPoolInstance and storage.ParallelBufferPool satisfy it.
type Pool interface {
	Fetch(id common.PageID) (*storage.PageGuard, bool)
	New() (*storage.PageGuard, bool)
	Delete(id common.PageID) bool
}

// HashTable is the persistent extendible hash index (spec §4.4): a single
// directory page fanning out to bucket pages, all backed by pool. Grounded
// on the teacher's indexing package for the "index over buffer-pool pages"
// shape (mit.edu/dsg/godb/indexing, since removed from this tree once its
// in-memory B-tree approach proved unusable for a page-resident structure),
// reimplemented against this spec's directory/bucket split-merge algorithm.
type HashTable struct {
	pool Pool

	tableLatch      sync.RWMutex
	directoryPageID common.PageID
}

// NewHashTable allocates a directory page and its first bucket, and
// returns a ready-to-use index.
func NewHashTable(pool Pool) (*HashTable, bool) {
	dirGuard, ok := pool.New()
	if !ok {
		return nil, false
	}
	bucketGuard, ok := pool.New()
	if !ok {
		dirGuard.Unpin(false)
		pool.Delete(dirGuard.PageID())
		return nil, false
	}

	dirGuard.Frame().Latch.Lock()
	dir := NewDirectoryPage(dirGuard.Frame().Bytes[:])
	dir.Init(dirGuard.PageID(), bucketGuard.PageID())
	dirGuard.Frame().Latch.Unlock()

	bucketGuard.Frame().Latch.Lock()
	NewBucketPage(bucketGuard.Frame().Bytes[:]).Init()
	bucketGuard.Frame().Latch.Unlock()

	dirGuard.Unpin(true)
	bucketGuard.Unpin(true)

	return &HashTable{pool: pool, directoryPageID: dirGuard.PageID()}, true
}

// Get returns every value bound to key.
func (h *HashTable) Get(key int64) []common.RID {
	h.tableLatch.RLock()
	defer h.tableLatch.RUnlock()

	dirGuard, ok := h.pool.Fetch(h.directoryPageID)
	if !ok {
		return nil
	}
	defer dirGuard.Unpin(false)

	dirGuard.Frame().Latch.RLock()
	dir := NewDirectoryPage(dirGuard.Frame().Bytes[:])
	bucketID := dir.BucketPageID(dir.IndexOf(key))
	dirGuard.Frame().Latch.RUnlock()

	bucketGuard, ok := h.pool.Fetch(bucketID)
	if !ok {
		return nil
	}
	defer bucketGuard.Unpin(false)

	bucketGuard.Frame().Latch.RLock()
	defer bucketGuard.Frame().Latch.RUnlock()
	return NewBucketPage(bucketGuard.Frame().Bytes[:]).GetValue(key)
}

// Insert adds (key, value), splitting a full bucket as needed.
func (h *HashTable) Insert(key int64, value common.RID) bool {
	h.tableLatch.RLock()

	dirGuard, ok := h.pool.Fetch(h.directoryPageID)
	if !ok {
		h.tableLatch.RUnlock()
		return false
	}

	dirGuard.Frame().Latch.RLock()
	dir := NewDirectoryPage(dirGuard.Frame().Bytes[:])
	idx := dir.IndexOf(key)
	bucketID := dir.BucketPageID(idx)
	dirGuard.Frame().Latch.RUnlock()

	bucketGuard, ok := h.pool.Fetch(bucketID)
	if !ok {
		dirGuard.Unpin(false)
		h.tableLatch.RUnlock()
		return false
	}

	bucketGuard.Frame().Latch.Lock()
	bucket := NewBucketPage(bucketGuard.Frame().Bytes[:])
	if !bucket.IsFull() {
		inserted := bucket.Insert(key, value)
		bucketGuard.Frame().Latch.Unlock()
		bucketGuard.Unpin(inserted)
		dirGuard.Unpin(false)
		h.tableLatch.RUnlock()
		return inserted
	}
	bucketGuard.Frame().Latch.Unlock()
	bucketGuard.Unpin(false)
	dirGuard.Unpin(false)
	h.tableLatch.RUnlock()

	return h.splitInsert(key, value)
}

// splitInsert implements spec §4.4.2's split_insert. It never recurses
// while holding a latch: the final "retry plain insert" step happens after
// every latch acquired in this call has been released, matching the spec's
// "drop table lock and re-enter plain insert recursively".
func (h *HashTable) splitInsert(key int64, value common.RID) bool {
	h.tableLatch.Lock()

	dirGuard, ok := h.pool.Fetch(h.directoryPageID)
	if !ok {
		h.tableLatch.Unlock()
		return false
	}
	dirGuard.Frame().Latch.Lock()
	dir := NewDirectoryPage(dirGuard.Frame().Bytes[:])

	idx := dir.IndexOf(key)
	bucketID := dir.BucketPageID(idx)

	bucketGuard, ok := h.pool.Fetch(bucketID)
	if !ok {
		dirGuard.Frame().Latch.Unlock()
		dirGuard.Unpin(false)
		h.tableLatch.Unlock()
		return false
	}
	bucketGuard.Frame().Latch.Lock()
	bucket := NewBucketPage(bucketGuard.Frame().Bytes[:])

	if !bucket.IsFull() {
		// Another writer split this bucket already; plain insert now applies.
		inserted := bucket.Insert(key, value)
		bucketGuard.Frame().Latch.Unlock()
		bucketGuard.Unpin(inserted)
		dirGuard.Frame().Latch.Unlock()
		dirGuard.Unpin(false)
		h.tableLatch.Unlock()
		return inserted
	}

	localDepth := dir.LocalDepth(idx)
	if localDepth == 32 {
		bucketGuard.Frame().Latch.Unlock()
		bucketGuard.Unpin(false)
		dirGuard.Frame().Latch.Unlock()
		dirGuard.Unpin(false)
		h.tableLatch.Unlock()
		return false
	}

	newBucketGuard, ok := h.pool.New()
	if !ok {
		bucketGuard.Frame().Latch.Unlock()
		bucketGuard.Unpin(false)
		dirGuard.Frame().Latch.Unlock()
		dirGuard.Unpin(false)
		h.tableLatch.Unlock()
		return false
	}
	newBucketGuard.Frame().Latch.Lock()
	newBucket := NewBucketPage(newBucketGuard.Frame().Bytes[:])
	newBucket.Init()

	if localDepth == uint8(dir.GlobalDepth()) {
		g := dir.Size()
		for i := 0; i < g; i++ {
			dir.setBucketPageID(i|g, dir.bucketPageID(i))
			dir.setLocalDepth(i|g, dir.localDepth(i))
		}
		dir.SetGlobalDepth(dir.GlobalDepth() + 1)
	}

	newLocalDepth := localDepth + 1
	highBit := uint32(1) << (newLocalDepth - 1)
	for i := 0; i < dir.Size(); i++ {
		if dir.BucketPageID(i) != bucketID {
			continue
		}
		dir.setLocalDepth(i, newLocalDepth)
		if uint32(i)&highBit != 0 {
			dir.setBucketPageID(i, newBucketGuard.PageID())
		}
	}

	entries := bucket.AllReadable()
	bucket.Init()
	for _, e := range entries {
		target := bucket
		if dir.IndexOf(e.Key)&int(highBit) != 0 {
			target = newBucket
		}
		target.Insert(e.Key, e.Value)
	}

	bucketGuard.Frame().Latch.Unlock()
	newBucketGuard.Frame().Latch.Unlock()
	bucketGuard.Unpin(true)
	newBucketGuard.Unpin(true)
	dirGuard.Frame().Latch.Unlock()
	dirGuard.Unpin(true)
	h.tableLatch.Unlock()

	return h.Insert(key, value)
}

// Remove deletes (key, value), merging an emptied bucket as needed.
func (h *HashTable) Remove(key int64, value common.RID) bool {
	h.tableLatch.RLock()

	dirGuard, ok := h.pool.Fetch(h.directoryPageID)
	if !ok {
		h.tableLatch.RUnlock()
		return false
	}

	dirGuard.Frame().Latch.RLock()
	dir := NewDirectoryPage(dirGuard.Frame().Bytes[:])
	idx := dir.IndexOf(key)
	bucketID := dir.BucketPageID(idx)
	dirGuard.Frame().Latch.RUnlock()

	bucketGuard, ok := h.pool.Fetch(bucketID)
	if !ok {
		dirGuard.Unpin(false)
		h.tableLatch.RUnlock()
		return false
	}

	bucketGuard.Frame().Latch.Lock()
	bucket := NewBucketPage(bucketGuard.Frame().Bytes[:])
	removed := bucket.Remove(key, value)
	becameEmpty := removed && bucket.IsEmpty()
	bucketGuard.Frame().Latch.Unlock()
	bucketGuard.Unpin(removed)
	dirGuard.Unpin(false)
	h.tableLatch.RUnlock()

	if becameEmpty {
		h.merge(idx)
	}
	return removed
}

// merge implements spec §4.4.3's merge, given the directory index whose
// bucket was just observed empty. It re-checks under the table write lock
// since concurrent activity may have changed things since the observation.
func (h *HashTable) merge(idx int) {
	for {
		h.tableLatch.Lock()

		dirGuard, ok := h.pool.Fetch(h.directoryPageID)
		if !ok {
			h.tableLatch.Unlock()
			return
		}
		dirGuard.Frame().Latch.Lock()
		dir := NewDirectoryPage(dirGuard.Frame().Bytes[:])

		if idx >= dir.Size() {
			dirGuard.Frame().Latch.Unlock()
			dirGuard.Unpin(false)
			h.tableLatch.Unlock()
			return
		}
		bucketID := dir.BucketPageID(idx)
		localDepth := dir.LocalDepth(idx)
		if localDepth == 0 {
			dirGuard.Frame().Latch.Unlock()
			dirGuard.Unpin(false)
			h.tableLatch.Unlock()
			return
		}

		bucketGuard, ok := h.pool.Fetch(bucketID)
		if !ok {
			dirGuard.Frame().Latch.Unlock()
			dirGuard.Unpin(false)
			h.tableLatch.Unlock()
			return
		}
		bucketGuard.Frame().Latch.RLock()
		empty := NewBucketPage(bucketGuard.Frame().Bytes[:]).IsEmpty()
		bucketGuard.Frame().Latch.RUnlock()
		bucketGuard.Unpin(false)
		if !empty {
			dirGuard.Frame().Latch.Unlock()
			dirGuard.Unpin(false)
			h.tableLatch.Unlock()
			return
		}

		// Search every directory entry pointing at the emptied bucket for
		// one whose split image shares its local depth — not just idx's
		// own split image — matching original_source's Merge, which loops
		// over the full directory rather than trusting a single entry.
		splitIdx := -1
		for i := 0; i < dir.Size(); i++ {
			if dir.BucketPageID(i) != bucketID {
				continue
			}
			candidate := dir.SplitImage(i)
			if dir.LocalDepth(i) == dir.LocalDepth(candidate) {
				splitIdx = candidate
				break
			}
		}
		if splitIdx < 0 {
			dirGuard.Frame().Latch.Unlock()
			dirGuard.Unpin(false)
			h.tableLatch.Unlock()
			return
		}
		splitBucketID := dir.BucketPageID(splitIdx)

		for i := 0; i < dir.Size(); i++ {
			if dir.BucketPageID(i) != bucketID {
				continue
			}
			dir.setBucketPageID(i, splitBucketID)
			// Each entry's own split image, not the one that matched
			// above, is what may need its depth decremented alongside i.
			si := dir.SplitImage(i)
			if dir.LocalDepth(si) == localDepth {
				dir.setLocalDepth(si, dir.localDepth(si)-1)
			}
			dir.setLocalDepth(i, dir.localDepth(i)-1)
		}
		h.pool.Delete(bucketID)

		// The upper half of the directory already mirrors the lower half
		// bucket-for-bucket by construction (split doubling copies it
		// verbatim), so shrinking only needs to decrement global depth.
		for dir.GlobalDepth() > 0 && dir.CanShrink() {
			dir.SetGlobalDepth(dir.GlobalDepth() - 1)
		}

		splitGuard, ok := h.pool.Fetch(splitBucketID)
		stillEmpty := false
		if ok {
			splitGuard.Frame().Latch.RLock()
			stillEmpty = NewBucketPage(splitGuard.Frame().Bytes[:]).IsEmpty()
			splitGuard.Frame().Latch.RUnlock()
			splitGuard.Unpin(false)
		}

		dirGuard.Frame().Latch.Unlock()
		dirGuard.Unpin(true)
		h.tableLatch.Unlock()

		if !stillEmpty {
			return
		}
		idx = splitIdx
	}
}

// GlobalDepth exposes the directory's current global depth, for
// introspection and tests (SPEC_FULL supplemented feature, grounded on
// original_source/'s debug accessors).
func (h *HashTable) GlobalDepth() uint32 {
	h.tableLatch.RLock()
	defer h.tableLatch.RUnlock()
	dirGuard, ok := h.pool.Fetch(h.directoryPageID)
	if !ok {
		return 0
	}
	defer dirGuard.Unpin(false)
	dirGuard.Frame().Latch.RLock()
	defer dirGuard.Frame().Latch.RUnlock()
	return NewDirectoryPage(dirGuard.Frame().Bytes[:]).GlobalDepth()
}

// NumBuckets returns the count of distinct bucket pages currently
// referenced by the directory.
func (h *HashTable) NumBuckets() int {
	h.tableLatch.RLock()
	defer h.tableLatch.RUnlock()
	dirGuard, ok := h.pool.Fetch(h.directoryPageID)
	if !ok {
		return 0
	}
	defer dirGuard.Unpin(false)
	dirGuard.Frame().Latch.RLock()
	defer dirGuard.Frame().Latch.RUnlock()
	dir := NewDirectoryPage(dirGuard.Frame().Bytes[:])

	seen := make(map[common.PageID]struct{})
	for i := 0; i < dir.Size(); i++ {
		seen[dir.BucketPageID(i)] = struct{}{}
	}
	return len(seen)
}

// String renders a human-readable directory summary, e.g. "hash index:
// global depth 2, 3 buckets, 4 directory slots". A diagnostics-only helper
// (SPEC_FULL supplemented feature), grounded on the teacher's ATTEntry/
// GetDirtyPageTableSnapshot stats accessors.
func (h *HashTable) String() string {
	depth := h.GlobalDepth()
	buckets := h.NumBuckets()
	h.tableLatch.RLock()
	slots := 0
	if dirGuard, ok := h.pool.Fetch(h.directoryPageID); ok {
		dirGuard.Frame().Latch.RLock()
		slots = NewDirectoryPage(dirGuard.Frame().Bytes[:]).Size()
		dirGuard.Frame().Latch.RUnlock()
		dirGuard.Unpin(false)
	}
	h.tableLatch.RUnlock()

	return fmt.Sprintf("hash index: global depth %d, %s buckets, %s directory slots",
		depth, humanize.Comma(int64(buckets)), humanize.Comma(int64(slots)))
}
