package storage

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/relstore/reldb-core/common"
)

// BufferPoolInstance owns a fixed-size array of frames backed by one
// DiskManager, per spec §4.2. It is the unsharded unit that ParallelBufferPool
// (storage/parallel_buffer_pool.go) routes to by `page_id mod num_instances`.
//
// The page table uses xsync.MapOf rather than a plain map+mutex, grounded on
// the teacher's own choice of xsync for its buffer pool's page table
// (storage/buffer_pool.go in the original) — a lock-free map is a natural
// fit here even though this spec's instance mutex already serializes all
// public operations, since it keeps look-aside reads (e.g. debugging/stats)
// cheap without contending the instance mutex.
type BufferPoolInstance struct {
	mu sync.Mutex

	disk DiskManager

	frames    []Frame
	pageTable *xsync.MapOf[common.PageID, FrameID]
	freeList  []FrameID
	replacer  *Replacer

	poolSize      int
	numInstances  int32
	instanceIndex int32
	nextPageID    int32
}

// NewBufferPoolInstance creates an instance of poolSize frames backed by
// disk, participating in a numInstances-way shard at instanceIndex. A
// standalone (unsharded) pool passes numInstances=1, instanceIndex=0.
func NewBufferPoolInstance(poolSize int, disk DiskManager, numInstances, instanceIndex int32) *BufferPoolInstance {
	common.Assert(poolSize > 0, "buffer pool instance must have at least one frame")
	common.Assert(numInstances > 0, "numInstances must be positive")
	common.Assert(instanceIndex >= 0 && instanceIndex < numInstances, "instanceIndex out of range")

	bpi := &BufferPoolInstance{
		disk:          disk,
		frames:        make([]Frame, poolSize),
		pageTable:     xsync.NewMapOf[common.PageID, FrameID](),
		freeList:      make([]FrameID, poolSize),
		replacer:      NewReplacer(),
		poolSize:      poolSize,
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
		nextPageID:    instanceIndex,
	}
	for i := 0; i < poolSize; i++ {
		bpi.frames[i].pageID = common.InvalidPageID
		bpi.freeList[i] = FrameID(i)
	}
	return bpi
}

// grabFrame selects a victim frame, favoring the free list before consulting
// the replacer, per spec §4.2. Returns (frameID, ok). Caller must hold mu.
func (bpi *BufferPoolInstance) grabFrame() (FrameID, bool) {
	if n := len(bpi.freeList); n > 0 {
		id := bpi.freeList[n-1]
		bpi.freeList = bpi.freeList[:n-1]
		return id, true
	}
	return bpi.replacer.Victim()
}

// evict writes out frame fid if dirty and erases its page-table entry.
// Caller must hold mu.
func (bpi *BufferPoolInstance) evict(fid FrameID) error {
	frame := &bpi.frames[fid]
	frame.meta.Lock()
	oldID, dirty := frame.pageID, frame.dirty
	frame.meta.Unlock()

	if oldID == common.InvalidPageID {
		return nil
	}
	// Open Question resolution (spec §9): write only if dirty, not
	// unconditionally — a clean victim's on-disk copy is already current.
	if dirty {
		if err := bpi.disk.WritePage(oldID, frame.Bytes[:]); err != nil {
			return err
		}
	}
	bpi.pageTable.Delete(oldID)
	return nil
}

// Fetch returns a pinned PageGuard for pid, reading it from disk if it is
// not already resident. Returns (nil, false) if no frame could be freed.
func (bpi *BufferPoolInstance) Fetch(pid common.PageID) (*PageGuard, bool) {
	bpi.mu.Lock()
	defer bpi.mu.Unlock()

	if fid, ok := bpi.pageTable.Load(pid); ok {
		frame := &bpi.frames[fid]
		frame.meta.Lock()
		frame.pinCount++
		frame.meta.Unlock()
		bpi.replacer.Pin(fid)
		return newPageGuard(bpi, pid, frame), true
	}

	fid, ok := bpi.grabFrame()
	if !ok {
		return nil, false
	}
	frame := &bpi.frames[fid]
	if err := bpi.evict(fid); err != nil {
		// Disk failure: return the frame to the free list rather than
		// silently discarding it, and report unavailability upward. This
		// mirrors §7 category 1 (resource-style failure, not a DBError).
		bpi.freeList = append(bpi.freeList, fid)
		return nil, false
	}

	if err := bpi.disk.ReadPage(pid, frame.Bytes[:]); err != nil {
		bpi.freeList = append(bpi.freeList, fid)
		return nil, false
	}

	frame.meta.Lock()
	frame.pageID = pid
	frame.pinCount = 1
	frame.dirty = false
	frame.meta.Unlock()

	bpi.pageTable.Store(pid, fid)
	return newPageGuard(bpi, pid, frame), true
}

// allocatePageID returns the next id owned by this instance and advances
// the counter by numInstances, per spec §4.2's "id mod num_instances ==
// instance_index" invariant.
func (bpi *BufferPoolInstance) allocatePageID() common.PageID {
	id := bpi.nextPageID
	bpi.nextPageID += bpi.numInstances
	return common.PageID(id)
}

// New allocates a fresh page, pins it, and returns a zeroed PageGuard.
func (bpi *BufferPoolInstance) New() (*PageGuard, bool) {
	bpi.mu.Lock()
	defer bpi.mu.Unlock()

	fid, ok := bpi.grabFrame()
	if !ok {
		return nil, false
	}
	frame := &bpi.frames[fid]
	if err := bpi.evict(fid); err != nil {
		bpi.freeList = append(bpi.freeList, fid)
		return nil, false
	}

	pid := bpi.allocatePageID()
	frame.reset()
	frame.meta.Lock()
	frame.pageID = pid
	frame.pinCount = 1
	frame.meta.Unlock()

	bpi.pageTable.Store(pid, fid)
	return newPageGuard(bpi, pid, frame), true
}

// Unpin implements the unpinner interface consumed by PageGuard. Returns
// false if pid is not resident or already fully unpinned.
func (bpi *BufferPoolInstance) Unpin(pid common.PageID, isDirty bool) bool {
	bpi.mu.Lock()
	defer bpi.mu.Unlock()

	fid, ok := bpi.pageTable.Load(pid)
	if !ok {
		return false
	}
	frame := &bpi.frames[fid]
	frame.meta.Lock()
	if frame.pinCount <= 0 {
		frame.meta.Unlock()
		return false
	}
	frame.dirty = frame.dirty || isDirty
	frame.pinCount--
	reachedZero := frame.pinCount == 0
	frame.meta.Unlock()

	if reachedZero {
		bpi.replacer.Unpin(fid)
	}
	return true
}

// Flush writes pid's resident frame to disk unconditionally and clears dirty.
func (bpi *BufferPoolInstance) Flush(pid common.PageID) bool {
	bpi.mu.Lock()
	defer bpi.mu.Unlock()

	fid, ok := bpi.pageTable.Load(pid)
	if !ok {
		return false
	}
	frame := &bpi.frames[fid]
	if err := bpi.disk.WritePage(pid, frame.Bytes[:]); err != nil {
		return false
	}
	frame.meta.Lock()
	frame.dirty = false
	frame.meta.Unlock()
	return true
}

// FlushAll flushes every resident frame.
func (bpi *BufferPoolInstance) FlushAll() {
	bpi.mu.Lock()
	defer bpi.mu.Unlock()

	bpi.pageTable.Range(func(pid common.PageID, fid FrameID) bool {
		frame := &bpi.frames[fid]
		if err := bpi.disk.WritePage(pid, frame.Bytes[:]); err == nil {
			frame.meta.Lock()
			frame.dirty = false
			frame.meta.Unlock()
		}
		return true
	})
}

// Delete removes pid from the pool, returning its frame to the free list.
// Vacuously succeeds if pid is not resident; fails if still pinned.
func (bpi *BufferPoolInstance) Delete(pid common.PageID) bool {
	bpi.mu.Lock()
	defer bpi.mu.Unlock()

	fid, ok := bpi.pageTable.Load(pid)
	if !ok {
		return true
	}
	frame := &bpi.frames[fid]
	frame.meta.Lock()
	pinned := frame.pinCount != 0
	dirty := frame.dirty
	frame.meta.Unlock()
	if pinned {
		return false
	}

	if dirty {
		_ = bpi.disk.WritePage(pid, frame.Bytes[:])
	}
	bpi.pageTable.Delete(pid)
	bpi.replacer.Pin(fid)
	frame.reset()
	bpi.freeList = append(bpi.freeList, fid)
	return true
}

// PoolSize returns the number of frames this instance holds.
func (bpi *BufferPoolInstance) PoolSize() int {
	return bpi.poolSize
}

// String renders a human-readable utilization summary, e.g.
// "instance 0: 3/8 frames resident, 12 kB". A diagnostics-only helper
// (SPEC_FULL supplemented feature), grounded on the teacher's ATTEntry/
// GetDirtyPageTableSnapshot stats accessors, which report pool state
// without a formatting story of their own.
func (bpi *BufferPoolInstance) String() string {
	bpi.mu.Lock()
	resident := 0
	bpi.pageTable.Range(func(common.PageID, FrameID) bool {
		resident++
		return true
	})
	bpi.mu.Unlock()

	bytes := uint64(resident) * uint64(common.PageSize)
	return fmt.Sprintf("instance %d: %d/%d frames resident, %s",
		bpi.instanceIndex, resident, bpi.poolSize, humanize.Bytes(bytes))
}
