package storage

import (
	"sync"

	"github.com/relstore/reldb-core/common"
)

// Frame is a single slot in the buffer pool: a fixed-size byte buffer plus
// the metadata spec §3 requires (page_id, pin_count, dirty, latch). At any
// instant a Frame either holds no page (PageID() == InvalidPageID) or
// exactly one resident page.
//
// Two independent synchronization domains live on a Frame, echoing the
// teacher's split between frame metadata and page content (its
// storage/page.go pairs a content RWMutex with a metadata mutex embedded
// via pageFrameMetadata):
//   - Latch (RWMutex) guards the *content* of Bytes — B⁺-tree and hash
//     index code read under RLatch and write under WLatch, per spec §4.5.2.
//   - meta (Mutex) guards pageID/pinCount/dirty, mutated only by the owning
//     BufferPoolInstance (spec §5: "Page metadata... mutate only under the
//     owning Buffer Pool Instance mutex").
type Frame struct {
	Bytes [common.PageSize]byte
	Latch sync.RWMutex

	meta sync.Mutex

	pageID   common.PageID
	pinCount int
	dirty    bool
}

// PageID returns the page currently resident in this frame (InvalidPageID
// if the frame is free).
func (f *Frame) PageID() common.PageID {
	f.meta.Lock()
	defer f.meta.Unlock()
	return f.pageID
}

// PinCount returns the current pin count.
func (f *Frame) PinCount() int {
	f.meta.Lock()
	defer f.meta.Unlock()
	return f.pinCount
}

// IsDirty reports whether the frame has unflushed writes.
func (f *Frame) IsDirty() bool {
	f.meta.Lock()
	defer f.meta.Unlock()
	return f.dirty
}

// reset clears frame metadata and zeroes its content. The caller must hold
// the owning BufferPoolInstance's mutex and know pin_count is already zero.
func (f *Frame) reset() {
	f.meta.Lock()
	f.pageID = common.InvalidPageID
	f.pinCount = 0
	f.dirty = false
	f.meta.Unlock()
	clear(f.Bytes[:])
}

// unpinner is the minimal surface a PageGuard needs from its owning pool.
// A single PageGuard type serves both BufferPoolInstance and
// ParallelBufferPool without either package importing the other.
type unpinner interface {
	Unpin(id common.PageID, isDirty bool) bool
}

// PageGuard is the RAII-style handle returned by Fetch/New. It carries a
// borrowed reference to a pinned Frame and enforces the "unpin exactly
// once" discipline from the design notes (§9): unpinning twice is a
// programmer error caught by Assert rather than a silently corrupted pin
// count. A guard that is never unpinned keeps its frame pinned.
type PageGuard struct {
	pool     unpinner
	frame    *Frame
	id       common.PageID
	unpinned bool
}

func newPageGuard(pool unpinner, id common.PageID, frame *Frame) *PageGuard {
	return &PageGuard{pool: pool, frame: frame, id: id}
}

// PageID returns the guarded page's id.
func (g *PageGuard) PageID() common.PageID {
	return g.id
}

// Frame returns the underlying Frame. Callers must hold Frame.Latch (R or W)
// for the duration of any access to Frame.Bytes.
func (g *PageGuard) Frame() *Frame {
	return g.frame
}

// Unpin releases the pin this guard represents. isDirty is OR'd into the
// frame's dirty flag — a page dirtied by any writer stays dirty until
// flushed (spec §4.2). Unpinning twice panics via Assert.
func (g *PageGuard) Unpin(isDirty bool) {
	common.Assert(!g.unpinned, "page guard for %s unpinned twice", g.id)
	g.unpinned = true
	g.pool.Unpin(g.id, isDirty)
}
