package bptree

import (
	"fmt"
	"io"
	"sync"

	"github.com/relstore/reldb-core/common"
	"github.com/relstore/reldb-core/storage"
	"github.com/relstore/reldb-core/transaction"
)

// Pool is the slice of the buffer pool the B⁺-tree depends on.
type Pool interface {
	Fetch(id common.PageID) (*storage.PageGuard, bool)
	New() (*storage.PageGuard, bool)
	Delete(id common.PageID) bool
}

// BPlusTree is the concurrent, disk-paged index (spec §4.5). A single
// rootMutex protects rootPageID; latch-crabbing over storage.Frame.Latch
// protects everything below it. Grounded on the teacher's indexing package
// for the overall "index over pool pages" shape; the crabbing algorithm
// itself follows this spec's authoritative variant (§9 open question 3).
type BPlusTree struct {
	pool Pool

	rootMutex sync.Mutex
	rootID    common.PageID

	leafMaxSize     int
	internalMaxSize int
}

// NewBPlusTree creates an empty tree. leafMaxSize/internalMaxSize must not
// exceed MaxLeafCapacity/MaxInternalCapacity.
func NewBPlusTree(pool Pool, leafMaxSize, internalMaxSize int) *BPlusTree {
	common.Assert(leafMaxSize >= 3 && leafMaxSize <= MaxLeafCapacity, "leaf max size out of range")
	common.Assert(internalMaxSize >= 3 && internalMaxSize <= MaxInternalCapacity, "internal max size out of range")
	return &BPlusTree{pool: pool, rootID: common.InvalidPageID, leafMaxSize: leafMaxSize, internalMaxSize: internalMaxSize}
}

// RootPageID reports the tree's current root, or InvalidPageID if empty.
func (t *BPlusTree) RootPageID() common.PageID {
	t.rootMutex.Lock()
	defer t.rootMutex.Unlock()
	return t.rootID
}

// IsEmpty reports whether the tree has no root.
func (t *BPlusTree) IsEmpty() bool {
	return t.RootPageID() == common.InvalidPageID
}

// descendToLeaf performs a read-crabbing descent from the root, releasing
// each ancestor's RLatch as soon as its child is RLatched, per spec §4.5.2's
// read-only variant. chooseChild picks the child to follow at each internal
// level, so Get, Begin, and BeginAt share one traversal. The returned leaf
// is pinned and still RLatched; the caller must RUnlock and Unpin it.
func (t *BPlusTree) descendToLeaf(chooseChild func(InternalPage) common.PageID) (*storage.PageGuard, bool) {
	t.rootMutex.Lock()
	if t.rootID == common.InvalidPageID {
		t.rootMutex.Unlock()
		return nil, false
	}

	cur, ok := t.pool.Fetch(t.rootID)
	if !ok {
		t.rootMutex.Unlock()
		return nil, false
	}
	cur.Frame().Latch.RLock()
	t.rootMutex.Unlock()

	for !IsLeaf(cur.Frame().Bytes[:]) {
		internal := NewInternalPage(cur.Frame().Bytes[:])
		childID := chooseChild(internal)
		child, ok := t.pool.Fetch(childID)
		if !ok {
			cur.Frame().Latch.RUnlock()
			cur.Unpin(false)
			return nil, false
		}
		child.Frame().Latch.RLock()
		cur.Frame().Latch.RUnlock()
		cur.Unpin(false)
		cur = child
	}
	return cur, true
}

// Get returns the value bound to key, if any (spec §4.5.3). txn is accepted
// for parity with original_source's GetValue(key, result, transaction) but
// unused: a read descent never retains more than one latch at a time, so
// there is no ancestor chain for txn's page_set to track.
func (t *BPlusTree) Get(key int64, txn *transaction.Transaction) (common.RID, bool) {
	leaf, ok := t.descendToLeaf(func(i InternalPage) common.PageID { return i.Lookup(key) })
	if !ok {
		return common.InvalidRID, false
	}

	view := NewLeafPage(leaf.Frame().Bytes[:])
	idx, found := view.KeyIndex(key)
	var value common.RID
	if found {
		value = view.ValueAt(idx)
	}
	leaf.Frame().Latch.RUnlock()
	leaf.Unpin(false)
	return value, found
}

// writeCrabber tracks the ancestor chain latched-but-not-yet-released
// during a write descent, per spec §4.5.2. txn mirrors the same chain
// through Transaction.pageSet/deletedPageSet (spec §6's "used by B⁺-tree
// for crabbing") in addition to ancestors itself, which remains the
// mechanism actually used to unlatch/unpin — ancestors holds live
// *storage.PageGuard values, which pageSet's plain page IDs cannot.
type writeCrabber struct {
	ancestors      []*storage.PageGuard
	rootLocked     bool
	txn            *transaction.Transaction
	pendingDeletes []common.PageID
}

// queueDelete defers pid's physical deletion until every latch this
// operation holds has been released, mirroring original_source's
// deleted_page_set / UnLockAndUnpinPages pattern: deleting a page while it
// (or an ancestor) is still latched/pinned is unsafe.
func (wc *writeCrabber) queueDelete(pid common.PageID) {
	wc.pendingDeletes = append(wc.pendingDeletes, pid)
	if wc.txn != nil {
		wc.txn.AddToDeletedPageSet(pid)
	}
}

func (t *BPlusTree) releaseAncestors(wc *writeCrabber) {
	for _, a := range wc.ancestors {
		a.Frame().Latch.Unlock()
		a.Unpin(false)
		if wc.txn != nil {
			wc.txn.PopPageSet()
		}
	}
	wc.ancestors = wc.ancestors[:0]
	if wc.rootLocked {
		t.rootMutex.Unlock()
		wc.rootLocked = false
	}
}

// flushPendingDeletes performs every deletion queued via wc.queueDelete,
// once the caller has released all of wc's latches. When txn is set, the
// authoritative list is drained from it (spec §6); otherwise wc's own
// local list is used.
func (t *BPlusTree) flushPendingDeletes(wc *writeCrabber) {
	ids := wc.pendingDeletes
	if wc.txn != nil {
		ids = wc.txn.DeletedPageSet()
	}
	wc.pendingDeletes = nil
	for _, id := range ids {
		t.pool.Delete(id)
	}
}

// descendWrite walks from the root to the target leaf, write-latching each
// page and releasing the ancestor chain as soon as a page is proven safe
// under isSafe. Caller must hold t.rootMutex on entry (wc.rootLocked=true)
// and must eventually call t.releaseAncestors(wc) plus release the
// returned leaf guard itself.
func (t *BPlusTree) descendWrite(key int64, txn *transaction.Transaction, isSafe func(buf []byte) bool) (leaf *storage.PageGuard, wc *writeCrabber, ok bool) {
	wc = &writeCrabber{rootLocked: true, txn: txn}

	cur, ok := t.pool.Fetch(t.rootID)
	if !ok {
		t.rootMutex.Unlock()
		wc.rootLocked = false
		return nil, wc, false
	}
	cur.Frame().Latch.Lock()

	for {
		if IsLeaf(cur.Frame().Bytes[:]) {
			break
		}
		if isSafe(cur.Frame().Bytes[:]) {
			t.releaseAncestors(wc)
		}
		wc.ancestors = append(wc.ancestors, cur)
		if wc.txn != nil {
			wc.txn.AddToPageSet(cur.PageID())
		}

		internal := NewInternalPage(cur.Frame().Bytes[:])
		childID := internal.Lookup(key)
		child, fok := t.pool.Fetch(childID)
		if !fok {
			t.releaseAncestors(wc)
			return nil, wc, false
		}
		child.Frame().Latch.Lock()
		cur = child
	}

	if isSafe(cur.Frame().Bytes[:]) {
		t.releaseAncestors(wc)
	}
	return cur, wc, true
}

// Insert adds (key, value), splitting nodes up the tree as needed (spec
// §4.5.4). txn is threaded through per original_source's
// Insert(key, value, transaction): the write descent records every latched
// ancestor in txn's page_set as well as in wc.ancestors (spec §6). txn may
// be nil, matching the original's nullable Transaction*.
func (t *BPlusTree) Insert(key int64, value common.RID, txn *transaction.Transaction) bool {
	t.rootMutex.Lock()

	if t.rootID == common.InvalidPageID {
		leafGuard, ok := t.pool.New()
		if !ok {
			t.rootMutex.Unlock()
			return false
		}
		leafGuard.Frame().Latch.Lock()
		leaf := NewLeafPage(leafGuard.Frame().Bytes[:])
		leaf.Init(leafGuard.PageID(), common.InvalidPageID, t.leafMaxSize)
		leaf.Insert(key, value)
		t.rootID = leafGuard.PageID()
		leafGuard.Frame().Latch.Unlock()
		leafGuard.Unpin(true)
		t.rootMutex.Unlock()
		return true
	}

	leafGuard, wc, ok := t.descendWrite(key, txn, func(buf []byte) bool {
		if IsLeaf(buf) {
			l := NewLeafPage(buf)
			return l.Size() < l.MaxSize()-1
		}
		p := NewInternalPage(buf)
		return p.Size() < p.MaxSize()
	})
	if !ok {
		return false
	}

	leaf := NewLeafPage(leafGuard.Frame().Bytes[:])
	if !leaf.Insert(key, value) {
		leafGuard.Frame().Latch.Unlock()
		leafGuard.Unpin(false)
		t.releaseAncestors(wc)
		t.flushPendingDeletes(wc)
		return false
	}

	if leaf.Size() < leaf.MaxSize() {
		leafGuard.Frame().Latch.Unlock()
		leafGuard.Unpin(true)
		t.releaseAncestors(wc)
		t.flushPendingDeletes(wc)
		return true
	}

	newLeafGuard, ok := t.pool.New()
	if !ok {
		// Cannot split; the insert already landed, so report success but
		// leave the leaf temporarily over capacity rather than lose data.
		leafGuard.Frame().Latch.Unlock()
		leafGuard.Unpin(true)
		t.releaseAncestors(wc)
		t.flushPendingDeletes(wc)
		return true
	}
	newLeafGuard.Frame().Latch.Lock()
	newLeaf := NewLeafPage(newLeafGuard.Frame().Bytes[:])
	newLeaf.Init(newLeafGuard.PageID(), leaf.ParentPageID(), t.leafMaxSize)
	leaf.MoveHalfTo(newLeaf)
	newLeaf.SetNextPageID(leaf.NextPageID())
	leaf.SetNextPageID(newLeafGuard.PageID())
	sepKey := newLeaf.KeyAt(0)

	t.insertIntoParent(leafGuard, sepKey, newLeafGuard, wc)
	t.flushPendingDeletes(wc)
	return true
}

// insertIntoParent implements spec §4.5.4 step 5, iterating instead of
// recursing so latch release stays explicit at every step.
func (t *BPlusTree) insertIntoParent(old *storage.PageGuard, sepKey int64, newG *storage.PageGuard, wc *writeCrabber) {
	for {
		if len(wc.ancestors) == 0 {
			newRootGuard, ok := t.pool.New()
			if !ok {
				// No room for a new root; drop the new sibling's changes from
				// the tree's reachable set rather than corrupt the structure.
				old.Frame().Latch.Unlock()
				old.Unpin(true)
				newG.Frame().Latch.Unlock()
				newG.Unpin(false)
				if wc.rootLocked {
					t.rootMutex.Unlock()
				}
				return
			}
			newRootGuard.Frame().Latch.Lock()
			newRoot := NewInternalPage(newRootGuard.Frame().Bytes[:])
			newRoot.InitAsRoot(newRootGuard.PageID(), t.internalMaxSize, old.PageID(), sepKey, newG.PageID())
			newRootGuard.Frame().Latch.Unlock()

			setParentPageID(old.Frame().Bytes[:], newRootGuard.PageID())
			setParentPageID(newG.Frame().Bytes[:], newRootGuard.PageID())

			t.rootID = newRootGuard.PageID()
			newRootGuard.Unpin(true)

			old.Frame().Latch.Unlock()
			old.Unpin(true)
			newG.Frame().Latch.Unlock()
			newG.Unpin(true)
			if wc.rootLocked {
				t.rootMutex.Unlock()
				wc.rootLocked = false
			}
			return
		}

		parent := wc.ancestors[len(wc.ancestors)-1]
		wc.ancestors = wc.ancestors[:len(wc.ancestors)-1]
		if wc.txn != nil {
			wc.txn.PopPageSet()
		}
		parentView := NewInternalPage(parent.Frame().Bytes[:])
		parentView.InsertAfter(old.PageID(), sepKey, newG.PageID())
		setParentPageID(newG.Frame().Bytes[:], parent.PageID())

		old.Frame().Latch.Unlock()
		old.Unpin(true)
		newG.Frame().Latch.Unlock()
		newG.Unpin(true)

		if parentView.Size() <= t.internalMaxSize {
			parent.Frame().Latch.Unlock()
			parent.Unpin(true)
			t.releaseAncestors(wc)
			return
		}

		newParentGuard, ok := t.pool.New()
		if !ok {
			parent.Frame().Latch.Unlock()
			parent.Unpin(true)
			t.releaseAncestors(wc)
			return
		}
		newParentGuard.Frame().Latch.Lock()
		newParentView := NewInternalPage(newParentGuard.Frame().Bytes[:])
		newParentView.Init(newParentGuard.PageID(), parentView.ParentPageID(), t.internalMaxSize)
		moved := parentView.MoveHalfTo(newParentView)
		for _, childID := range moved {
			cg, cok := t.pool.Fetch(childID)
			if !cok {
				continue
			}
			cg.Frame().Latch.Lock()
			setParentPageID(cg.Frame().Bytes[:], newParentGuard.PageID())
			cg.Frame().Latch.Unlock()
			cg.Unpin(true)
		}
		newSep := newParentView.KeyAt(0)

		old = parent
		newG = newParentGuard
		sepKey = newSep
	}
}

// Remove deletes key, coalescing or redistributing under-full nodes (spec
// §4.5.5). txn is threaded through per original_source's
// Remove(key, transaction), tracking the write descent's ancestor chain
// in txn's page_set and any pages this call frees in its deleted_page_set
// (spec §6). txn may be nil, matching the original's nullable Transaction*.
func (t *BPlusTree) Remove(key int64, txn *transaction.Transaction) bool {
	t.rootMutex.Lock()
	if t.rootID == common.InvalidPageID {
		t.rootMutex.Unlock()
		return false
	}

	leafGuard, wc, ok := t.descendWrite(key, txn, func(buf []byte) bool {
		if IsLeaf(buf) {
			l := NewLeafPage(buf)
			return l.Size() > MinSize(TypeLeaf, l.MaxSize())
		}
		p := NewInternalPage(buf)
		return p.Size() > MinSize(TypeInternal, p.MaxSize())
	})
	if !ok {
		return false
	}

	leaf := NewLeafPage(leafGuard.Frame().Bytes[:])
	if !leaf.Remove(key) {
		leafGuard.Frame().Latch.Unlock()
		leafGuard.Unpin(false)
		t.releaseAncestors(wc)
		t.flushPendingDeletes(wc)
		return false
	}

	isRoot := len(wc.ancestors) == 0 && leafGuard.PageID() == t.rootID
	if isRoot {
		t.adjustRoot(leafGuard, wc)
		t.flushPendingDeletes(wc)
		return true
	}

	if leaf.Size() >= MinSize(TypeLeaf, leaf.MaxSize()) {
		leafGuard.Frame().Latch.Unlock()
		leafGuard.Unpin(true)
		t.releaseAncestors(wc)
		t.flushPendingDeletes(wc)
		return true
	}

	t.coalesceOrRedistribute(leafGuard, TypeLeaf, wc)
	t.flushPendingDeletes(wc)
	return true
}

// adjustRoot implements spec §4.5.5 step 5. wc.ancestors is always empty
// here; the root is either kept, demoted, or deleted. Deletion of the old
// root page is deferred via wc.queueDelete until after it is unpinned
// below, since BufferPoolInstance.Delete refuses a still-pinned frame.
func (t *BPlusTree) adjustRoot(rootGuard *storage.PageGuard, wc *writeCrabber) {
	buf := rootGuard.Frame().Bytes[:]
	if IsLeaf(buf) {
		leaf := NewLeafPage(buf)
		if leaf.Size() == 0 {
			wc.queueDelete(rootGuard.PageID())
			t.rootID = common.InvalidPageID
			rootGuard.Frame().Latch.Unlock()
			rootGuard.Unpin(false)
		} else {
			rootGuard.Frame().Latch.Unlock()
			rootGuard.Unpin(true)
		}
		t.releaseAncestors(wc)
		return
	}

	internal := NewInternalPage(buf)
	if internal.Size() >= 2 {
		rootGuard.Frame().Latch.Unlock()
		rootGuard.Unpin(true)
		t.releaseAncestors(wc)
		return
	}
	if internal.Size() == 1 {
		onlyChild := internal.ValueAt(0)
		wc.queueDelete(rootGuard.PageID())
		t.rootID = onlyChild

		childGuard, ok := t.pool.Fetch(onlyChild)
		if ok {
			childGuard.Frame().Latch.Lock()
			setParentPageID(childGuard.Frame().Bytes[:], common.InvalidPageID)
			childGuard.Frame().Latch.Unlock()
			childGuard.Unpin(true)
		}
		rootGuard.Frame().Latch.Unlock()
		rootGuard.Unpin(false)
		t.releaseAncestors(wc)
		return
	}
	rootGuard.Frame().Latch.Unlock()
	rootGuard.Unpin(true)
	t.releaseAncestors(wc)
}

// coalesceOrRedistribute implements spec §4.5.5 step 4, iterating up the
// ancestor chain instead of recursing.
func (t *BPlusTree) coalesceOrRedistribute(node *storage.PageGuard, kind PageType, wc *writeCrabber) {
	for {
		if len(wc.ancestors) == 0 {
			t.adjustRoot(node, wc)
			return
		}

		parent := wc.ancestors[len(wc.ancestors)-1]
		wc.ancestors = wc.ancestors[:len(wc.ancestors)-1]
		if wc.txn != nil {
			wc.txn.PopPageSet()
		}
		parentView := NewInternalPage(parent.Frame().Bytes[:])
		idx := parentView.ValueIndex(node.PageID())
		minSize := MinSize(kind, sizeOfMaxSize(node, kind))

		if idx > 0 {
			leftID := parentView.ValueAt(idx - 1)
			leftGuard, ok := t.pool.Fetch(leftID)
			if ok {
				leftGuard.Frame().Latch.Lock()
				if sizeOf(leftGuard, kind) > minSize {
					t.redistributeFromLeft(leftGuard, node, parent, idx, kind)
					parent.Frame().Latch.Unlock()
					parent.Unpin(true)
					t.releaseAncestors(wc)
					return
				}
				leftGuard.Frame().Latch.Unlock()
				leftGuard.Unpin(false)
			}
		}

		if idx < parentView.Size()-1 {
			rightID := parentView.ValueAt(idx + 1)
			rightGuard, ok := t.pool.Fetch(rightID)
			if ok {
				rightGuard.Frame().Latch.Lock()
				if sizeOf(rightGuard, kind) > minSize {
					t.redistributeFromRight(node, rightGuard, parent, idx, kind)
					parent.Frame().Latch.Unlock()
					parent.Unpin(true)
					t.releaseAncestors(wc)
					return
				}
				rightGuard.Frame().Latch.Unlock()
				rightGuard.Unpin(false)
			}
		}

		if idx > 0 {
			leftID := parentView.ValueAt(idx - 1)
			leftGuard, ok := t.pool.Fetch(leftID)
			if ok {
				leftGuard.Frame().Latch.Lock()
				t.coalesceInto(leftGuard, node, parent, idx, kind)
				node.Frame().Latch.Unlock()
				node.Unpin(false)
				wc.queueDelete(node.PageID())
				parentView.RemoveAt(idx)
				leftGuard.Frame().Latch.Unlock()
				leftGuard.Unpin(true)

				if parentView.Size() < MinSize(TypeInternal, parentView.MaxSize()) {
					node, kind = parent, TypeInternal
					continue
				}
				parent.Frame().Latch.Unlock()
				parent.Unpin(true)
				t.releaseAncestors(wc)
				return
			}
		}

		rightID := parentView.ValueAt(idx + 1)
		rightGuard, _ := t.pool.Fetch(rightID)
		rightGuard.Frame().Latch.Lock()
		t.coalesceInto(node, rightGuard, parent, idx+1, kind)
		rightGuard.Frame().Latch.Unlock()
		rightGuard.Unpin(false)
		wc.queueDelete(rightGuard.PageID())
		parentView.RemoveAt(idx + 1)
		node.Frame().Latch.Unlock()
		node.Unpin(true)

		if parentView.Size() < MinSize(TypeInternal, parentView.MaxSize()) {
			node, kind = parent, TypeInternal
			continue
		}
		parent.Frame().Latch.Unlock()
		parent.Unpin(true)
		t.releaseAncestors(wc)
		return
	}
}

// Dump writes a line-per-node depth-first sketch of the tree to w, for test
// failure diagnostics only — never part of the transactional API. Grounded
// on the original BusTub's Graphviz ToGraph/Draw debug dumper (spec §9
// supplemented features), reduced to plain text since nothing here renders
// Graphviz output.
func (t *BPlusTree) Dump(w io.Writer) {
	root := t.RootPageID()
	if root == common.InvalidPageID {
		fmt.Fprintln(w, "(empty tree)")
		return
	}
	t.dumpNode(w, root, 0)
}

func (t *BPlusTree) dumpNode(w io.Writer, id common.PageID, depth int) {
	guard, ok := t.pool.Fetch(id)
	if !ok {
		fmt.Fprintf(w, "%*s<missing page %s>\n", depth*2, "", id)
		return
	}
	guard.Frame().Latch.RLock()
	buf := guard.Frame().Bytes[:]
	if IsLeaf(buf) {
		leaf := NewLeafPage(buf)
		keys := make([]int64, leaf.Size())
		for i := range keys {
			keys[i] = leaf.KeyAt(i)
		}
		fmt.Fprintf(w, "%*sleaf(%s) next=%s keys=%v\n", depth*2, "", id, leaf.NextPageID(), keys)
		guard.Frame().Latch.RUnlock()
		guard.Unpin(false)
		return
	}
	internal := NewInternalPage(buf)
	n := internal.Size()
	children := make([]common.PageID, n)
	keys := make([]int64, n)
	for i := 0; i < n; i++ {
		children[i] = internal.ValueAt(i)
		keys[i] = internal.KeyAt(i)
	}
	fmt.Fprintf(w, "%*sinternal(%s) keys=%v\n", depth*2, "", id, keys[1:])
	guard.Frame().Latch.RUnlock()
	guard.Unpin(false)
	for _, child := range children {
		t.dumpNode(w, child, depth+1)
	}
}

func sizeOf(g *storage.PageGuard, kind PageType) int {
	if kind == TypeLeaf {
		return NewLeafPage(g.Frame().Bytes[:]).Size()
	}
	return NewInternalPage(g.Frame().Bytes[:]).Size()
}

func sizeOfMaxSize(g *storage.PageGuard, kind PageType) int {
	if kind == TypeLeaf {
		return NewLeafPage(g.Frame().Bytes[:]).MaxSize()
	}
	return NewInternalPage(g.Frame().Bytes[:]).MaxSize()
}

// redistributeFromLeft moves left's last entry into node's front (node is
// parent slot idx, left is slot idx-1).
func (t *BPlusTree) redistributeFromLeft(left, node, parent *storage.PageGuard, idx int, kind PageType) {
	parentView := NewInternalPage(parent.Frame().Bytes[:])
	sepKey := parentView.KeyAt(idx)
	if kind == TypeLeaf {
		l, n := NewLeafPage(left.Frame().Bytes[:]), NewLeafPage(node.Frame().Bytes[:])
		l.MoveLastToFrontOf(n)
		parentView.setKeyAt(idx, n.KeyAt(0))
	} else {
		l, n := NewInternalPage(left.Frame().Bytes[:]), NewInternalPage(node.Frame().Bytes[:])
		moved, newSep := l.MoveLastToFrontOf(n, sepKey)
		parentView.setKeyAt(idx, newSep)
		cg, ok := t.pool.Fetch(moved)
		if ok {
			cg.Frame().Latch.Lock()
			setParentPageID(cg.Frame().Bytes[:], node.PageID())
			cg.Frame().Latch.Unlock()
			cg.Unpin(true)
		}
	}
	left.Frame().Latch.Unlock()
	left.Unpin(true)
	node.Frame().Latch.Unlock()
	node.Unpin(true)
}

// redistributeFromRight moves right's first entry onto node's end (node is
// parent slot idx, right is slot idx+1).
func (t *BPlusTree) redistributeFromRight(node, right, parent *storage.PageGuard, idx int, kind PageType) {
	parentView := NewInternalPage(parent.Frame().Bytes[:])
	sepKey := parentView.KeyAt(idx + 1)
	if kind == TypeLeaf {
		n, r := NewLeafPage(node.Frame().Bytes[:]), NewLeafPage(right.Frame().Bytes[:])
		r.MoveFirstToEndOf(n)
		parentView.setKeyAt(idx+1, r.KeyAt(0))
	} else {
		n, r := NewInternalPage(node.Frame().Bytes[:]), NewInternalPage(right.Frame().Bytes[:])
		moved, newSep := r.MoveFirstToEndOf(n, sepKey)
		parentView.setKeyAt(idx+1, newSep)
		cg, ok := t.pool.Fetch(moved)
		if ok {
			cg.Frame().Latch.Lock()
			setParentPageID(cg.Frame().Bytes[:], node.PageID())
			cg.Frame().Latch.Unlock()
			cg.Unpin(true)
		}
	}
	node.Frame().Latch.Unlock()
	node.Unpin(true)
	right.Frame().Latch.Unlock()
	right.Unpin(true)
}

// coalesceInto merges src's entries into dst (dst is the left/kept
// neighbor). parentSlot is the parent index whose key currently separates
// dst from src (used to re-key an internal merge's first moved entry).
func (t *BPlusTree) coalesceInto(dst, src, parent *storage.PageGuard, parentSlot int, kind PageType) {
	parentView := NewInternalPage(parent.Frame().Bytes[:])
	if kind == TypeLeaf {
		s, d := NewLeafPage(src.Frame().Bytes[:]), NewLeafPage(dst.Frame().Bytes[:])
		s.MoveAllTo(d)
		return
	}
	sepKey := parentView.KeyAt(parentSlot)
	s, d := NewInternalPage(src.Frame().Bytes[:]), NewInternalPage(dst.Frame().Bytes[:])
	moved := s.MoveAllTo(d, sepKey)
	for _, childID := range moved {
		cg, ok := t.pool.Fetch(childID)
		if !ok {
			continue
		}
		cg.Frame().Latch.Lock()
		setParentPageID(cg.Frame().Bytes[:], dst.PageID())
		cg.Frame().Latch.Unlock()
		cg.Unpin(true)
	}
}
