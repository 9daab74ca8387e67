// Package transaction implements the transaction context and the wound-wait
// lock manager (spec §4.6). It is grounded on the teacher's
// transaction/transaction_context.go and transaction/lock.go, keeping the
// same shape — a per-transaction scratch pad plus a resource-keyed lock
// table — while replacing GoDB's multi-granularity wait-die scheme with the
// single-granularity (S/X only) wound-wait policy this spec mandates.
package transaction

import (
	"sync"

	"github.com/relstore/reldb-core/common"
)

// IsolationLevel controls when a Transaction is required to hold shared
// locks, per spec §4.6's isolation summary.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ_UNCOMMITTED"
	case ReadCommitted:
		return "READ_COMMITTED"
	case RepeatableRead:
		return "REPEATABLE_READ"
	}
	return "UNKNOWN"
}

// State is the 2PL phase of a Transaction.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	}
	return "UNKNOWN"
}

// Transaction is the scratch pad threaded explicitly through lock manager
// and B⁺-tree calls (spec's Design Notes §9 replace a thread-local
// transaction context with explicit passing). Lower TransactionID means
// older, per spec §6's external interface note — the wound-wait policy in
// LockManager compares ids directly.
type Transaction struct {
	id        common.TransactionID
	isolation IsolationLevel

	mu    sync.Mutex
	state State

	sharedLockSet    map[common.RID]struct{}
	exclusiveLockSet map[common.RID]struct{}

	// pageSet and deletedPageSet back B⁺-tree latch-crabbing (spec §4.5.2,
	// §4.5.5): pages latched-but-not-yet-releasable during an insert or
	// delete descent, and pages slated for deletion once latches drop.
	pageSet        []common.PageID
	deletedPageSet map[common.PageID]struct{}
}

// New creates a fresh, GROWING transaction with the given id and isolation
// level. Callers are responsible for ids being monotonic and unique.
func New(id common.TransactionID, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:               id,
		isolation:        isolation,
		state:            Growing,
		sharedLockSet:    make(map[common.RID]struct{}),
		exclusiveLockSet: make(map[common.RID]struct{}),
		deletedPageSet:   make(map[common.PageID]struct{}),
	}
}

func (t *Transaction) ID() common.TransactionID       { return t.id }
func (t *Transaction) IsolationLevel() IsolationLevel { return t.isolation }

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// hasShared/hasExclusive/addShared... are mutated only by LockManager, per
// spec §6 ("shared_lock_set, exclusive_lock_set (mutation only by the lock
// manager)"). They are unexported to enforce that from outside the package
// as well as inside it — LockManager lives in this same package.
func (t *Transaction) hasShared(rid common.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sharedLockSet[rid]
	return ok
}

func (t *Transaction) hasExclusive(rid common.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.exclusiveLockSet[rid]
	return ok
}

func (t *Transaction) addShared(rid common.RID) {
	t.mu.Lock()
	t.sharedLockSet[rid] = struct{}{}
	t.mu.Unlock()
}

func (t *Transaction) removeShared(rid common.RID) {
	t.mu.Lock()
	delete(t.sharedLockSet, rid)
	t.mu.Unlock()
}

func (t *Transaction) addExclusive(rid common.RID) {
	t.mu.Lock()
	t.exclusiveLockSet[rid] = struct{}{}
	t.mu.Unlock()
}

func (t *Transaction) removeExclusive(rid common.RID) {
	t.mu.Lock()
	delete(t.exclusiveLockSet, rid)
	t.mu.Unlock()
}

// SharedLockSetSize and ExclusiveLockSetSize expose read-only counts for
// tests and diagnostics (spec S6 checks the shared-lock set is empty
// between tuples).
func (t *Transaction) SharedLockSetSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sharedLockSet)
}

func (t *Transaction) ExclusiveLockSetSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.exclusiveLockSet)
}

// AddToPageSet records a page latched during the current B⁺-tree descent.
func (t *Transaction) AddToPageSet(id common.PageID) {
	t.mu.Lock()
	t.pageSet = append(t.pageSet, id)
	t.mu.Unlock()
}

// PopPageSet removes and returns the most recently added page, for
// unwinding the crabbed ancestor chain from the deepest page toward the
// root.
func (t *Transaction) PopPageSet() (common.PageID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.pageSet)
	if n == 0 {
		return common.InvalidPageID, false
	}
	id := t.pageSet[n-1]
	t.pageSet = t.pageSet[:n-1]
	return id, true
}

// ClearPageSet drops the tracked page set, used once an operation has
// released every ancestor latch it was holding.
func (t *Transaction) ClearPageSet() {
	t.mu.Lock()
	t.pageSet = t.pageSet[:0]
	t.mu.Unlock()
}

// AddToDeletedPageSet marks id for deletion once B⁺-tree latches drop.
func (t *Transaction) AddToDeletedPageSet(id common.PageID) {
	t.mu.Lock()
	t.deletedPageSet[id] = struct{}{}
	t.mu.Unlock()
}

// DeletedPageSet drains and returns the set of pages queued for deletion.
func (t *Transaction) DeletedPageSet() []common.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]common.PageID, 0, len(t.deletedPageSet))
	for id := range t.deletedPageSet {
		ids = append(ids, id)
	}
	t.deletedPageSet = make(map[common.PageID]struct{})
	return ids
}
