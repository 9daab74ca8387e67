package transaction

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/relstore/reldb-core/common"
)

// LockMode is the two-mode subset of the teacher's five-mode DBLockMode
// (transaction/lock.go): this spec's lock manager is row-level only, with
// no intent/multi-granularity locking, so IS/IX/SIX have no home here.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

// conflicts reports whether a request for `req` mode is blocked by an
// existing entry holding/waiting in `held` mode.
func conflicts(req, held LockMode) bool {
	return req == Exclusive || held == Exclusive
}

// lockRequest is one entry in a resource's FIFO queue — either granted
// (currently held) or still waiting.
type lockRequest struct {
	txn     *Transaction
	mode    LockMode
	granted bool
}

// lockQueue is the per-RID resource state, mirroring the teacher's dbLock
// but with a single condition variable driving one arrival-ordered
// wound-wait queue (granted as grantReady describes) instead of GoDB's
// wait-die holder/waiter/upgrader split.
type lockQueue struct {
	mu           sync.Mutex
	cond         *sync.Cond
	requests     []*lockRequest
	readerCount  int
	upgrading    bool
	upgradingTxn common.TransactionID
}

func newLockQueue() *lockQueue {
	q := &lockQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// LockManager grants shared/exclusive locks on RIDs under a wound-wait
// policy: an older transaction (lower TransactionID) wounds — aborts and
// evicts — any younger conflicting entry in the queue, granted or waiting,
// rather than waiting behind it. A younger requester simply waits its turn.
// Grounded on the teacher's xsync-backed lock table (transaction/lock.go)
// for the resource-keyed map shape; the grant/wound algorithm itself is
// this spec's, since the teacher implements wait-die over five lock modes.
type LockManager struct {
	table *xsync.MapOf[common.RID, *lockQueue]
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{table: xsync.NewMapOf[common.RID, *lockQueue]()}
}

func (lm *LockManager) queueFor(rid common.RID) *lockQueue {
	q, _ := lm.table.LoadOrStore(rid, newLockQueue())
	return q
}

// woundYounger aborts and evicts every queue entry (granted or waiting)
// belonging to a transaction younger than requester that conflicts with
// mode. Caller must hold q.mu. Returns true if anything was evicted.
func woundYounger(q *lockQueue, requester common.TransactionID, mode LockMode) bool {
	evicted := false
	kept := q.requests[:0]
	for _, r := range q.requests {
		if r.txn.ID() > requester && conflicts(mode, r.mode) {
			if r.granted && r.mode == Shared {
				q.readerCount--
			}
			r.txn.SetState(Aborted)
			evicted = true
			continue
		}
		kept = append(kept, r)
	}
	q.requests = kept
	if evicted {
		q.cond.Broadcast()
	}
	return evicted
}

// grantReady grants every request that spec §4.6's wait conditions permit:
// an Exclusive request only once it is the queue's front entry and
// reader_count is 0; a Shared request unless the front entry holds
// Exclusive with reader_count still 0. Grounded on
// _examples/original_source/src/concurrency/lock_manager.cpp:73-74's
// LockShared wait loop, which checks only request_queue.front() and
// reader_count_ — not every entry ahead of the request — so a Shared
// request can bypass an earlier, still-waiting Exclusive request whenever
// the front of the queue is itself Shared. Caller must hold q.mu.
func grantReady(q *lockQueue) {
	if len(q.requests) == 0 {
		return
	}
	front := q.requests[0]
	frontBlocksReaders := front.mode == Exclusive && q.readerCount == 0
	for _, r := range q.requests {
		if r.granted {
			continue
		}
		if r.mode == Exclusive {
			if r == front && q.readerCount == 0 {
				r.granted = true
			}
			continue
		}
		if frontBlocksReaders {
			continue
		}
		r.granted = true
		q.readerCount++
	}
}

// acquire is the shared body of LockShared/LockExclusive/the exclusive half
// of LockUpgrade.
func (lm *LockManager) acquire(txn *Transaction, rid common.RID, mode LockMode) error {
	q := lm.queueFor(rid)
	q.mu.Lock()

	woundYounger(q, txn.ID(), mode)

	req := &lockRequest{txn: txn, mode: mode}
	q.requests = append(q.requests, req)
	grantReady(q)

	for !req.granted && txn.State() != Aborted {
		q.cond.Wait()
		// A wound pass elsewhere may have removed us from the queue while
		// leaving req.granted false forever; re-run grant in case our
		// removal or another's unlock unblocked us. grantReady is a no-op
		// if nothing changed.
		grantReady(q)
	}

	if txn.State() == Aborted {
		// Either wounded before grant, or aborted for an unrelated reason.
		// Splice ourselves out if still present (wounding already does this
		// for conflicting entries, but our own request may remain if it was
		// never a wound target).
		kept := q.requests[:0]
		for _, r := range q.requests {
			if r == req {
				if r.granted && r.mode == Shared {
					q.readerCount--
				}
				continue
			}
			kept = append(kept, r)
		}
		q.requests = kept
		q.mu.Unlock()
		return common.NewDBError(common.ErrDeadlock, txn.ID(), "wounded while waiting for lock on %s", rid)
	}

	q.mu.Unlock()

	if mode == Shared {
		txn.addShared(rid)
	} else {
		txn.addExclusive(rid)
	}
	return nil
}

// LockShared acquires a shared lock on rid for txn.
func (lm *LockManager) LockShared(txn *Transaction, rid common.RID) error {
	if txn.State() == Shrinking {
		txn.SetState(Aborted)
		return common.NewDBError(common.ErrLockOnShrinking, txn.ID(), "lock_shared requested while shrinking on %s", rid)
	}
	if txn.IsolationLevel() == ReadUncommitted {
		txn.SetState(Aborted)
		return common.NewDBError(common.ErrLockSharedOnReadUncommitted, txn.ID(), "lock_shared illegal under READ_UNCOMMITTED")
	}
	return lm.acquire(txn, rid, Shared)
}

// LockExclusive acquires an exclusive lock on rid for txn.
func (lm *LockManager) LockExclusive(txn *Transaction, rid common.RID) error {
	if txn.State() == Shrinking {
		txn.SetState(Aborted)
		return common.NewDBError(common.ErrLockOnShrinking, txn.ID(), "lock_exclusive requested while shrinking on %s", rid)
	}
	return lm.acquire(txn, rid, Exclusive)
}

// LockUpgrade converts a held shared lock into an exclusive one atomically
// with respect to other upgraders on the same resource.
func (lm *LockManager) LockUpgrade(txn *Transaction, rid common.RID) error {
	if txn.State() == Shrinking {
		txn.SetState(Aborted)
		return common.NewDBError(common.ErrLockOnShrinking, txn.ID(), "lock_upgrade requested while shrinking on %s", rid)
	}

	q := lm.queueFor(rid)
	q.mu.Lock()
	if q.upgrading {
		q.mu.Unlock()
		txn.SetState(Aborted)
		return common.NewDBError(common.ErrUpgradeConflict, txn.ID(), "another transaction is already upgrading on %s", rid)
	}
	var found *lockRequest
	for _, r := range q.requests {
		if r.txn == txn && r.granted && r.mode == Shared {
			found = r
			break
		}
	}
	if found == nil {
		q.mu.Unlock()
		txn.SetState(Aborted)
		return common.NewDBError(common.ErrUpgradeConflict, txn.ID(), "txn does not hold shared lock on %s to upgrade", rid)
	}
	q.upgrading = true
	q.upgradingTxn = txn.ID()

	kept := q.requests[:0]
	for _, r := range q.requests {
		if r == found {
			q.readerCount--
			continue
		}
		kept = append(kept, r)
	}
	q.requests = kept
	txn.removeShared(rid)

	woundYounger(q, txn.ID(), Exclusive)
	req := &lockRequest{txn: txn, mode: Exclusive}
	q.requests = append(q.requests, req)
	grantReady(q)

	for !req.granted && txn.State() != Aborted {
		q.cond.Wait()
		grantReady(q)
	}

	q.upgrading = false
	if txn.State() == Aborted {
		kept := q.requests[:0]
		for _, r := range q.requests {
			if r != req {
				kept = append(kept, r)
			}
		}
		q.requests = kept
		q.mu.Unlock()
		return common.NewDBError(common.ErrDeadlock, txn.ID(), "wounded while upgrading lock on %s", rid)
	}
	q.mu.Unlock()

	txn.addExclusive(rid)
	return nil
}

// Unlock releases txn's lock on rid, transitioning REPEATABLE_READ
// transactions to SHRINKING per spec §4.6.
func (lm *LockManager) Unlock(txn *Transaction, rid common.RID) error {
	hadShared, hadExclusive := txn.hasShared(rid), txn.hasExclusive(rid)
	if !hadShared && !hadExclusive {
		txn.SetState(Aborted)
		return common.NewDBError(common.ErrUnlockOnShrinking, txn.ID(), "unlock called for %s not held by txn", rid)
	}

	q, ok := lm.table.Load(rid)
	if ok {
		q.mu.Lock()
		kept := q.requests[:0]
		for _, r := range q.requests {
			if r.txn == txn && r.granted {
				if r.mode == Shared {
					q.readerCount--
				}
				continue
			}
			kept = append(kept, r)
		}
		q.requests = kept
		grantReady(q)
		q.cond.Broadcast()
		q.mu.Unlock()
	}

	if hadShared {
		txn.removeShared(rid)
	}
	if hadExclusive {
		txn.removeExclusive(rid)
	}

	if txn.IsolationLevel() == RepeatableRead && txn.State() == Growing {
		txn.SetState(Shrinking)
	}
	return nil
}

// QueueEntry is one line of a LockManager.DebugSnapshot report.
type QueueEntry struct {
	TxnID   common.TransactionID
	Mode    LockMode
	Granted bool
}

// DebugSnapshot reports the current queue contents for rid, oldest request
// first. Test-only introspection, grounded on the original BusTub's
// GetLockRequestQueue accessor (spec §9 supplemented features).
func (lm *LockManager) DebugSnapshot(rid common.RID) []QueueEntry {
	q, ok := lm.table.Load(rid)
	if !ok {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueueEntry, len(q.requests))
	for i, r := range q.requests {
		out[i] = QueueEntry{TxnID: r.txn.ID(), Mode: r.mode, Granted: r.granted}
	}
	return out
}
