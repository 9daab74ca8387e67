package transaction

import (
	"testing"
	"time"

	"github.com/relstore/reldb-core/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRID(n uint32) common.RID {
	return common.RID{PageID: common.PageID(n), Slot: n}
}

// TestWoundWaitOlderPreemptsYounger is spec scenario S5: an older
// transaction requesting a conflicting lock aborts the younger holder
// rather than waiting behind it.
func TestWoundWaitOlderPreemptsYounger(t *testing.T) {
	lm := NewLockManager()
	r := testRID(1)

	young := New(2, ReadCommitted)
	old := New(1, ReadCommitted)

	require.NoError(t, lm.LockExclusive(young, r))

	done := make(chan error, 1)
	go func() {
		done <- lm.LockExclusive(old, r)
	}()

	require.Eventually(t, func() bool {
		return young.State() == Aborted
	}, time.Second, time.Millisecond, "younger holder should be wounded")

	select {
	case err := <-done:
		require.NoError(t, err, "older requester should proceed once the younger holder is wounded")
	case <-time.After(time.Second):
		t.Fatal("older requester never acquired the lock")
	}
	assert.True(t, old.hasExclusive(r))
}

func TestWoundWaitYoungerWaitsBehindOlder(t *testing.T) {
	lm := NewLockManager()
	r := testRID(2)

	old := New(1, ReadCommitted)
	young := New(2, ReadCommitted)

	require.NoError(t, lm.LockExclusive(old, r))

	acquired := make(chan struct{})
	go func() {
		_ = lm.LockShared(young, r)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("younger requester must not acquire while older holds a conflicting lock")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, lm.Unlock(old, r))

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("younger requester should acquire once the older transaction releases")
	}
}

// TestSharedRequestBypassesQueuedExclusive covers spec §4.6's literal wait
// condition: a Shared request is blocked only when the queue's front entry
// holds Exclusive and reader_count is 0 — not by any ungranted Exclusive
// request elsewhere in the queue. Txn1 holds Shared, Txn2's Exclusive
// request queues behind it (blocked by the active reader), and Txn3's
// Shared request must still be granted immediately since the front of the
// queue (Txn1) is Shared.
func TestSharedRequestBypassesQueuedExclusive(t *testing.T) {
	lm := NewLockManager()
	r := testRID(20)

	txn1 := New(1, ReadCommitted)
	txn2 := New(2, ReadCommitted)
	txn3 := New(3, ReadCommitted)

	require.NoError(t, lm.LockShared(txn1, r))

	exclusiveDone := make(chan struct{})
	go func() {
		_ = lm.LockExclusive(txn2, r)
		close(exclusiveDone)
	}()

	require.Eventually(t, func() bool {
		snap := lm.DebugSnapshot(r)
		return len(snap) == 2 && !snap[1].Granted
	}, time.Second, time.Millisecond, "txn2's exclusive request should be queued but ungranted")

	sharedDone := make(chan error, 1)
	go func() {
		sharedDone <- lm.LockShared(txn3, r)
	}()

	select {
	case err := <-sharedDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("txn3's shared request should bypass txn2's still-queued exclusive request")
	}
	assert.True(t, txn3.hasShared(r))

	require.NoError(t, lm.Unlock(txn1, r))
	require.NoError(t, lm.Unlock(txn3, r))

	select {
	case <-exclusiveDone:
	case <-time.After(time.Second):
		t.Fatal("txn2's exclusive request should acquire once every reader releases")
	}
	assert.True(t, txn2.hasExclusive(r))
}

// TestReadCommittedLockLifetime is spec scenario S6: a READ_COMMITTED
// transaction's shared-lock set must be empty between tuples, and it must
// never transition to SHRINKING from an unlock.
func TestReadCommittedLockLifetime(t *testing.T) {
	lm := NewLockManager()
	txn := New(1, ReadCommitted)

	for i := uint32(0); i < 5; i++ {
		r := testRID(100 + i)
		require.NoError(t, lm.LockShared(txn, r))
		assert.Equal(t, 1, txn.SharedLockSetSize())
		require.NoError(t, lm.Unlock(txn, r))
		assert.Equal(t, 0, txn.SharedLockSetSize())
		assert.Equal(t, Growing, txn.State())
	}
}

func TestRepeatableReadUnlockEntersShrinking(t *testing.T) {
	lm := NewLockManager()
	txn := New(1, RepeatableRead)
	r := testRID(9)

	require.NoError(t, lm.LockShared(txn, r))
	require.NoError(t, lm.Unlock(txn, r))
	assert.Equal(t, Shrinking, txn.State())
}

func TestLockSharedUnderReadUncommittedAborts(t *testing.T) {
	lm := NewLockManager()
	txn := New(1, ReadUncommitted)
	r := testRID(3)

	err := lm.LockShared(txn, r)
	require.Error(t, err)
	assert.Equal(t, Aborted, txn.State())
}

func TestLockOnShrinkingAborts(t *testing.T) {
	lm := NewLockManager()
	txn := New(1, RepeatableRead)
	r1, r2 := testRID(4), testRID(5)

	require.NoError(t, lm.LockShared(txn, r1))
	require.NoError(t, lm.Unlock(txn, r1))
	assert.Equal(t, Shrinking, txn.State())

	err := lm.LockShared(txn, r2)
	require.Error(t, err)
	assert.Equal(t, Aborted, txn.State())
}

func TestLockUpgrade(t *testing.T) {
	lm := NewLockManager()
	txn := New(1, ReadCommitted)
	r := testRID(6)

	require.NoError(t, lm.LockShared(txn, r))
	require.NoError(t, lm.LockUpgrade(txn, r))
	assert.True(t, txn.hasExclusive(r))
	assert.False(t, txn.hasShared(r))
}

func TestLockUpgradeConflictWhenAlreadyUpgrading(t *testing.T) {
	lm := NewLockManager()
	r := testRID(7)
	// a is younger than b, so a's upgrade waits behind b's shared lock
	// instead of wounding b.
	a := New(2, ReadCommitted)
	b := New(1, ReadCommitted)

	require.NoError(t, lm.LockShared(a, r))
	require.NoError(t, lm.LockShared(b, r))

	done := make(chan error, 1)
	go func() {
		done <- lm.LockUpgrade(a, r)
	}()
	// Give a's upgrade a chance to mark the queue as upgrading before b tries.
	time.Sleep(20 * time.Millisecond)

	err := lm.LockUpgrade(b, r)
	require.Error(t, err)
	assert.Equal(t, Aborted, b.State())

	require.NoError(t, lm.Unlock(b, r))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("a's upgrade never completed")
	}
}

func TestUnlockNeverHeldAborts(t *testing.T) {
	lm := NewLockManager()
	txn := New(1, ReadCommitted)
	err := lm.Unlock(txn, testRID(8))
	require.Error(t, err)
	assert.Equal(t, Aborted, txn.State())
}

func TestDebugSnapshotReportsQueue(t *testing.T) {
	lm := NewLockManager()
	r := testRID(10)
	txn := New(1, ReadCommitted)
	require.NoError(t, lm.LockShared(txn, r))

	snap := lm.DebugSnapshot(r)
	require.Len(t, snap, 1)
	assert.Equal(t, common.TransactionID(1), snap[0].TxnID)
	assert.True(t, snap[0].Granted)
	assert.Equal(t, Shared, snap[0].Mode)
}
