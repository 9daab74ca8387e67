package hashindex

import (
	"testing"

	"github.com/relstore/reldb-core/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBucket() BucketPage {
	buf := make([]byte, common.PageSize)
	b := NewBucketPage(buf)
	b.Init()
	return b
}

func TestBucketPageInsertAndGet(t *testing.T) {
	b := newTestBucket()
	r1 := common.RID{PageID: 1, Slot: 1}

	require.True(t, b.Insert(10, r1))
	values := b.GetValue(10)
	require.Len(t, values, 1)
	assert.Equal(t, r1, values[0])
}

func TestBucketPageRejectsDuplicatePair(t *testing.T) {
	b := newTestBucket()
	r1 := common.RID{PageID: 1, Slot: 1}

	require.True(t, b.Insert(10, r1))
	assert.False(t, b.Insert(10, r1), "exact duplicate pair must be rejected")
	assert.True(t, b.Insert(10, common.RID{PageID: 2, Slot: 2}), "same key, different value is fine")
}

func TestBucketPageFullRejectsInsert(t *testing.T) {
	b := newTestBucket()
	for i := 0; i < BucketArraySize; i++ {
		require.True(t, b.Insert(int64(i), common.RID{PageID: common.PageID(i), Slot: uint32(i)}))
	}
	assert.True(t, b.IsFull())
	assert.False(t, b.Insert(int64(BucketArraySize), common.RID{PageID: 999, Slot: 0}))
}

func TestBucketPageRemoveTombstonesReadableOnly(t *testing.T) {
	b := newTestBucket()
	r1, r2 := common.RID{PageID: 1, Slot: 1}, common.RID{PageID: 2, Slot: 2}
	require.True(t, b.Insert(10, r1))
	require.True(t, b.Insert(20, r2))

	require.True(t, b.Remove(10, r1))
	assert.Empty(t, b.GetValue(10))
	assert.Len(t, b.GetValue(20), 1)

	// occupied[0] stays set (tombstone) so the contiguous-scan invariant
	// used by GetValue/Insert still terminates correctly past slot 0.
	assert.True(t, b.occupied.LoadBit(0))
	assert.False(t, b.readable.LoadBit(0))
}

func TestBucketPageRemoveMissingReturnsFalse(t *testing.T) {
	b := newTestBucket()
	assert.False(t, b.Remove(10, common.RID{PageID: 1, Slot: 1}))
}

func TestBucketPageAllReadableSkipsTombstones(t *testing.T) {
	b := newTestBucket()
	r1, r2 := common.RID{PageID: 1, Slot: 1}, common.RID{PageID: 2, Slot: 2}
	require.True(t, b.Insert(10, r1))
	require.True(t, b.Insert(20, r2))
	require.True(t, b.Remove(10, r1))

	entries := b.AllReadable()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(20), entries[0].Key)
	assert.Equal(t, r2, entries[0].Value)
}

func TestBucketPageIsEmpty(t *testing.T) {
	b := newTestBucket()
	assert.True(t, b.IsEmpty())
	r1 := common.RID{PageID: 1, Slot: 1}
	require.True(t, b.Insert(1, r1))
	assert.False(t, b.IsEmpty())
	require.True(t, b.Remove(1, r1))
	assert.True(t, b.IsEmpty())
}
