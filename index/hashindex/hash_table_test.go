package hashindex

import (
	"path/filepath"
	"testing"

	"github.com/relstore/reldb-core/common"
	"github.com/relstore/reldb-core/storage"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, poolSize int) *storage.BufferPoolInstance {
	t.Helper()
	dm, err := storage.NewFileDiskManager(filepath.Join(t.TempDir(), "hash.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	return storage.NewBufferPoolInstance(poolSize, dm, 1, 0)
}

func rid(n int64) common.RID {
	return common.RID{PageID: common.PageID(n), Slot: uint32(n)}
}

// TestHashTableSplitOnOverflow is spec scenario S2: inserting B+1 unique
// keys into an empty table (bucket capacity B) forces exactly one split.
func TestHashTableSplitOnOverflow(t *testing.T) {
	pool := newTestPool(t, 16)
	ht, ok := NewHashTable(pool)
	require.True(t, ok)

	b := BucketArraySize
	for k := 0; k <= b; k++ {
		require.True(t, ht.Insert(int64(k), rid(int64(k))), "insert %d should succeed", k)
	}

	require.Equal(t, uint32(1), ht.GlobalDepth())
	require.Equal(t, 2, ht.NumBuckets())

	for k := 0; k <= b; k++ {
		values := ht.Get(int64(k))
		require.Len(t, values, 1, "key %d should resolve to exactly one value", k)
		require.Equal(t, rid(int64(k)), values[0])
	}
}

// TestHashTableMergeAfterEmptying is spec scenario S3: after S2's split,
// removing every key from one bucket collapses the directory back down.
func TestHashTableMergeAfterEmptying(t *testing.T) {
	pool := newTestPool(t, 16)
	ht, ok := NewHashTable(pool)
	require.True(t, ok)

	b := BucketArraySize
	keys := make([]int64, 0, b+1)
	for k := 0; k <= b; k++ {
		keys = append(keys, int64(k))
		require.True(t, ht.Insert(int64(k), rid(int64(k))))
	}
	require.Equal(t, uint32(1), ht.GlobalDepth())

	// Determine which keys ended up in directory slot 1 (the "right" bucket
	// after the split) by checking each key's post-split slot via
	// directoryIndexOf, then remove exactly that set.
	rightSlotKeys := []int64{}
	for _, k := range keys {
		if directoryIndexOf(ht, k) == 1 {
			rightSlotKeys = append(rightSlotKeys, k)
		}
	}
	require.NotEmpty(t, rightSlotKeys)

	removed := make(map[int64]bool, len(rightSlotKeys))
	for _, k := range rightSlotKeys {
		require.True(t, ht.Remove(k, rid(k)))
		removed[k] = true
	}

	require.Equal(t, uint32(0), ht.GlobalDepth())
	require.Equal(t, 1, ht.NumBuckets())

	for _, k := range keys {
		if removed[k] {
			continue
		}
		values := ht.Get(k)
		require.Len(t, values, 1)
	}
}

// directoryIndexOf peeks at which directory slot a key currently hashes to,
// for test bookkeeping only.
func directoryIndexOf(ht *HashTable, key int64) int {
	ht.tableLatch.RLock()
	defer ht.tableLatch.RUnlock()
	dirGuard, ok := ht.pool.Fetch(ht.directoryPageID)
	if !ok {
		return -1
	}
	defer dirGuard.Unpin(false)
	dirGuard.Frame().Latch.RLock()
	defer dirGuard.Frame().Latch.RUnlock()
	return NewDirectoryPage(dirGuard.Frame().Bytes[:]).IndexOf(key)
}

func TestHashTableInsertDuplicatePairRejected(t *testing.T) {
	pool := newTestPool(t, 8)
	ht, ok := NewHashTable(pool)
	require.True(t, ok)

	require.True(t, ht.Insert(1, rid(1)))
	require.False(t, ht.Insert(1, rid(1)), "duplicate (key, value) pair must be rejected")
	require.True(t, ht.Insert(1, rid(2)), "same key, different value must be accepted")

	values := ht.Get(1)
	require.Len(t, values, 2)
}

func TestHashTableRemoveMissingReturnsFalse(t *testing.T) {
	pool := newTestPool(t, 8)
	ht, ok := NewHashTable(pool)
	require.True(t, ok)

	require.False(t, ht.Remove(42, rid(42)))
}
