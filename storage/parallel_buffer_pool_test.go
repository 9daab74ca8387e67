package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newParallelTestPool(t *testing.T, numInstances, poolSize int) *ParallelBufferPool {
	t.Helper()
	dir := t.TempDir()
	return NewParallelBufferPool(numInstances, poolSize, func(i int) DiskManager {
		dm, err := NewFileDiskManager(filepath.Join(dir, fmt.Sprintf("shard-%d.db", i)))
		require.NoError(t, err)
		t.Cleanup(func() { _ = dm.Close() })
		return dm
	})
}

// TestParallelBufferPoolShardsByPageIDModN checks spec §4.3's routing
// invariant: every page's id mod N equals the instance that allocated it.
func TestParallelBufferPoolShardsByPageIDModN(t *testing.T) {
	n := 4
	pool := newParallelTestPool(t, n, 4)

	seen := map[int]bool{}
	for i := 0; i < 16; i++ {
		g, ok := pool.New()
		require.True(t, ok)
		idx := int(g.PageID()) % n
		if idx < 0 {
			idx += n
		}
		seen[idx] = true
		require.True(t, pool.Unpin(g.PageID(), false))
	}
	require.Len(t, seen, n, "allocations should have touched every shard")
}

func TestParallelBufferPoolFetchRoundTrip(t *testing.T) {
	pool := newParallelTestPool(t, 3, 2)

	g, ok := pool.New()
	require.True(t, ok)
	pid := g.PageID()
	g.Frame().Bytes[0] = 0x7A
	require.True(t, pool.Unpin(pid, true))
	require.True(t, pool.Flush(pid))

	back, ok := pool.Fetch(pid)
	require.True(t, ok)
	require.Equal(t, byte(0x7A), back.Frame().Bytes[0])
	require.True(t, pool.Unpin(pid, false))
}

func TestParallelBufferPoolPoolSizeSumsInstances(t *testing.T) {
	pool := newParallelTestPool(t, 3, 5)
	require.Equal(t, 15, pool.PoolSize())
}
