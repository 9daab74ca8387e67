package storage

import (
	"path/filepath"
	"testing"

	"github.com/relstore/reldb-core/common"
	"github.com/stretchr/testify/require"
)

func newTestDisk(t *testing.T) *FileDiskManager {
	t.Helper()
	dm, err := NewFileDiskManager(filepath.Join(t.TempDir(), "pool.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	return dm
}

// TestBufferPoolEvictionRoundTrip is spec scenario S1: with pool_size=3,
// three pages are created and unpinned (only p1 dirty), a fourth New() must
// evict the LRU victim (p1) and flush it, so re-fetching p1 sees the write.
func TestBufferPoolEvictionRoundTrip(t *testing.T) {
	bpi := NewBufferPoolInstance(3, newTestDisk(t), 1, 0)

	g1, ok := bpi.New()
	require.True(t, ok)
	p1 := g1.PageID()
	g1.Frame().Bytes[0] = 0x41

	g2, ok := bpi.New()
	require.True(t, ok)
	p2 := g2.PageID()

	g3, ok := bpi.New()
	require.True(t, ok)
	p3 := g3.PageID()

	require.True(t, bpi.Unpin(p1, true))
	require.True(t, bpi.Unpin(p2, false))
	require.True(t, bpi.Unpin(p3, false))

	g4, ok := bpi.New()
	require.True(t, ok)
	require.NotEqual(t, p1, g4.PageID())
	require.True(t, bpi.Unpin(g4.PageID(), false))

	back, ok := bpi.Fetch(p1)
	require.True(t, ok)
	require.Equal(t, byte(0x41), back.Frame().Bytes[0])
	bpi.Unpin(p1, false)
}

// TestBufferPoolEvictionSkipsDiskWriteWhenClean resolves spec §9 Open
// Question 1: a clean victim must not be written back on eviction, since
// its on-disk copy is already current.
func TestBufferPoolEvictionSkipsDiskWriteWhenClean(t *testing.T) {
	disk := newTestDisk(t)
	countingDisk := &writeCountingDisk{DiskManager: disk}
	bpi := NewBufferPoolInstance(1, countingDisk, 1, 0)

	g1, ok := bpi.New()
	require.True(t, ok)
	p1 := g1.PageID()
	require.True(t, bpi.Unpin(p1, false))

	before := countingDisk.writes
	_, ok = bpi.New()
	require.True(t, ok)
	require.Equal(t, before, countingDisk.writes, "clean victim must not be flushed on eviction")
}

func TestBufferPoolNewFailsWhenFullyPinned(t *testing.T) {
	bpi := NewBufferPoolInstance(1, newTestDisk(t), 1, 0)
	_, ok := bpi.New()
	require.True(t, ok)

	_, ok = bpi.New()
	require.False(t, ok, "no evictable frame should mean allocation fails")
}

func TestBufferPoolDeleteReturnsFrameToFreeList(t *testing.T) {
	bpi := NewBufferPoolInstance(1, newTestDisk(t), 1, 0)
	g, ok := bpi.New()
	require.True(t, ok)
	pid := g.PageID()
	require.True(t, bpi.Unpin(pid, false))

	require.True(t, bpi.Delete(pid))

	_, ok = bpi.New()
	require.True(t, ok, "deleted frame should be reusable without going through the replacer")
}

type writeCountingDisk struct {
	DiskManager
	writes int
}

func (d *writeCountingDisk) WritePage(id common.PageID, buf []byte) error {
	d.writes++
	return d.DiskManager.WritePage(id, buf)
}
