package storage

import (
	"sync/atomic"

	"github.com/relstore/reldb-core/common"
)

// ParallelBufferPool shards page traffic across N independent
// BufferPoolInstances by `page_id mod N`, per spec §4.3. It holds no locks
// of its own beyond the rotating start index for New — each instance is
// independently linearizable, and there is no ordering guarantee across
// instances (spec §5).
type ParallelBufferPool struct {
	instances  []*BufferPoolInstance
	startIndex atomic.Int32
}

// NewParallelBufferPool creates numInstances BufferPoolInstances of
// instancePoolSize frames each, one DiskManager per instance (newDisk is
// called once per shard index so callers can route each shard to its own
// backing file).
func NewParallelBufferPool(numInstances, instancePoolSize int, newDisk func(instanceIndex int) DiskManager) *ParallelBufferPool {
	common.Assert(numInstances > 0, "parallel buffer pool needs at least one instance")
	instances := make([]*BufferPoolInstance, numInstances)
	for i := 0; i < numInstances; i++ {
		instances[i] = NewBufferPoolInstance(instancePoolSize, newDisk(i), int32(numInstances), int32(i))
	}
	return &ParallelBufferPool{instances: instances}
}

func (p *ParallelBufferPool) instanceFor(pid common.PageID) *BufferPoolInstance {
	n := len(p.instances)
	idx := int(pid) % n
	if idx < 0 {
		idx += n
	}
	return p.instances[idx]
}

// Fetch routes to the owning instance by pid mod N.
func (p *ParallelBufferPool) Fetch(pid common.PageID) (*PageGuard, bool) {
	return p.instanceFor(pid).Fetch(pid)
}

// New tries each instance starting from a rotating index, returning the
// first successful allocation. Fails only after a full rotation.
func (p *ParallelBufferPool) New() (*PageGuard, bool) {
	n := len(p.instances)
	start := int(p.startIndex.Add(1)-1) % n
	if start < 0 {
		start += n
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if guard, ok := p.instances[idx].New(); ok {
			return guard, true
		}
	}
	return nil, false
}

// Unpin routes to the owning instance.
func (p *ParallelBufferPool) Unpin(pid common.PageID, isDirty bool) bool {
	return p.instanceFor(pid).Unpin(pid, isDirty)
}

// Flush routes to the owning instance.
func (p *ParallelBufferPool) Flush(pid common.PageID) bool {
	return p.instanceFor(pid).Flush(pid)
}

// FlushAll flushes every instance.
func (p *ParallelBufferPool) FlushAll() {
	for _, inst := range p.instances {
		inst.FlushAll()
	}
}

// Delete routes to the owning instance.
func (p *ParallelBufferPool) Delete(pid common.PageID) bool {
	return p.instanceFor(pid).Delete(pid)
}

// PoolSize returns N × per-instance pool size.
func (p *ParallelBufferPool) PoolSize() int {
	total := 0
	for _, inst := range p.instances {
		total += inst.PoolSize()
	}
	return total
}
