package runtime

import (
	"sync"

	"github.com/cuemby/qcc-assembler/pkg/errors"
	"github.com/cuemby/qcc-assembler/pkg/types"
)

// defaultRequirements is the fixed per-capability resource requirement
// table, used when a provider's cell doesn't specify its own.
var defaultRequirements = map[string]types.ResourceAllocation{
	"text_generation":  {MemoryMB: 512, CPUPercent: 100, StorageMB: 100},
	"media_processing": {MemoryMB: 1024, CPUPercent: 200, StorageMB: 500},
	"ui_rendering":     {MemoryMB: 384, CPUPercent: 100, StorageMB: 100},
	"data_analysis":    {MemoryMB: 768, CPUPercent: 150, StorageMB: 100},
}

var defaultRequirement = types.ResourceAllocation{MemoryMB: 256, CPUPercent: 50, StorageMB: 100}

// RequirementFor returns the default resource requirement for a
// capability, falling back to the generic default when the capability has
// no entry of its own.
func RequirementFor(capability string) types.ResourceAllocation {
	if req, ok := defaultRequirements[capability]; ok {
		return req
	}
	return defaultRequirement
}

// ResourceTable tracks total and available resources across the whole
// process. Allocation is first-fit and atomic: either every dimension's
// shortfall is zero and the full allocation is reserved, or nothing is
// reserved at all.
type ResourceTable struct {
	mu        sync.Mutex
	total     types.ResourceAllocation
	available types.ResourceAllocation
}

// NewResourceTable creates a resource table with the given total capacity.
func NewResourceTable(total types.ResourceAllocation) *ResourceTable {
	return &ResourceTable{
		total:     total,
		available: total,
	}
}

// Reserve atomically deducts an allocation from availability, or fails
// with ResourceExhaustionError and deducts nothing.
func (rt *ResourceTable) Reserve(alloc types.ResourceAllocation) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if alloc.MemoryMB > rt.available.MemoryMB {
		return &errors.ResourceExhaustionError{Resource: "memory_mb", Limit: rt.available.MemoryMB, Actual: alloc.MemoryMB}
	}
	if alloc.CPUPercent > rt.available.CPUPercent {
		return &errors.ResourceExhaustionError{Resource: "cpu_percent", Limit: rt.available.CPUPercent, Actual: alloc.CPUPercent}
	}
	if alloc.StorageMB > rt.available.StorageMB {
		return &errors.ResourceExhaustionError{Resource: "storage_mb", Limit: rt.available.StorageMB, Actual: alloc.StorageMB}
	}

	rt.available.MemoryMB -= alloc.MemoryMB
	rt.available.CPUPercent -= alloc.CPUPercent
	rt.available.StorageMB -= alloc.StorageMB
	return nil
}

// Release returns an allocation to the available pool, capped at total
// (defensive against double-release bugs rather than going negative-
// available/over-total).
func (rt *ResourceTable) Release(alloc types.ResourceAllocation) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.available.MemoryMB = minInt(rt.available.MemoryMB+alloc.MemoryMB, rt.total.MemoryMB)
	rt.available.CPUPercent = minInt(rt.available.CPUPercent+alloc.CPUPercent, rt.total.CPUPercent)
	rt.available.StorageMB = minInt(rt.available.StorageMB+alloc.StorageMB, rt.total.StorageMB)
}

// Available returns a snapshot of currently available resources.
func (rt *ResourceTable) Available() types.ResourceAllocation {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.available
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
