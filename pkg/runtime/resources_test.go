package runtime

import (
	"testing"

	"github.com/cuemby/qcc-assembler/pkg/errors"
	"github.com/cuemby/qcc-assembler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequirementFor(t *testing.T) {
	assert.Equal(t, types.ResourceAllocation{MemoryMB: 512, CPUPercent: 100, StorageMB: 100}, RequirementFor("text_generation"))
	assert.Equal(t, types.ResourceAllocation{MemoryMB: 1024, CPUPercent: 200, StorageMB: 500}, RequirementFor("media_processing"))
	assert.Equal(t, types.ResourceAllocation{MemoryMB: 384, CPUPercent: 100, StorageMB: 100}, RequirementFor("ui_rendering"))
	assert.Equal(t, types.ResourceAllocation{MemoryMB: 768, CPUPercent: 150, StorageMB: 100}, RequirementFor("data_analysis"))
	assert.Equal(t, types.ResourceAllocation{MemoryMB: 256, CPUPercent: 50, StorageMB: 100}, RequirementFor("unknown_capability"))
}

func TestResourceTable_ReserveAndRelease(t *testing.T) {
	rt := NewResourceTable(types.ResourceAllocation{MemoryMB: 1000, CPUPercent: 200, StorageMB: 1000})

	require.NoError(t, rt.Reserve(types.ResourceAllocation{MemoryMB: 512, CPUPercent: 100, StorageMB: 100}))
	assert.Equal(t, types.ResourceAllocation{MemoryMB: 488, CPUPercent: 100, StorageMB: 900}, rt.Available())

	rt.Release(types.ResourceAllocation{MemoryMB: 512, CPUPercent: 100, StorageMB: 100})
	assert.Equal(t, types.ResourceAllocation{MemoryMB: 1000, CPUPercent: 200, StorageMB: 1000}, rt.Available())
}

func TestResourceTable_ReserveAtomicOnShortfall(t *testing.T) {
	rt := NewResourceTable(types.ResourceAllocation{MemoryMB: 100, CPUPercent: 200, StorageMB: 1000})

	err := rt.Reserve(types.ResourceAllocation{MemoryMB: 512, CPUPercent: 50, StorageMB: 50})
	require.Error(t, err)
	var resErr *errors.ResourceExhaustionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "memory_mb", resErr.Resource)

	// nothing should have been partially reserved
	assert.Equal(t, types.ResourceAllocation{MemoryMB: 100, CPUPercent: 200, StorageMB: 1000}, rt.Available())
}

func TestResourceTable_ReleaseCapsAtTotal(t *testing.T) {
	rt := NewResourceTable(types.ResourceAllocation{MemoryMB: 100, CPUPercent: 100, StorageMB: 100})
	rt.Release(types.ResourceAllocation{MemoryMB: 50, CPUPercent: 50, StorageMB: 50})
	assert.Equal(t, types.ResourceAllocation{MemoryMB: 100, CPUPercent: 100, StorageMB: 100}, rt.Available())
}
