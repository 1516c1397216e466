package runtime

import (
	"testing"

	"github.com/cuemby/qcc-assembler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime() *Runtime {
	return NewRuntime(types.ResourceAllocation{MemoryMB: 4096, CPUPercent: 400, StorageMB: 4096})
}

func noopHandler(capability string, parameters map[string]any) (map[string]any, error) {
	return map[string]any{"capability": capability}, nil
}

func TestRuntime_ActivateAssignsDefaultResourcesAndReservesThem(t *testing.T) {
	rt := newTestRuntime()
	cell := &types.Cell{CellID: "c1", Capability: "text_generation"}
	rt.RegisterCell(cell, noopHandler)

	require.NoError(t, rt.Activate("c1"))
	assert.Equal(t, types.CellActive, cell.Status)
	assert.Equal(t, types.ResourceAllocation{MemoryMB: 512, CPUPercent: 100, StorageMB: 100}, cell.Resources)
	assert.False(t, cell.ActivatedAt.IsZero())

	avail := rt.Resources().Available()
	assert.Equal(t, 4096-512, avail.MemoryMB)
}

func TestRuntime_ActivateFailsFromActiveState(t *testing.T) {
	rt := newTestRuntime()
	cell := &types.Cell{CellID: "c1", Capability: "text_generation"}
	rt.RegisterCell(cell, noopHandler)
	require.NoError(t, rt.Activate("c1"))

	err := rt.Activate("c1")
	assert.Error(t, err)
}

func TestRuntime_ActivateFailsOnInsufficientResources(t *testing.T) {
	rt := NewRuntime(types.ResourceAllocation{MemoryMB: 10, CPUPercent: 10, StorageMB: 10})
	cell := &types.Cell{CellID: "c1", Capability: "media_processing"}
	rt.RegisterCell(cell, noopHandler)

	err := rt.Activate("c1")
	assert.Error(t, err)
	assert.Equal(t, types.CellInitialized, cell.Status)
}

func TestRuntime_SuspendAndResume(t *testing.T) {
	rt := newTestRuntime()
	cell := &types.Cell{CellID: "c1", Capability: "text_generation"}
	rt.RegisterCell(cell, noopHandler)
	require.NoError(t, rt.Activate("c1"))

	token, err := rt.Suspend("c1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, types.CellSuspended, cell.Status)
	assert.Equal(t, 512/5, cell.Resources.MemoryMB)
	assert.Equal(t, 100/10, cell.Resources.CPUPercent)

	require.NoError(t, rt.Resume("c1"))
	assert.Equal(t, types.CellActive, cell.Status)
	assert.Equal(t, 512, cell.Resources.MemoryMB)
	assert.Equal(t, 100, cell.Resources.CPUPercent)
	assert.Empty(t, cell.SuspendedToken)
}

func TestRuntime_SuspendOnlyFromActive(t *testing.T) {
	rt := newTestRuntime()
	cell := &types.Cell{CellID: "c1", Capability: "text_generation"}
	rt.RegisterCell(cell, noopHandler)

	_, err := rt.Suspend("c1")
	assert.Error(t, err)
}

func TestRuntime_DeactivateAndReleaseAreIdempotent(t *testing.T) {
	rt := newTestRuntime()
	cell := &types.Cell{CellID: "c1", Capability: "text_generation"}
	rt.RegisterCell(cell, noopHandler)
	require.NoError(t, rt.Activate("c1"))

	require.NoError(t, rt.Deactivate("c1"))
	assert.Equal(t, types.CellDeactivated, cell.Status)
	require.NoError(t, rt.Deactivate("c1"))

	avail := rt.Resources().Available()
	assert.Equal(t, 4096, avail.MemoryMB)

	require.NoError(t, rt.Release("c1"))
	assert.Equal(t, types.CellReleased, cell.Status)
	require.NoError(t, rt.Release("c1"))
	assert.Equal(t, types.CellReleased, cell.Status)
}

func TestRuntime_ExecuteRequiresActive(t *testing.T) {
	rt := newTestRuntime()
	cell := &types.Cell{CellID: "c1", Capability: "text_generation"}
	rt.RegisterCell(cell, noopHandler)

	_, err := rt.Execute("c1", "text_generation", nil)
	assert.Error(t, err)
}

func TestRuntime_ExecuteUpdatesUsageFromPerformanceMetrics(t *testing.T) {
	rt := newTestRuntime()
	cell := &types.Cell{CellID: "c1", Capability: "text_generation"}
	rt.RegisterCell(cell, func(capability string, parameters map[string]any) (map[string]any, error) {
		return map[string]any{
			"performance_metrics": map[string]any{"execution_time_ms": 12, "memory_used_mb": 300},
		}, nil
	})
	require.NoError(t, rt.Activate("c1"))

	_, err := rt.Execute("c1", "text_generation", nil)
	require.NoError(t, err)
	assert.Equal(t, 300, cell.Usage.PeakMemoryMB)
	assert.Equal(t, 0, cell.Usage.PeakCPUPercent, "Cell Contract has no CPU figure, so peak CPU stays unset")
}

func TestConnectionRegistry_ConnectDisconnectGetConnections(t *testing.T) {
	reg := NewConnectionRegistry()
	reg.Connect("a", "b", nil)
	reg.Connect("a", "c", nil)

	out, in := reg.GetConnections("a")
	assert.ElementsMatch(t, []string{"b", "c"}, out)
	assert.Empty(t, in)

	out, in = reg.GetConnections("b")
	assert.Empty(t, out)
	assert.ElementsMatch(t, []string{"a"}, in)

	assert.True(t, reg.Disconnect("a", "b"))
	assert.False(t, reg.Disconnect("a", "b"))
	assert.False(t, reg.Disconnect("nonexistent", "x"))
}

func TestRuntime_RelayRequiresExistingEdge(t *testing.T) {
	rt := newTestRuntime()
	source := &types.Cell{CellID: "src", Capability: "ui_rendering"}
	target := &types.Cell{CellID: "tgt", Capability: "text_generation"}
	rt.RegisterCell(source, noopHandler)
	rt.RegisterCell(target, noopHandler)
	require.NoError(t, rt.Activate("src"))
	require.NoError(t, rt.Activate("tgt"))

	_, err := rt.Relay("src", "tgt", map[string]any{"hello": "world"})
	assert.Error(t, err)

	rt.Connections().Connect("src", "tgt", nil)
	result, err := rt.Relay("src", "tgt", map[string]any{"hello": "world"})
	require.NoError(t, err)
	assert.Equal(t, "text_generation", result["capability"])
}
