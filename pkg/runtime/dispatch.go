package runtime

import (
	"fmt"
	"time"

	"github.com/cuemby/qcc-assembler/pkg/errors"
	"github.com/cuemby/qcc-assembler/pkg/types"
)

// Execute dispatches a capability invocation against an active cell.
// Cells not marked concurrent-safe (the default) serialize their
// dispatches through the cell's lock; concurrent-safe cells may be
// invoked in parallel.
func (rt *Runtime) Execute(cellID, capability string, parameters map[string]any) (map[string]any, error) {
	cell, err := rt.getCell(cellID)
	if err != nil {
		return nil, err
	}

	if !cell.ConcurrentSafe() {
		lock := rt.cellLock(cellID)
		lock.Lock()
		defer lock.Unlock()
	}

	if cell.Status != types.CellActive {
		return nil, &errors.CellActivationError{CellID: cellID, Reason: fmt.Sprintf("cell not active (state %s)", cell.Status)}
	}

	rt.mu.Lock()
	handler := rt.handlers[cellID]
	rt.mu.Unlock()

	if handler == nil {
		return nil, &errors.CellActivationError{CellID: cellID, Reason: "no dispatch handler registered"}
	}

	result, err := handler(capability, parameters)
	if err != nil {
		return nil, err
	}

	applyPerformanceMetrics(cell, result)
	return result, nil
}

// Relay delivers a message from source to target through an existing
// connection edge. The edge must already be installed.
func (rt *Runtime) Relay(source, target string, message map[string]any) (map[string]any, error) {
	if !rt.registry.Connected(source, target) {
		return nil, &errors.CellConnectionError{Source: source, Target: target, Err: fmt.Errorf("no connection installed")}
	}

	targetCell, err := rt.getCell(target)
	if err != nil {
		return nil, err
	}

	return rt.Execute(target, targetCell.Capability, message)
}

// applyPerformanceMetrics folds a dispatch result's optional
// "performance_metrics" entry into the cell's usage tracking. The Cell
// Contract only defines execution_time_ms and memory_used_mb (spec §6.4);
// there is no CPU figure in the wire schema, so PeakCPUPercent has no
// source to read from and stays at its zero value.
func applyPerformanceMetrics(cell *types.Cell, result map[string]any) {
	raw, ok := result["performance_metrics"]
	if !ok {
		return
	}
	metrics, ok := raw.(map[string]any)
	if !ok {
		return
	}

	if mem, ok := asInt(metrics["memory_used_mb"]); ok && mem > cell.Usage.PeakMemoryMB {
		cell.Usage.PeakMemoryMB = mem
	}
	cell.Usage.LastUpdated = time.Now()
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
