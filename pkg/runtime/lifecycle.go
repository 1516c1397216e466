package runtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/qcc-assembler/pkg/errors"
	"github.com/cuemby/qcc-assembler/pkg/log"
	"github.com/cuemby/qcc-assembler/pkg/types"
	"github.com/rs/zerolog"
)

// Handler dispatches a capability invocation against a cell's live
// connection (typically a closure over a provider RPC client). The result
// map may carry a "performance_metrics" entry used to update cell usage.
type Handler func(capability string, parameters map[string]any) (map[string]any, error)

// Runtime owns per-cell lifecycle, the process-wide resource table, the
// connection registry, and capability dispatch. One Runtime serves the
// whole assembler process.
type Runtime struct {
	mu        sync.Mutex
	resources *ResourceTable
	registry  *ConnectionRegistry
	cells     map[string]*types.Cell
	handlers  map[string]Handler
	cellLocks map[string]*sync.Mutex
	logger    zerolog.Logger
}

// NewRuntime creates a runtime with the given total resource capacity.
func NewRuntime(total types.ResourceAllocation) *Runtime {
	return &Runtime{
		resources: NewResourceTable(total),
		registry:  NewConnectionRegistry(),
		cells:     make(map[string]*types.Cell),
		handlers:  make(map[string]Handler),
		cellLocks: make(map[string]*sync.Mutex),
		logger:    log.WithComponent("runtime"),
	}
}

// Resources exposes the runtime's resource table for status reporting.
func (rt *Runtime) Resources() *ResourceTable {
	return rt.resources
}

// Connections exposes the runtime's connection registry.
func (rt *Runtime) Connections() *ConnectionRegistry {
	return rt.registry
}

// RegisterCell adds a newly acquired cell to the runtime in the
// initialized state and binds its dispatch handler. Does not reserve
// resources; that happens on Activate.
func (rt *Runtime) RegisterCell(cell *types.Cell, handler Handler) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	cell.Status = types.CellInitialized
	rt.cells[cell.CellID] = cell
	rt.handlers[cell.CellID] = handler
	rt.cellLocks[cell.CellID] = &sync.Mutex{}
}

func (rt *Runtime) getCell(cellID string) (*types.Cell, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	cell, ok := rt.cells[cellID]
	if !ok {
		return nil, &errors.CellActivationError{CellID: cellID, Reason: "cell not registered with runtime"}
	}
	return cell, nil
}

// Activate reserves resources and moves a cell from initialized or
// deactivated into active.
func (rt *Runtime) Activate(cellID string) error {
	cell, err := rt.getCell(cellID)
	if err != nil {
		return err
	}

	lock := rt.cellLock(cellID)
	lock.Lock()
	defer lock.Unlock()

	if cell.Status != types.CellInitialized && cell.Status != types.CellDeactivated {
		return &errors.CellActivationError{CellID: cellID, Reason: fmt.Sprintf("cannot activate from state %s", cell.Status)}
	}

	req := cell.Resources
	if req == (types.ResourceAllocation{}) {
		req = RequirementFor(cell.Capability)
		cell.Resources = req
	}

	if err := rt.resources.Reserve(req); err != nil {
		return &errors.CellActivationError{CellID: cellID, Reason: "insufficient resources", Err: err}
	}

	cell.Status = types.CellActive
	cell.ActivatedAt = time.Now()
	return nil
}

// Suspend snapshots and reduces a cell's allocation to 20% memory / 10%
// CPU, returning the remainder to the pool. Permitted only from active.
func (rt *Runtime) Suspend(cellID string) (string, error) {
	cell, err := rt.getCell(cellID)
	if err != nil {
		return "", err
	}

	lock := rt.cellLock(cellID)
	lock.Lock()
	defer lock.Unlock()

	if cell.Status != types.CellActive {
		return "", &errors.CellActivationError{CellID: cellID, Reason: fmt.Sprintf("cannot suspend from state %s", cell.Status)}
	}

	reduced := types.ResourceAllocation{
		MemoryMB:   cell.Resources.MemoryMB / 5,  // 20%
		CPUPercent: cell.Resources.CPUPercent / 10, // 10%
		StorageMB:  cell.Resources.StorageMB,
	}
	released := types.ResourceAllocation{
		MemoryMB:   cell.Resources.MemoryMB - reduced.MemoryMB,
		CPUPercent: cell.Resources.CPUPercent - reduced.CPUPercent,
	}
	rt.resources.Release(released)

	token := fmt.Sprintf("snap-%s-%d", cellID, time.Now().UnixNano())
	cell.SuspendedToken = token
	cell.Resources = reduced
	cell.Status = types.CellSuspended
	return token, nil
}

// Resume re-reserves a cell's full original allocation and moves it back
// to active. Permitted only from suspended.
func (rt *Runtime) Resume(cellID string) error {
	cell, err := rt.getCell(cellID)
	if err != nil {
		return err
	}

	lock := rt.cellLock(cellID)
	lock.Lock()
	defer lock.Unlock()

	if cell.Status != types.CellSuspended {
		return &errors.CellActivationError{CellID: cellID, Reason: fmt.Sprintf("cannot resume from state %s", cell.Status)}
	}

	full := RequirementFor(cell.Capability)
	additional := types.ResourceAllocation{
		MemoryMB:   full.MemoryMB - cell.Resources.MemoryMB,
		CPUPercent: full.CPUPercent - cell.Resources.CPUPercent,
	}
	if err := rt.resources.Reserve(additional); err != nil {
		return err
	}

	cell.Resources = full
	cell.SuspendedToken = ""
	cell.Status = types.CellActive
	return nil
}

// Deactivate idempotently moves a cell out of active use, returning any
// reserved resources. Safe from any non-terminal state.
func (rt *Runtime) Deactivate(cellID string) error {
	cell, err := rt.getCell(cellID)
	if err != nil {
		return err
	}

	lock := rt.cellLock(cellID)
	lock.Lock()
	defer lock.Unlock()

	if cell.Status == types.CellReleased || cell.Status == types.CellDeactivated {
		return nil
	}

	rt.resources.Release(cell.Resources)
	cell.Resources = types.ResourceAllocation{}
	cell.Status = types.CellDeactivated
	cell.DeactivatedAt = time.Now()
	return nil
}

// Release idempotently retires a cell permanently: deactivates if needed,
// drops it from the connection registry, and marks it released (terminal).
func (rt *Runtime) Release(cellID string) error {
	cell, err := rt.getCell(cellID)
	if err != nil {
		return err
	}

	if err := rt.Deactivate(cellID); err != nil {
		return err
	}

	lock := rt.cellLock(cellID)
	lock.Lock()
	defer lock.Unlock()

	if cell.Status == types.CellReleased {
		return nil
	}

	rt.registry.RemoveCell(cellID)
	cell.Status = types.CellReleased
	cell.ReleasedAt = time.Now()
	return nil
}

func (rt *Runtime) cellLock(cellID string) *sync.Mutex {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.cellLocks[cellID]
}
