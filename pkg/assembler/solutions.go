package assembler

import (
	"context"
	"time"

	"github.com/cuemby/qcc-assembler/pkg/errors"
	"github.com/cuemby/qcc-assembler/pkg/events"
	"github.com/cuemby/qcc-assembler/pkg/ledger"
	"github.com/cuemby/qcc-assembler/pkg/log"
	"github.com/cuemby/qcc-assembler/pkg/metrics"
	"github.com/cuemby/qcc-assembler/pkg/provider"
	"github.com/cuemby/qcc-assembler/pkg/types"
)

// GetSolution returns the active solution by ID, or false if unknown.
func (a *Assembler) GetSolution(solutionID string) (*types.Solution, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.solutions[solutionID]
	return s, ok
}

// ReleaseSolution implements spec §4.4's teardown: deactivate every cell,
// cache or release it, append a release transaction, and drop the
// solution from the active map.
func (a *Assembler) ReleaseSolution(ctx context.Context, solutionID string) bool {
	lock := a.solutionLock(solutionID)
	lock.Lock()
	defer lock.Unlock()

	a.mu.Lock()
	solution, ok := a.solutions[solutionID]
	if !ok {
		a.mu.Unlock()
		return false
	}
	delete(a.solutions, solutionID)
	a.mu.Unlock()

	usageTimeMS := time.Since(solution.CreatedAt).Milliseconds()
	logger := log.WithSolutionID(solutionID)

	for _, cell := range solution.Cells {
		if err := a.runtime.Deactivate(cell.CellID); err != nil {
			logger.Warn().Str("cell_id", cell.CellID).Err(err).Msg("deactivate during release failed")
			continue
		}

		if a.offerToCache(cell) {
			continue
		}

		if err := a.runtime.Release(cell.CellID); err != nil {
			logger.Warn().Str("cell_id", cell.CellID).Err(err).Msg("runtime release during teardown failed")
		}
		if err := a.providerRPC.ReleaseCell(ctx, cell.ProviderURL, &provider.CellHandle{CellID: cell.CellID}, cell.QuantumSignature, cell.Usage); err != nil {
			logger.Warn().Str("cell_id", cell.CellID).Err(err).Msg("provider release during teardown failed")
		}
	}

	if a.chain != nil {
		cellIDs := make([]string, 0, len(solution.Cells))
		for id := range solution.Cells {
			cellIDs = append(cellIDs, id)
		}

		memoryPeakMB, cpuAvg := aggregateUsage(solution.Cells)
		solution.Metrics.PeakMemoryMB = memoryPeakMB
		solution.Metrics.AvgCPUPercent = cpuAvg
		solution.Metrics.TotalUsageTimeMS = usageTimeMS

		score := ledger.ScoreConfiguration(float64(solution.Metrics.AssemblyTimeMS), float64(memoryPeakMB), cpuAvg, float64(usageTimeMS))
		if solution.PriorConfig != nil {
			score = ledger.ReuseScore(solution.PriorConfig.PerformanceScore, score, solution.PriorConfig.UseCount+1)
		}

		_, err := a.chain.AddTransaction(ledger.TransactionInput{
			QuantumSignature: solution.QuantumSignature,
			SolutionID:       solutionID,
			CellIDs:          cellIDs,
			ConnectionMap:    solution.Connections,
			PerformanceMetrics: map[string]float64{
				"total_usage_time_ms": float64(usageTimeMS),
				"performance_score":   score,
			},
			Status: "released",
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to append release transaction to ledger")
		}
	}

	if a.store != nil {
		if err := a.store.DeleteSolution(solutionID); err != nil {
			logger.Warn().Err(err).Msg("failed to remove solution snapshot from state store")
		}
	}

	metrics.ReleasesTotal.Inc()
	metrics.ActiveSolutions.Dec()
	a.publish(events.TypeSolutionReleased, solutionID, "", "solution released")

	return true
}

// aggregateUsage reduces a solution's per-cell usage tracking to the
// solution-level figures ScoreConfiguration expects: peak memory across all
// cells, and the average of their peak CPU readings.
func aggregateUsage(cells map[string]*types.Cell) (peakMemoryMB int, avgCPUPercent float64) {
	if len(cells) == 0 {
		return 0, 0
	}
	var cpuSum float64
	for _, cell := range cells {
		if cell.Usage.PeakMemoryMB > peakMemoryMB {
			peakMemoryMB = cell.Usage.PeakMemoryMB
		}
		cpuSum += float64(cell.Usage.PeakCPUPercent)
	}
	return peakMemoryMB, cpuSum / float64(len(cells))
}

// ExecuteCapability dispatches a capability invocation through the
// runtime after verifying the cell belongs to an active solution owned
// by this assembler (spec §4.4).
func (a *Assembler) ExecuteCapability(solutionID, cellID, capability string, parameters map[string]any) (map[string]any, error) {
	a.mu.RLock()
	solution, ok := a.solutions[solutionID]
	a.mu.RUnlock()
	if !ok {
		return nil, &errors.CellActivationError{CellID: cellID, Reason: "no such active solution"}
	}

	if _, owned := solution.Cells[cellID]; !owned {
		return nil, &errors.CellActivationError{CellID: cellID, Reason: "cell does not belong to solution " + solutionID}
	}

	return a.runtime.Execute(cellID, capability, parameters)
}
