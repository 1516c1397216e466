package assembler

import (
	"context"
	"time"

	"github.com/cuemby/qcc-assembler/pkg/errors"
	"github.com/cuemby/qcc-assembler/pkg/events"
	"github.com/cuemby/qcc-assembler/pkg/metrics"
	"github.com/cuemby/qcc-assembler/pkg/provider"
	"github.com/cuemby/qcc-assembler/pkg/runtime"
	"github.com/cuemby/qcc-assembler/pkg/security"
	"github.com/cuemby/qcc-assembler/pkg/types"
)

// acquireCells implements spec §4.4 step 5: if a prior configuration was
// chosen, reconstruct it from its stated cell specs; otherwise, for each
// intent capability, try the cache first and fall back to provider
// acquisition. At least one cell must be obtained or the call fails.
func (a *Assembler) acquireCells(ctx context.Context, analysis types.IntentAnalysis, intentCtx types.IntentContext, solutionSignature string, config *types.CellConfiguration) ([]*types.Cell, error) {
	var cells []*types.Cell

	if config != nil {
		for _, spec := range config.CellSpecs {
			cell, err := a.acquireFromProviders(ctx, spec, intentCtx, solutionSignature)
			if err != nil {
				a.logger.Warn().Str("capability", spec.Capability).Err(err).Msg("prior configuration cell acquisition failed, falling back to fresh acquisition")
				cell, err = a.acquireFromProviders(ctx, types.CellSpec{Capability: spec.Capability}, intentCtx, solutionSignature)
				if err != nil {
					continue
				}
			}
			cells = append(cells, cell)
		}
	} else {
		for _, req := range analysis.Capabilities {
			if cached := a.takeFromCache(req.Capability, intentCtx.DeviceInfo); cached != nil {
				metrics.CellCacheHitsTotal.Inc()
				cells = append(cells, cached)
				continue
			}

			spec := types.CellSpec{Capability: req.Capability, Parameters: req.Parameters}
			cell, err := a.acquireFromProviders(ctx, spec, intentCtx, solutionSignature)
			if err != nil {
				a.logger.Warn().Str("capability", req.Capability).Err(err).Msg("cell acquisition failed for capability")
				continue
			}
			cells = append(cells, cell)
		}
	}

	if len(cells) == 0 {
		return nil, &errors.CellRequestError{Capability: "all requested", ProvidersTried: a.cfg.Providers.URLs}
	}

	return cells, nil
}

// acquireFromProviders tries each configured provider in order, skipping
// ones in their unhealthy cooldown window, retrying the next on failure.
func (a *Assembler) acquireFromProviders(ctx context.Context, spec types.CellSpec, intentCtx types.IntentContext, solutionSignature string) (*types.Cell, error) {
	var lastErr error
	var tried []string

	for _, providerURL := range a.cfg.Providers.URLs {
		if !a.health.IsHealthy(providerURL) {
			continue
		}
		tried = append(tried, providerURL)

		a.totalCellRequests++
		handle, err := a.providerRPC.RequestCell(ctx, providerURL, spec, intentCtx, solutionSignature, intentCtx.AssemblerID)
		if err != nil {
			a.health.MarkUnhealthy(providerURL)
			metrics.ProviderUnhealthyTotal.WithLabelValues(providerURL).Inc()
			metrics.CellRequestsTotal.WithLabelValues(spec.Capability, "failure").Inc()
			lastErr = err
			continue
		}

		body, err := a.providerRPC.DownloadCell(ctx, providerURL, handle)
		if err != nil {
			a.health.MarkUnhealthy(providerURL)
			metrics.CellRequestsTotal.WithLabelValues(spec.Capability, "failure").Inc()
			lastErr = err
			continue
		}

		a.health.MarkHealthy(providerURL)
		metrics.CellRequestsTotal.WithLabelValues(spec.Capability, "success").Inc()

		cellSignature, err := security.DeriveCellSignature(solutionSignature)
		if err != nil {
			lastErr = err
			continue
		}
		if body.QuantumSignature != "" && body.QuantumSignature != cellSignature {
			a.logger.Debug().Str("cell_id", handle.CellID).Msg("provider-issued signature overridden by gate-derived signature")
		}

		cell := &types.Cell{
			CellID:           handle.CellID,
			CellType:         handle.CellType,
			Capability:       handle.Capability,
			Version:          handle.Version,
			ProviderURL:      providerURL,
			QuantumSignature: cellSignature,
			Status:           types.CellInitialized,
			Parameters:       spec.Parameters,
			CreatedAt:        time.Now(),
		}
		a.publish(events.TypeCellAcquired, "", cell.CellID, "cell acquired from "+providerURL)
		return cell, nil
	}

	return nil, &errors.CellRequestError{Capability: spec.Capability, ProvidersTried: tried, Err: lastErr}
}

// dispatchHandler returns the closure the runtime invokes for a cell's
// capability dispatch. The downloaded cell body (spec §6.4 Cell Contract)
// exposes one handler per declared capability; this closure stands in for
// it and returns a fixed success result with no outputs and zero
// performance metrics. It makes no request to the cell or its provider.
func (a *Assembler) dispatchHandler(cell *types.Cell) runtime.Handler {
	return func(capability string, parameters map[string]any) (map[string]any, error) {
		a.logger.Debug().Str("cell_id", cell.CellID).Str("capability", capability).Msg("dispatching capability")
		return map[string]any{
			"status":  "success",
			"outputs": []map[string]any{},
			"performance_metrics": map[string]any{
				"execution_time_ms": 0,
				"memory_used_mb":    0,
			},
		}, nil
	}
}

// installConnections authorizes and installs every suggested edge whose
// endpoints are both present among the acquired cells (spec §4.4 step 7).
func (a *Assembler) installConnections(suggested map[string][]string, byCapability map[string]*types.Cell) map[string][]string {
	installed := make(map[string][]string)

	for source, targets := range suggested {
		sourceCell, ok := byCapability[source]
		if !ok {
			continue
		}
		for _, target := range targets {
			targetCell, ok := byCapability[target]
			if !ok {
				a.logger.Debug().Str("source", source).Str("target", target).Msg("connection endpoint missing, skipped")
				continue
			}
			if err := a.gate.AuthorizeConnection(sourceCell, targetCell); err != nil {
				a.publish(events.TypeConnectionRejected, "", sourceCell.CellID, "connection rejected: "+err.Error())
				continue
			}
			a.runtime.Connections().Connect(sourceCell.CellID, targetCell.CellID, nil)
			installed[source] = append(installed[source], target)
			a.publish(events.TypeConnectionInstalled, "", sourceCell.CellID, "connected to "+targetCell.CellID)
		}
	}

	return installed
}

// takeFromCache looks up and removes a compatible cached cell for the
// given capability (spec §4.4 cell cache policy). A cache hit is removed
// from the cache since it is now owned by the new solution.
func (a *Assembler) takeFromCache(capability string, device types.DeviceInfo) *types.Cell {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()

	entry, ok := a.cache[capability]
	if !ok {
		return nil
	}
	if !deviceCompatible(device) {
		return nil
	}
	delete(a.cache, capability)
	if a.store != nil {
		if err := a.store.DeleteCachedCell(capability); err != nil {
			a.logger.Warn().Str("capability", capability).Err(err).Msg("failed to remove cached cell from state store")
		}
	}
	metrics.CellCacheSize.Set(float64(len(a.cache)))
	return entry.cell
}

// deviceCompatible is the cache's device compatibility predicate;
// per spec §4.4 it defaults to always true.
func deviceCompatible(types.DeviceInfo) bool { return true }

// offerToCache inserts a released cell into the cache if its capability
// is in the configured core set, evicting the oldest entry asynchronously
// if the cache is at capacity (spec §4.4 cell cache policy).
func (a *Assembler) offerToCache(cell *types.Cell) bool {
	if !isCoreCapability(cell.Capability, a.cfg.Cache.CoreCapabilities) {
		return false
	}

	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()

	if existing, ok := a.cache[cell.Capability]; ok && existing.createdAt.After(cell.CreatedAt) {
		return false
	}

	if len(a.cache) >= a.cfg.Cache.MaxEntries {
		if oldestCap, oldest := a.oldestCacheEntryLocked(); oldest != nil {
			delete(a.cache, oldestCap)
			if a.store != nil {
				if err := a.store.DeleteCachedCell(oldestCap); err != nil {
					a.logger.Warn().Str("capability", oldestCap).Err(err).Msg("failed to remove evicted cell from state store")
				}
			}
			go a.releaseCacheEvictedCell(oldest.cell)
		}
	}

	a.cache[cell.Capability] = &cachedCell{cell: cell, createdAt: cell.CreatedAt}
	if a.store != nil {
		if err := a.store.SaveCachedCell(cell.Capability, cell); err != nil {
			a.logger.Warn().Str("capability", cell.Capability).Err(err).Msg("failed to persist cached cell to state store")
		}
	}
	metrics.CellCacheSize.Set(float64(len(a.cache)))
	return true
}

func (a *Assembler) oldestCacheEntryLocked() (string, *cachedCell) {
	var oldestCap string
	var oldest *cachedCell
	for cap, entry := range a.cache {
		if oldest == nil || entry.createdAt.Before(oldest.createdAt) {
			oldestCap, oldest = cap, entry
		}
	}
	return oldestCap, oldest
}

func (a *Assembler) releaseCacheEvictedCell(cell *types.Cell) {
	ctx := context.Background()
	if err := a.providerRPC.ReleaseCell(ctx, cell.ProviderURL, &provider.CellHandle{CellID: cell.CellID}, cell.QuantumSignature, cell.Usage); err != nil {
		a.logger.Warn().Str("cell_id", cell.CellID).Err(err).Msg("async eviction release failed")
	}
}

func isCoreCapability(capability string, coreSet []string) bool {
	for _, c := range coreSet {
		if c == capability {
			return true
		}
	}
	return false
}
