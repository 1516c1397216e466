// Package assembler implements the Cell Assembler: the orchestration
// engine tying together intent interpretation, the security gate, the
// cell runtime, provider RPC, and the quantum-trail ledger into the
// AssembleSolution/ReleaseSolution/ExecuteCapability pipeline.
package assembler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/qcc-assembler/pkg/config"
	"github.com/cuemby/qcc-assembler/pkg/errors"
	"github.com/cuemby/qcc-assembler/pkg/events"
	"github.com/cuemby/qcc-assembler/pkg/intent"
	"github.com/cuemby/qcc-assembler/pkg/ledger"
	"github.com/cuemby/qcc-assembler/pkg/log"
	"github.com/cuemby/qcc-assembler/pkg/metrics"
	"github.com/cuemby/qcc-assembler/pkg/provider"
	"github.com/cuemby/qcc-assembler/pkg/runtime"
	"github.com/cuemby/qcc-assembler/pkg/security"
	"github.com/cuemby/qcc-assembler/pkg/statestore"
	"github.com/cuemby/qcc-assembler/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// cachedCell is one entry of the per-capability cell cache (spec §4.4).
type cachedCell struct {
	cell      *types.Cell
	createdAt time.Time
}

// Assembler is the single logical owner of every collaborator the
// pipeline needs: the intent interpreter, security gate, cell runtime,
// provider client, health tracker, ledger, and durable state store.
type Assembler struct {
	cfg config.Config

	interpreter *intent.Interpreter
	gate        *security.Gate
	runtime     *runtime.Runtime
	providerRPC *provider.Client
	health      *provider.HealthTracker
	chain       *ledger.Ledger
	store       *statestore.Store
	events      *events.Broker

	mu        sync.RWMutex
	solutions map[string]*types.Solution

	cacheMu sync.Mutex
	cache   map[string]*cachedCell

	solutionLocksMu sync.Mutex
	solutionLocks   map[string]*sync.Mutex

	startedAt         time.Time
	totalAssemblies   int64
	totalCellRequests int64

	logger zerolog.Logger
}

// New wires every collaborator into an Assembler, ready to serve
// AssembleSolution/ReleaseSolution/ExecuteCapability/Status.
func New(cfg config.Config, store *statestore.Store, chain *ledger.Ledger, broker *events.Broker) *Assembler {
	total := types.ResourceAllocation{
		MemoryMB:   cfg.Resources.MemoryTotalMB,
		CPUPercent: cfg.Resources.CPUCores * 100,
		StorageMB:  cfg.Resources.StorageTotalMB,
	}

	a := &Assembler{
		cfg:           cfg,
		interpreter:   intent.NewInterpreter(),
		gate:          security.NewGate(security.Level(cfg.Security.Level)),
		runtime:       runtime.NewRuntime(total),
		providerRPC:   provider.NewClient(time.Duration(cfg.Providers.TimeoutSeconds)*time.Second, cfg.Providers.APIKey),
		health:        provider.NewHealthTracker(time.Duration(cfg.Providers.UnhealthyCooldownSeconds) * time.Second),
		chain:         chain,
		store:         store,
		events:        broker,
		solutions:     make(map[string]*types.Solution),
		cache:         make(map[string]*cachedCell),
		solutionLocks: make(map[string]*sync.Mutex),
		startedAt:     time.Now(),
		logger:        log.WithComponent("assembler"),
	}
	a.loadCachedCells()
	return a
}

// loadCachedCells repopulates the in-memory cell cache from the state
// store (spec §4.7), so a restarted orchestrator doesn't forget about
// provider-side cells it had previously cached.
func (a *Assembler) loadCachedCells() {
	if a.store == nil {
		return
	}
	cells, err := a.store.ListCachedCells()
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to load cached cells from state store")
		return
	}
	for capability, cell := range cells {
		a.cache[capability] = &cachedCell{cell: cell, createdAt: cell.CreatedAt}
	}
	metrics.CellCacheSize.Set(float64(len(a.cache)))
}

func (a *Assembler) publish(typ events.Type, solutionID, cellID, message string) {
	if a.events == nil {
		return
	}
	a.events.Publish(&events.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Timestamp:  time.Now(),
		SolutionID: solutionID,
		CellID:     cellID,
		Message:    message,
	})
}

// solutionLock returns (creating if absent) the mutex serializing
// AssembleSolution/ReleaseSolution for one solution ID.
func (a *Assembler) solutionLock(id string) *sync.Mutex {
	a.solutionLocksMu.Lock()
	defer a.solutionLocksMu.Unlock()
	l, ok := a.solutionLocks[id]
	if !ok {
		l = &sync.Mutex{}
		a.solutionLocks[id] = l
	}
	return l
}

// Status reports the assembler's operational counters (spec §4.4).
func (a *Assembler) Status() types.AssemblerStatus {
	a.mu.RLock()
	active := len(a.solutions)
	a.mu.RUnlock()

	a.cacheMu.Lock()
	cached := len(a.cache)
	a.cacheMu.Unlock()

	return types.AssemblerStatus{
		Uptime:            time.Since(a.startedAt),
		ActiveSolutions:   active,
		CachedCells:       cached,
		TotalAssemblies:   a.totalAssemblies,
		TotalCellRequests: a.totalCellRequests,
	}
}

// AssembleSolution runs the full pipeline (spec §4.4): context
// enrichment, intent interpretation, signature generation, prior
// configuration lookup, cell acquisition, security verification,
// connection installation, activation, and ledger recording.
func (a *Assembler) AssembleSolution(ctx context.Context, request string, intentCtx types.IntentContext) (*types.Solution, error) {
	start := time.Now()
	timer := metrics.NewTimer()

	// Step 1: context enrichment.
	if intentCtx.Timestamp.IsZero() {
		intentCtx.Timestamp = time.Now()
	}
	if intentCtx.AssemblerID == "" {
		intentCtx.AssemblerID = "assembler-" + uuid.NewString()[:8]
	}

	// Step 2: intent interpretation.
	analysis := a.interpreter.Analyze(request, intentCtx)
	if len(analysis.Capabilities) == 0 {
		analysis.Capabilities = []types.CapabilityRequirement{{Capability: "text_generation", Priority: 50, Confidence: 0.5}}
	}

	solutionID := uuid.NewString()
	logger := log.WithSolutionID(solutionID)
	a.publish(events.TypeSolutionAssembling, solutionID, "", "assembly started")

	// Step 3: signature.
	solutionSignature, err := security.GenerateSignature()
	if err != nil {
		metrics.AssembliesTotal.WithLabelValues("security_error").Inc()
		return nil, &errors.SecurityVerificationError{Stage: "signature", Err: err}
	}

	// Step 4: prior configurations.
	var chosenConfig *types.CellConfiguration
	if intentCtx.UsePreviousConfigurations {
		candidates := a.chain.FindSimilarConfigurations(analysis.CapabilityNames(), 3)
		chosenConfig = pickBestConfiguration(candidates)
		if chosenConfig != nil {
			metrics.PriorConfigurationsUsedTotal.Inc()
		}
	}

	// Step 5: cell acquisition.
	cells, acquireErr := a.acquireCells(ctx, analysis, intentCtx, solutionSignature, chosenConfig)
	if acquireErr != nil {
		metrics.AssembliesTotal.WithLabelValues("cell_request_error").Inc()
		return nil, acquireErr
	}

	// Step 6: security verification; abort-and-release-all on any failure.
	for _, cell := range cells {
		if err := a.gate.VerifyCell(cell, solutionSignature); err != nil {
			logger.Warn().Str("cell_id", cell.CellID).Err(err).Msg("security verification failed, releasing acquired cells")
			a.publish(events.TypeCellSecurityRejected, solutionID, cell.CellID, err.Error())
			a.releaseAcquired(ctx, cells)
			metrics.AssembliesTotal.WithLabelValues("security_error").Inc()
			metrics.SecurityRejectionsTotal.WithLabelValues("signature").Inc()
			return nil, err
		}
	}

	byCapability := make(map[string]*types.Cell, len(cells))
	for _, c := range cells {
		byCapability[c.Capability] = c
		a.runtime.RegisterCell(c, a.dispatchHandler(c))
	}

	// Step 7: connection installation.
	connections := analysis.SuggestedConnections
	if chosenConfig != nil && len(chosenConfig.ConnectionMap) > 0 {
		connections = chosenConfig.ConnectionMap
	}
	installed := a.installConnections(connections, byCapability)

	// Step 8: activation; abort-and-release-all on the first failure.
	for _, cell := range cells {
		if err := a.runtime.Activate(cell.CellID); err != nil {
			logger.Warn().Str("cell_id", cell.CellID).Err(err).Msg("activation failed, releasing acquired cells")
			a.publish(events.TypeCellActivationFailed, solutionID, cell.CellID, err.Error())
			a.releaseAcquired(ctx, cells)
			metrics.AssembliesTotal.WithLabelValues("activation_error").Inc()
			return nil, &errors.CellActivationError{CellID: cell.CellID, Reason: "pipeline activation failure", Err: err}
		}
	}

	// Step 9: record.
	cellMap := make(map[string]*types.Cell, len(cells))
	cellIDs := make([]string, len(cells))
	for i, c := range cells {
		cellMap[c.CellID] = c
		cellIDs[i] = c.CellID
	}

	assemblyTimeMS := time.Since(start).Milliseconds()
	solution := &types.Solution{
		SolutionID:       solutionID,
		Cells:            cellMap,
		QuantumSignature: solutionSignature,
		Intent:           &analysis,
		Status:           types.SolutionActive,
		Connections:      installed,
		Metrics:          types.SolutionMetrics{AssemblyTimeMS: assemblyTimeMS},
		CreatedAt:        start,
		PriorConfig:      chosenConfig,
	}

	a.mu.Lock()
	a.solutions[solutionID] = solution
	a.totalAssemblies++
	a.mu.Unlock()

	if a.store != nil {
		if err := a.store.SaveSolution(solution); err != nil {
			logger.Error().Err(err).Msg("failed to persist solution snapshot")
		}
	}

	if a.chain != nil {
		_, err := a.chain.AddTransaction(ledger.TransactionInput{
			QuantumSignature:   solutionSignature,
			SolutionID:         solutionID,
			CellIDs:            cellIDs,
			ConnectionMap:      installed,
			PerformanceMetrics: map[string]float64{"assembly_time_ms": float64(assemblyTimeMS)},
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to append assembly transaction to ledger")
		}
	}

	metrics.AssembliesTotal.WithLabelValues("success").Inc()
	metrics.ActiveSolutions.Inc()
	timer.ObserveDuration(metrics.AssemblyDuration)
	if a.events != nil {
		a.events.Publish(&events.Event{
			ID:         uuid.NewString(),
			Type:       events.TypeSolutionAssembled,
			Timestamp:  time.Now(),
			SolutionID: solutionID,
			Message:    fmt.Sprintf("assembled %d cells", len(cells)),
			Metadata:   map[string]string{"used_prior_configuration": strconv.FormatBool(chosenConfig != nil)},
		})
	}

	return solution, nil
}

// pickBestConfiguration selects the highest-performance_score candidate,
// ties broken by most recent last_used_at (spec §4.4 step 4).
func pickBestConfiguration(candidates []types.CellConfiguration) *types.CellConfiguration {
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].PerformanceScore != candidates[j].PerformanceScore {
			return candidates[i].PerformanceScore > candidates[j].PerformanceScore
		}
		return candidates[i].LastUsedAt.After(candidates[j].LastUsedAt)
	})
	best := candidates[0]
	return &best
}

// releaseAcquired deactivates and releases every cell acquired so far
// during an aborted assembly, in reverse acquisition order, per the
// resource-leak-avoidance discipline (spec §4.4 step 6/8).
func (a *Assembler) releaseAcquired(ctx context.Context, cells []*types.Cell) {
	for i := len(cells) - 1; i >= 0; i-- {
		cell := cells[i]
		if err := a.runtime.Deactivate(cell.CellID); err != nil {
			a.logger.Warn().Str("cell_id", cell.CellID).Err(err).Msg("deactivate during cleanup failed")
		}
		if err := a.runtime.Release(cell.CellID); err != nil {
			a.logger.Warn().Str("cell_id", cell.CellID).Err(err).Msg("release during cleanup failed")
		}
		if err := a.providerRPC.ReleaseCell(ctx, cell.ProviderURL, &provider.CellHandle{CellID: cell.CellID}, cell.QuantumSignature, cell.Usage); err != nil {
			a.logger.Warn().Str("cell_id", cell.CellID).Err(err).Msg("provider release during cleanup failed")
		}
	}
}
