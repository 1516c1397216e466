package types

import "time"

// CellState is one of the five lifecycle states from the cell state
// machine: initialized -> active -> {suspended, deactivated} -> released.
type CellState string

const (
	CellInitialized CellState = "initialized"
	CellActive      CellState = "active"
	CellSuspended   CellState = "suspended"
	CellDeactivated CellState = "deactivated"
	CellReleased    CellState = "released"
)

// ResourceAllocation is the set of resources reserved for a single cell.
type ResourceAllocation struct {
	MemoryMB   int
	CPUPercent int
	StorageMB  int
}

// UsageMetrics tracks peak resource consumption observed for a cell.
type UsageMetrics struct {
	PeakMemoryMB   int
	PeakCPUPercent int
	LastUpdated    time.Time
}

// Cell is a single remote compute module instance, scoped to exactly one
// Solution for its entire lifetime.
type Cell struct {
	CellID           string
	CellType         string
	Capability       string
	Version          string
	ProviderURL      string
	QuantumSignature string
	Status           CellState
	Parameters       map[string]any

	CreatedAt      time.Time
	ActivatedAt    time.Time
	DeactivatedAt  time.Time
	ReleasedAt     time.Time
	SuspendedToken string

	Resources ResourceAllocation
	Usage     UsageMetrics
}

// ConcurrentSafe reports whether dispatches against this cell may run in
// parallel, per the "concurrent_safe" parameter. Default: false
// (serialize dispatches per cell).
func (c *Cell) ConcurrentSafe() bool {
	if c.Parameters == nil {
		return false
	}
	v, ok := c.Parameters["concurrent_safe"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SolutionStatus is the lifecycle state of an assembled Solution.
type SolutionStatus string

const (
	SolutionInitializing SolutionStatus = "initializing"
	SolutionActive       SolutionStatus = "active"
	SolutionSuspended    SolutionStatus = "suspended"
	SolutionReleased     SolutionStatus = "released"
	SolutionError        SolutionStatus = "error"
)

// SolutionMetrics accumulates performance data over a Solution's lifetime.
type SolutionMetrics struct {
	PeakMemoryMB     int
	AvgCPUPercent    float64
	AssemblyTimeMS   int64
	TotalUsageTimeMS int64
}

// Solution is an assembled, active set of cells wired together to satisfy
// one user intent.
type Solution struct {
	SolutionID       string
	Cells            map[string]*Cell
	QuantumSignature string
	Intent           *IntentAnalysis
	Status           SolutionStatus
	Connections      map[string][]string // source capability -> target capabilities, as installed
	Metrics          SolutionMetrics
	CreatedAt        time.Time
	ReleasedAt       time.Time

	// PriorConfig is the CellConfiguration this solution was assembled
	// from, if any (spec §4.4 step 4). Carried through to release so the
	// closing ledger transaction can fold the observed usage into a
	// reuse score for that configuration (spec §4.5).
	PriorConfig *CellConfiguration
}

// CellSpec describes one cell within a Cell Configuration: what to request
// from a provider to reconstruct a prior, proven assembly.
type CellSpec struct {
	CellType    string
	Capability  string
	Version     string
	ProviderURL string
	Parameters  map[string]any
}

// CellConfiguration ("Pattern") is a reusable template derived from past
// successful assemblies.
type CellConfiguration struct {
	ConfigID         string
	CellSpecs        []CellSpec
	ConnectionMap    map[string][]string
	PerformanceScore float64
	UseCount         int
	LastUsedAt       time.Time
}

// ConnectionMetadata describes one installed edge in the cell runtime's
// connection registry.
type ConnectionMetadata struct {
	InstalledAt time.Time
	Parameters  map[string]any
}

// DeviceInfo is the probed or supplied execution context used by the
// interpreter's device adjustments and the assembler's cache
// compatibility check.
type DeviceInfo struct {
	Platform     string // "mobile", "web", "desktop", ...
	MemoryGB     float64
	GPUAvailable bool
}

// IntentContext is the client-supplied (or assembler-enriched) context
// accompanying a request.
type IntentContext struct {
	Timestamp                 time.Time
	DeviceInfo                DeviceInfo
	AssemblerID               string
	UserID                    string
	UsePreviousConfigurations bool
	Extra                     map[string]any
}

// CapabilityRequirement is one entry of an IntentAnalysis's capability
// list: a capability to acquire, tagged with priority/confidence/params.
type CapabilityRequirement struct {
	Capability string
	Priority   int
	Confidence float64
	Parameters map[string]any
}

// IntentAnalysis is the interpreter's output: a prioritized capability
// list plus connection hints, ready for the assembler's cell-acquisition
// pipeline.
type IntentAnalysis struct {
	NormalizedRequest    string
	Capabilities         []CapabilityRequirement
	SuggestedConnections map[string][]string
	ConfidenceScore      float64
}

// CapabilityNames returns the capability list in priority order, the form
// the assembler's acquisition loop consumes.
func (ia *IntentAnalysis) CapabilityNames() []string {
	names := make([]string, len(ia.Capabilities))
	for i, c := range ia.Capabilities {
		names[i] = c.Capability
	}
	return names
}

// AssemblerStatus reports the assembler's operational counters.
type AssemblerStatus struct {
	Uptime            time.Duration
	ActiveSolutions   int
	CachedCells       int
	TotalAssemblies   int64
	TotalCellRequests int64
}

// ProviderHealth is the liveness record the assembler keeps per provider.
type ProviderHealth struct {
	ProviderURL    string
	LastHealthyAt  time.Time
	UnhealthyUntil time.Time
}

// LedgerTransaction is a single signed record of an assembly or an
// assembly update, appended to the quantum-trail ledger.
type LedgerTransaction struct {
	TxID               string
	Timestamp          time.Time
	QuantumSignature   string
	SolutionID         string
	CellIDs            []string
	ConnectionMap      map[string][]string
	PerformanceMetrics map[string]float64
	Status             string // "" for the initial assembly record, "released" for the closing one
	TxSignature        string
}

// LedgerBlock is a sequence container in the quantum-trail chain.
type LedgerBlock struct {
	Index        int
	Timestamp    time.Time
	PreviousHash string
	Transactions []LedgerTransaction
	Nonce        int64
	Difficulty   int
	Hash         string
}
