// Package metrics exposes prometheus instrumentation for the assembler
// and the ledger.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Assembler metrics
	AssembliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qcc_assemblies_total",
			Help: "Total number of AssembleSolution calls by outcome",
		},
		[]string{"outcome"}, // "success", "cell_request_error", "security_error", "activation_error"
	)

	AssemblyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qcc_assembly_duration_seconds",
			Help:    "Time taken to assemble a solution, end to end",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveSolutions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qcc_active_solutions",
			Help: "Number of solutions currently active in the assembler",
		},
	)

	ReleasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qcc_releases_total",
			Help: "Total number of ReleaseSolution calls that found a live solution",
		},
	)

	PriorConfigurationsUsedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qcc_prior_configurations_used_total",
			Help: "Total number of assemblies that reused a ledger-retrieved configuration",
		},
	)

	// Cell / provider metrics
	CellRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qcc_cell_requests_total",
			Help: "Total number of provider cell requests by capability and outcome",
		},
		[]string{"capability", "outcome"}, // outcome: "success", "failure"
	)

	CellCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qcc_cell_cache_hits_total",
			Help: "Total number of cell acquisitions satisfied from the cell cache",
		},
	)

	CellCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qcc_cell_cache_size",
			Help: "Current number of entries in the cell cache",
		},
	)

	ProviderUnhealthyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qcc_provider_unhealthy_total",
			Help: "Total number of times a provider was marked unhealthy",
		},
		[]string{"provider"},
	)

	SecurityRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qcc_security_rejections_total",
			Help: "Total number of security gate rejections by stage",
		},
		[]string{"stage"}, // "signature", "permission", "connection"
	)

	// Ledger metrics
	LedgerBlocksMinedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qcc_ledger_blocks_mined_total",
			Help: "Total number of blocks appended to the quantum-trail chain",
		},
	)

	LedgerMiningDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qcc_ledger_mining_duration_seconds",
			Help:    "Time taken to mine a block",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)

	LedgerDifficulty = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qcc_ledger_difficulty",
			Help: "Current proof-of-work difficulty",
		},
	)

	LedgerPendingTransactions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qcc_ledger_pending_transactions",
			Help: "Current number of transactions awaiting the next block",
		},
	)
)

func init() {
	prometheus.MustRegister(
		AssembliesTotal,
		AssemblyDuration,
		ActiveSolutions,
		ReleasesTotal,
		PriorConfigurationsUsedTotal,
		CellRequestsTotal,
		CellCacheHitsTotal,
		CellCacheSize,
		ProviderUnhealthyTotal,
		SecurityRejectionsTotal,
		LedgerBlocksMinedTotal,
		LedgerMiningDuration,
		LedgerDifficulty,
		LedgerPendingTransactions,
	)
}

// Handler returns the prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing operations into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time into the histogram vector
// under the given label values.
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labelValues ...string) {
	histogram.WithLabelValues(labelValues...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
