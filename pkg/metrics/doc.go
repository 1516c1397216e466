/*
Package metrics provides Prometheus metrics collection and exposition, plus
the process health/readiness checks exposed by the orchestrator daemon.

Metrics are registered at package init using the Prometheus client library and
are scraped over HTTP. Health state is tracked separately in a small
in-process registry that backs the /healthz, /livez, and JSON health
endpoints.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (active solutions)   │          │
	│  │  Counter: Monotonic increases (assemblies)  │          │
	│  │  Histogram: Distributions (mining duration) │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Assembly: assemblies, releases, duration   │          │
	│  │  Cells: requests, cache hits, cache size    │          │
	│  │  Providers: unhealthy transitions           │          │
	│  │  Security: gate rejections                  │          │
	│  │  Ledger: blocks mined, mining duration,     │          │
	│  │          difficulty, pending transactions   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

qcc_assemblies_total{outcome}:
  - Type: Counter
  - Description: Total assembly attempts by outcome (success,
    cell_request_error, security_error, activation_error)

qcc_assembly_duration_seconds:
  - Type: Histogram
  - Description: Time to assemble a full solution

qcc_active_solutions:
  - Type: Gauge
  - Description: Solutions currently held by the assembler

qcc_releases_total:
  - Type: Counter
  - Description: Total solutions released

qcc_prior_configurations_used_total:
  - Type: Counter
  - Description: Assemblies that reused a ledger-retrieved configuration

qcc_cell_requests_total{capability, outcome}:
  - Type: Counter
  - Description: Cell requests issued to providers, by capability and
    outcome (success/failure)

qcc_cell_cache_hits_total:
  - Type: Counter
  - Description: Core-capability cell requests served from cache

qcc_cell_cache_size:
  - Type: Gauge
  - Description: Cells currently held in the core-capability cache

qcc_provider_unhealthy_total{provider}:
  - Type: Counter
  - Description: Times a provider was marked unhealthy

qcc_security_rejections_total{stage}:
  - Type: Counter
  - Description: Requests rejected by the security gate, by stage

qcc_ledger_blocks_mined_total:
  - Type: Counter
  - Description: Blocks appended to the quantum-trail chain

qcc_ledger_mining_duration_seconds:
  - Type: Histogram
  - Description: Time spent mining a block to the configured difficulty

qcc_ledger_difficulty:
  - Type: Gauge
  - Description: Current proof-of-work difficulty

qcc_ledger_pending_transactions:
  - Type: Gauge
  - Description: Transactions waiting to be mined into a block

# Usage

	import "github.com/cuemby/qcc-assembler/pkg/metrics"

	metrics.AssembliesTotal.WithLabelValues("success").Inc()
	metrics.ActiveSolutions.Set(float64(len(solutions)))

	timer := metrics.NewTimer()
	// ... assemble ...
	timer.ObserveDuration(metrics.AssemblyDuration)

	http.Handle("/metrics", metrics.Handler())

# Health and Readiness

HealthChecker tracks the health of named components (ledger, assembler,
providers) independently of the Prometheus registry:

	metrics.RegisterComponent("ledger", true, "")
	metrics.UpdateComponent("ledger", false, "mining loop exited")

	mux.Handle("/healthz", metrics.ReadyHandler())  // 503 while any
	                                                 // registered critical
	                                                 // component is unhealthy
	mux.Handle("/livez", metrics.LivenessHandler()) // always 200 while
	                                                 // the process runs
	mux.Handle("/health", metrics.HealthHandler())   // full JSON status

Readiness considers "ledger", "assembler", and "providers" critical;
liveness only reflects that the process is scheduling goroutines.

# Integration Points

This package integrates with:

  - pkg/assembler: assembly/release counters and duration, active solutions,
    prior-configuration reuse, cell request counters, cache hit/size
    metrics, provider unhealthy transitions, security rejections by stage
  - pkg/ledger: mining counters, duration, difficulty, pending transactions
  - cmd/orchestratord: registers components and mounts the HTTP handlers
  - Prometheus: scrapes /metrics

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration

Timer Pattern:
  - Create timer at operation start
  - Call ObserveDuration to record elapsed time to a histogram

Global Metrics:
  - Package-level variables, safe for concurrent use
  - No initialization required by callers
*/
package metrics
