/*
Package log provides structured logging for the orchestrator using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("assembler")                │          │
	│  │  - WithSolutionID("solution-abc123")         │          │
	│  │  - WithCellID("cell-xyz789")                 │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "assembler",                │          │
	│  │    "time": "2026-07-31T10:30:00Z",          │          │
	│  │    "message": "solution assembled"           │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2026-07-31T10:30:00Z INF solution assembled component=assembler │  │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithSolutionID: Add solution ID context
  - WithCellID: Add cell ID context

# Usage

Initializing the Logger:

	import "github.com/cuemby/qcc-assembler/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Structured Logging:

	log.Logger.Info().
		Str("solution_id", "solution-123").
		Int("cell_count", 3).
		Msg("solution assembled")

	log.Logger.Error().
		Err(err).
		Str("cell_id", "cell-abc").
		Msg("cell request failed")

Component Loggers:

	assemblerLog := log.WithComponent("assembler")
	assemblerLog.Info().Msg("assembling solution")

	solutionLog := log.WithSolutionID("solution-123")
	solutionLog.Info().Msg("solution released")

	cellLog := log.WithCellID("cell-xyz")
	cellLog.Debug().Msg("cell requested from provider")

# Integration Points

This package integrates with:

  - pkg/assembler: logs assembly, release, and execution decisions
  - pkg/provider: logs failed provider RPC attempts
  - pkg/security: holds a component logger; gate rejections are logged by
    pkg/assembler
  - pkg/ledger: logs block mining and chain validation
  - cmd/orchestratord: initializes the logger from CLI flags

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"assembler","time":"2026-07-31T10:30:00Z","message":"solution assembled"}
	{"level":"info","component":"ledger","time":"2026-07-31T10:30:01Z","message":"block mined"}
	{"level":"error","component":"provider","error":"connection refused","time":"2026-07-31T10:30:02Z","message":"cell request failed"}

Console Format (Development):

	2026-07-31T10:30:00Z INF solution assembled component=assembler
	2026-07-31T10:30:01Z INF block mined component=ledger
	2026-07-31T10:30:02Z ERR cell request failed component=provider error="connection refused"

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying

# Security

Log Content:
  - Never log secrets or signing keys
  - Redact tokens before logging provider responses
  - Use structured fields (.Str, .Int) for user-controlled data, never
    string concatenation
*/
package log
