// Package intent implements the intent interpreter: a pure, stateless
// translation from a natural-language request into a prioritized list of
// capability requirements and connection hints for the assembler.
package intent

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cuemby/qcc-assembler/pkg/log"
	"github.com/cuemby/qcc-assembler/pkg/types"
	"github.com/rs/zerolog"
)

var wordBoundary = func(word string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
}

// Interpreter analyzes user requests against a fixed pattern table.
// Stateless beyond its logger; Analyze has no I/O and no failure mode.
type Interpreter struct {
	logger zerolog.Logger
}

// NewInterpreter creates a new intent interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		logger: log.WithComponent("intent"),
	}
}

// Analyze turns a natural-language request into a capability plan.
func (in *Interpreter) Analyze(request string, ctx types.IntentContext) types.IntentAnalysis {
	normalized := normalizeText(request)

	capabilities := identifyCapabilities(normalized, ctx)
	connections := identifyConnections(capabilities)
	confidence := calculateConfidence(capabilities)

	in.logger.Debug().
		Str("normalized_request", normalized).
		Int("capability_count", len(capabilities)).
		Float64("confidence_score", confidence).
		Msg("analyzed intent")

	return types.IntentAnalysis{
		NormalizedRequest:    normalized,
		Capabilities:         capabilities,
		SuggestedConnections: connections,
		ConfidenceScore:      confidence,
	}
}

// normalizeText lowercases the request, collapses whitespace, and expands
// the fixed abbreviation table.
func normalizeText(request string) string {
	text := strings.ToLower(strings.TrimSpace(request))
	text = strings.Join(strings.Fields(text), " ")

	for _, ab := range abbreviations {
		text = wordBoundary(ab.abbr).ReplaceAllString(text, ab.expansion)
	}

	return text
}

// identifyCapabilities matches the normalized text against the fixed
// pattern table, deduplicating by capability name (first match wins),
// applies device adjustments, falls back to a default capability set when
// nothing matched, and returns the list sorted by priority.
func identifyCapabilities(normalized string, ctx types.IntentContext) []types.CapabilityRequirement {
	seen := make(map[string]bool)
	var result []types.CapabilityRequirement

	for _, pat := range patterns {
		if !pat.regex.MatchString(normalized) {
			continue
		}
		for _, tmpl := range pat.capabilities {
			if seen[tmpl.name] {
				continue
			}
			seen[tmpl.name] = true
			result = append(result, toRequirement(tmpl))
		}
	}

	for i := range result {
		adjustForDevice(&result[i], ctx.DeviceInfo)
	}

	if len(result) == 0 {
		result = append(result, types.CapabilityRequirement{
			Capability: "text_generation",
			Parameters: map[string]any{"mode": "informative"},
			Priority:   1,
			Confidence: 0.5,
		})
		if visualKeywords.MatchString(normalized) {
			result = append(result, types.CapabilityRequirement{
				Capability: "ui_rendering",
				Parameters: map[string]any{"type": "simple"},
				Priority:   2,
				Confidence: 0.4,
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority < result[j].Priority
	})

	return result
}

func toRequirement(tmpl capabilityTemplate) types.CapabilityRequirement {
	params := make(map[string]any, len(tmpl.parameters))
	for k, v := range tmpl.parameters {
		params[k] = v
	}
	return types.CapabilityRequirement{
		Capability: tmpl.name,
		Parameters: params,
		Priority:   tmpl.priority,
		Confidence: tmpl.confidence,
	}
}

// adjustForDevice tailors a matched capability's parameters to the caller's
// device context: responsive/compact rendering on constrained platforms,
// and quality/GPU hints for media processing.
func adjustForDevice(req *types.CapabilityRequirement, device types.DeviceInfo) {
	if device == (types.DeviceInfo{}) {
		return
	}

	switch req.Capability {
	case "ui_rendering":
		switch device.Platform {
		case "mobile":
			req.Parameters["responsive"] = true
			req.Parameters["compact"] = true
		case "web":
			req.Parameters["responsive"] = true
		}
	case "media_processing":
		switch {
		case device.MemoryGB < 2:
			req.Parameters["quality"] = "low"
		case device.MemoryGB < 8:
			req.Parameters["quality"] = "medium"
		default:
			req.Parameters["quality"] = "high"
		}
		if device.GPUAvailable {
			req.Parameters["use_gpu"] = true
		}
	}
}

// identifyConnections builds source -> targets connection hints from the
// fixed connectionRules table, restricted to capabilities actually present
// in the plan.
func identifyConnections(capabilities []types.CapabilityRequirement) map[string][]string {
	present := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		present[c.Capability] = true
	}

	connections := make(map[string][]string)
	for _, c := range capabilities {
		allowed, ok := connectionRules[c.Capability]
		if !ok {
			continue
		}
		var targets []string
		for _, t := range allowed {
			if present[t] {
				targets = append(targets, t)
			}
		}
		if len(targets) > 0 {
			connections[c.Capability] = targets
		}
	}
	return connections
}

// calculateConfidence is the arithmetic mean of all capability confidences.
func calculateConfidence(capabilities []types.CapabilityRequirement) float64 {
	if len(capabilities) == 0 {
		return 0.0
	}
	var sum float64
	for _, c := range capabilities {
		sum += c.Confidence
	}
	return sum / float64(len(capabilities))
}
