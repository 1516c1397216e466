// Package runtime owns per-cell lifecycle, process-wide resource
// accounting, the inter-cell connection registry, and capability
// dispatch.
package runtime
