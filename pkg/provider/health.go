package provider

import (
	"sync"
	"time"

	"github.com/cuemby/qcc-assembler/pkg/types"
)

// HealthTracker records a "last healthy" timestamp per provider and
// considers a provider unhealthy for a configured cooldown window after a
// failed RPC. One tracker is shared across all provider calls the
// assembler makes.
type HealthTracker struct {
	mu        sync.RWMutex
	cooldown  time.Duration
	providers map[string]*types.ProviderHealth
}

// NewHealthTracker creates a tracker with the given unhealthy cooldown.
func NewHealthTracker(cooldown time.Duration) *HealthTracker {
	return &HealthTracker{
		cooldown:  cooldown,
		providers: make(map[string]*types.ProviderHealth),
	}
}

func (h *HealthTracker) entry(url string) *types.ProviderHealth {
	rec, ok := h.providers[url]
	if !ok {
		rec = &types.ProviderHealth{ProviderURL: url}
		h.providers[url] = rec
	}
	return rec
}

// MarkHealthy records a successful RPC against the provider.
func (h *HealthTracker) MarkHealthy(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := h.entry(url)
	rec.LastHealthyAt = time.Now()
	rec.UnhealthyUntil = time.Time{}
}

// MarkUnhealthy starts (or extends) the provider's cooldown window from
// now.
func (h *HealthTracker) MarkUnhealthy(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := h.entry(url)
	rec.UnhealthyUntil = time.Now().Add(h.cooldown)
}

// IsHealthy reports whether the provider is currently outside its
// cooldown window. Providers never seen before are considered healthy.
func (h *HealthTracker) IsHealthy(url string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rec, ok := h.providers[url]
	if !ok {
		return true
	}
	return time.Now().After(rec.UnhealthyUntil)
}

// Status returns a snapshot of a provider's health record.
func (h *HealthTracker) Status(url string) types.ProviderHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if rec, ok := h.providers[url]; ok {
		return *rec
	}
	return types.ProviderHealth{ProviderURL: url}
}
