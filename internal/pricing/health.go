package pricing

import (
	"sync"

	"github.com/sigilum/chainrisk/internal/models"
)

// failureThreshold is the consecutive-failure count at which a provider is
// taken out of rotation.
const failureThreshold = 3

// healthTracker keeps per-provider consecutive failure counts. A provider
// becomes unhealthy at the threshold and healthy again once successes bring
// its counter back to zero. Safe for concurrent use.
type healthTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func newHealthTracker() *healthTracker {
	return &healthTracker{counts: make(map[string]int)}
}

func (h *healthTracker) IsHealthy(providerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[providerID] < failureThreshold
}

func (h *healthTracker) RecordFailure(providerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[providerID]++
}

func (h *healthTracker) RecordSuccess(providerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.counts[providerID] > 0 {
		h.counts[providerID]--
	}
}

// Snapshot reports the current health of every provider ever seen plus the
// given ids, for the operational health endpoint.
func (h *healthTracker) Snapshot(providerIDs []string) []models.ProviderHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[string]struct{}, len(providerIDs))
	out := make([]models.ProviderHealth, 0, len(providerIDs))
	for _, id := range providerIDs {
		seen[id] = struct{}{}
		out = append(out, models.ProviderHealth{
			ProviderID:          id,
			ConsecutiveFailures: h.counts[id],
			IsHealthy:           h.counts[id] < failureThreshold,
		})
	}
	for id, count := range h.counts {
		if _, ok := seen[id]; ok {
			continue
		}
		out = append(out, models.ProviderHealth{
			ProviderID:          id,
			ConsecutiveFailures: count,
			IsHealthy:           count < failureThreshold,
		})
	}
	return out
}
