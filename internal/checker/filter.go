package checker

import (
	"sync"

	"uptimizer/internal/models"
)

// Observation is the slice of a check result the change filter
// compares against: the persisted status and its detail string.
type Observation struct {
	Status  models.Status
	Details string
}

// ShouldPersist decides whether a new observation warrants a history
// record, given the previous persisted observation (nil if none).
// Rules, in priority order:
//  1. no prior record: persist (bootstrap)
//  2. UP: always persist (keeps response-time samples flowing)
//  3. status transition: persist
//  4. same DOWN/ERROR status with different details: persist
//  5. otherwise: skip
func ShouldPersist(prev *Observation, curr models.CheckResult) bool {
	if prev == nil {
		return true
	}
	if curr.Status == models.StatusUp {
		return true
	}
	if curr.Status != prev.Status {
		return true
	}
	if (curr.Status == models.StatusDown || curr.Status == models.StatusError) && curr.Details != prev.Details {
		return true
	}
	return false
}

// SavedCache remembers the most recently persisted observation per
// endpoint, so the filter never has to query the store per cycle.
// Process-local: lost on restart, which only costs one duplicate
// record after the first post-restart check.
type SavedCache struct {
	mu    sync.Mutex
	saved map[string]Observation
}

// NewSavedCache creates an empty cache.
func NewSavedCache() *SavedCache {
	return &SavedCache{saved: make(map[string]Observation)}
}

// Get returns the last persisted observation for an endpoint, or nil.
func (c *SavedCache) Get(endpointID string) *Observation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if obs, ok := c.saved[endpointID]; ok {
		return &obs
	}
	return nil
}

// Mark records a successfully persisted observation.
func (c *SavedCache) Mark(endpointID string, curr models.CheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved[endpointID] = Observation{Status: curr.Status, Details: curr.Details}
}

// Forget drops an endpoint's entry, so the next observation persists
// again. Used after a history purge.
func (c *SavedCache) Forget(endpointID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.saved, endpointID)
}
