// Package state owns the in-memory live view of all clients, their
// endpoints and current statuses. All access goes through one mutex;
// the cycle runner reads a consistent snapshot, does its network work
// unlocked, then applies the cycle's results as a single batch.
package state

import (
	"errors"
	"sync"

	"uptimizer/internal/models"
)

var (
	// ErrClientNotFound is returned for operations on unknown clients.
	ErrClientNotFound = errors.New("client not found")
	// ErrEndpointNotFound is returned for operations on unknown endpoints.
	ErrEndpointNotFound = errors.New("endpoint not found")
)

// State is the single source of truth for "current" status queries.
type State struct {
	mu          sync.Mutex
	settings    models.Settings
	clients     map[string]*clientState
	lastUpdated int64
}

type clientState struct {
	client   models.Client
	statuses map[string]models.LiveStatus
}

// ClientSnapshot is one client's share of a cycle snapshot.
type ClientSnapshot struct {
	Client   models.Client
	Statuses map[string]models.LiveStatus
}

// Snapshot is a consistent copy of everything one cycle needs.
type Snapshot struct {
	Settings models.Settings
	Clients  []ClientSnapshot
}

// Batch carries one cycle's accumulated results, applied atomically.
type Batch struct {
	// Updates merges per-endpoint statuses into a client (local probes).
	Updates map[string]map[string]models.LiveStatus
	// Replacements swap a client's entire statuses map (remote fetches).
	Replacements map[string]map[string]models.LiveStatus
	// Timestamp becomes the global last_updated value.
	Timestamp int64
}

// New builds live state from configured clients. Every endpoint starts
// PENDING with last_check_ts zero, so it is due on the first cycle.
func New(settings models.Settings, clients []models.Client) *State {
	s := &State{
		settings: settings,
		clients:  make(map[string]*clientState, len(clients)),
	}
	for _, c := range clients {
		cs := &clientState{
			client:   c,
			statuses: make(map[string]models.LiveStatus, len(c.Endpoints)),
		}
		for _, ep := range c.Endpoints {
			if ep.ID == "" {
				continue
			}
			cs.statuses[ep.ID] = models.LiveStatus{Status: models.StatusPending}
		}
		s.clients[c.ID] = cs
	}
	return s
}

// Snapshot copies settings, clients and statuses under the lock.
// Lock hold time is O(copy); the caller does all I/O unlocked.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Settings: s.settings}
	for _, cs := range s.clients {
		snap.Clients = append(snap.Clients, ClientSnapshot{
			Client:   copyClient(cs.client),
			Statuses: copyStatuses(cs.statuses),
		})
	}
	return snap
}

// Apply merges one cycle's results in a single critical section, so a
// concurrent reader never observes a half-applied cycle.
func (s *State) Apply(b Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for clientID, statuses := range b.Updates {
		cs, ok := s.clients[clientID]
		if !ok {
			continue
		}
		for epID, st := range statuses {
			// An endpoint deleted while the cycle was in flight must
			// not be resurrected by its late probe result.
			if _, known := cs.statuses[epID]; !known {
				continue
			}
			cs.statuses[epID] = st
		}
	}
	for clientID, statuses := range b.Replacements {
		cs, ok := s.clients[clientID]
		if !ok {
			continue
		}
		cs.statuses = copyStatuses(statuses)
	}
	s.lastUpdated = b.Timestamp
}

// Settings returns the current global settings.
func (s *State) Settings() models.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the global settings.
func (s *State) SetSettings(settings models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// LastUpdated returns the timestamp of the last applied cycle.
func (s *State) LastUpdated() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdated
}

// Clients returns a copy of all configured clients.
func (s *State) Clients() []models.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Client, 0, len(s.clients))
	for _, cs := range s.clients {
		out = append(out, copyClient(cs.client))
	}
	return out
}

// ClientStatus returns one client's status snapshot for external
// exposure, or ErrClientNotFound.
func (s *State) ClientStatus(clientID string) (models.StatusSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.clients[clientID]
	if !ok {
		return models.StatusSnapshot{}, ErrClientNotFound
	}
	return models.StatusSnapshot{
		Statuses:    copyStatuses(cs.statuses),
		LastUpdated: s.lastUpdated,
	}, nil
}

// AllStatuses returns every client's snapshot keyed by client id.
func (s *State) AllStatuses() map[string]models.StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.StatusSnapshot, len(s.clients))
	for id, cs := range s.clients {
		out[id] = models.StatusSnapshot{
			Statuses:    copyStatuses(cs.statuses),
			LastUpdated: s.lastUpdated,
		}
	}
	return out
}

// LocalEndpointIDs returns the ids of all endpoints belonging to local
// clients, the ids eligible for statistics.
func (s *State) LocalEndpointIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, cs := range s.clients {
		if cs.client.Type != models.ClientLocal {
			continue
		}
		for _, ep := range cs.client.Endpoints {
			if ep.ID != "" {
				ids = append(ids, ep.ID)
			}
		}
	}
	return ids
}

// HasEndpoint reports whether any client owns the given endpoint id.
func (s *State) HasEndpoint(endpointID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cs := range s.clients {
		for _, ep := range cs.client.Endpoints {
			if ep.ID == endpointID {
				return true
			}
		}
	}
	return false
}

// AddEndpoint appends a new endpoint to a local client and seeds its
// PENDING live status.
func (s *State) AddEndpoint(clientID string, ep models.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	cs.client.Endpoints = append(cs.client.Endpoints, ep)
	cs.statuses[ep.ID] = models.LiveStatus{Status: models.StatusPending}
	return nil
}

// UpdateEndpoint replaces an existing endpoint's definition in place.
func (s *State) UpdateEndpoint(clientID string, ep models.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	for i := range cs.client.Endpoints {
		if cs.client.Endpoints[i].ID == ep.ID {
			cs.client.Endpoints[i] = ep
			return nil
		}
	}
	return ErrEndpointNotFound
}

// RemoveEndpoint deletes an endpoint and its live status.
func (s *State) RemoveEndpoint(clientID, endpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	for i := range cs.client.Endpoints {
		if cs.client.Endpoints[i].ID == endpointID {
			cs.client.Endpoints = append(cs.client.Endpoints[:i], cs.client.Endpoints[i+1:]...)
			delete(cs.statuses, endpointID)
			return nil
		}
	}
	return ErrEndpointNotFound
}

// Replace swaps the whole configuration after a config reload. Live
// statuses of surviving endpoints are preserved; new endpoints start
// PENDING so the next cycle picks them up.
func (s *State) Replace(settings models.Settings, clients []models.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.clients
	s.settings = settings
	s.clients = make(map[string]*clientState, len(clients))
	for _, c := range clients {
		cs := &clientState{
			client:   c,
			statuses: make(map[string]models.LiveStatus, len(c.Endpoints)),
		}
		prev := old[c.ID]
		for _, ep := range c.Endpoints {
			if ep.ID == "" {
				continue
			}
			if prev != nil {
				if st, ok := prev.statuses[ep.ID]; ok {
					cs.statuses[ep.ID] = st
					continue
				}
			}
			cs.statuses[ep.ID] = models.LiveStatus{Status: models.StatusPending}
		}
		// Linked clients keep whatever statuses the last fetch brought.
		if c.Type == models.ClientLinked && prev != nil {
			cs.statuses = copyStatuses(prev.statuses)
		}
		s.clients[c.ID] = cs
	}
}

func copyClient(c models.Client) models.Client {
	out := c
	out.Endpoints = append([]models.Endpoint(nil), c.Endpoints...)
	return out
}

func copyStatuses(m map[string]models.LiveStatus) map[string]models.LiveStatus {
	out := make(map[string]models.LiveStatus, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
