package runtime

import (
	"sync"
	"time"

	"github.com/cuemby/qcc-assembler/pkg/types"
)

// ConnectionRegistry is a directed-graph adjacency map of installed cell
// connections: source_id -> target_id -> metadata.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	edges map[string]map[string]types.ConnectionMetadata
}

// NewConnectionRegistry creates an empty connection registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		edges: make(map[string]map[string]types.ConnectionMetadata),
	}
}

// Connect installs a directed edge source -> target.
func (r *ConnectionRegistry) Connect(source, target string, parameters map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.edges[source] == nil {
		r.edges[source] = make(map[string]types.ConnectionMetadata)
	}
	r.edges[source][target] = types.ConnectionMetadata{
		InstalledAt: time.Now(),
		Parameters:  parameters,
	}
}

// Disconnect removes a directed edge. Disconnecting a non-existent edge is
// a no-op that returns false.
func (r *ConnectionRegistry) Disconnect(source, target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets, ok := r.edges[source]
	if !ok {
		return false
	}
	if _, ok := targets[target]; !ok {
		return false
	}
	delete(targets, target)
	if len(targets) == 0 {
		delete(r.edges, source)
	}
	return true
}

// GetConnections returns a cell's outgoing and incoming edges.
func (r *ConnectionRegistry) GetConnections(cellID string) (outgoing, incoming []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for target := range r.edges[cellID] {
		outgoing = append(outgoing, target)
	}
	for source, targets := range r.edges {
		if _, ok := targets[cellID]; ok {
			incoming = append(incoming, source)
		}
	}
	return outgoing, incoming
}

// Connected reports whether an edge source -> target exists.
func (r *ConnectionRegistry) Connected(source, target string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.edges[source][target]
	return ok
}

// RemoveCell drops every edge touching cellID, in either direction. Called
// when a cell is released.
func (r *ConnectionRegistry) RemoveCell(cellID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.edges, cellID)
	for source, targets := range r.edges {
		if _, ok := targets[cellID]; ok {
			delete(targets, cellID)
			if len(targets) == 0 {
				delete(r.edges, source)
			}
		}
	}
}
