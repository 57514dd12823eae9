package topology

import (
	"sync"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// Store holds the current validated topology.
// A rejected update leaves the previous snapshot in place.
type Store struct {
	current  domain.Topology
	revision uint64
	mu       sync.RWMutex
}

// NewStore creates a store holding the empty topology.
func NewStore() *Store {
	return &Store{}
}

// Update validates nodes and links, swaps them in and returns the diff against
// the previous snapshot. On domain.ErrInvalidTopology nothing changes.
func (s *Store) Update(nodes []domain.TopologyNode, links []domain.TopologyLink) (domain.TopologyDiff, error) {
	next, err := domain.NewTopology(nodes, links)
	if err != nil {
		return domain.TopologyDiff{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	diff := domain.DiffTopology(s.current, next)
	if !diff.IsEmpty() {
		s.revision++
	}
	s.current = next
	return diff, nil
}

// Current returns the current topology. Topology values are immutable.
func (s *Store) Current() domain.Topology {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Revision counts the updates that changed the graph.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Diff is a convenience wrapper around domain.DiffTopology.
func Diff(previous, current domain.Topology) domain.TopologyDiff {
	return domain.DiffTopology(previous, current)
}
