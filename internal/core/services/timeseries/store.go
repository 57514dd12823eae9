package timeseries

import (
	"fmt"
	"sync"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// DefaultMaxPoints is the per-stream capacity used when none is configured.
const DefaultMaxPoints = 50

// Store holds one bounded series per metric kind.
// Appends come from the sampling cycle; snapshots may be taken from any goroutine.
type Store struct {
	maxPoints int
	series    map[domain.MetricKind]*Series
	mu        sync.RWMutex
}

// NewStore creates a store with a series for every known metric kind.
func NewStore(maxPoints int) *Store {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	s := &Store{
		maxPoints: maxPoints,
		series:    make(map[domain.MetricKind]*Series, len(domain.MetricKinds)),
	}
	for _, k := range domain.MetricKinds {
		s.series[k] = NewSeries(maxPoints)
	}
	return s
}

// MaxPoints returns the per-stream capacity.
func (s *Store) MaxPoints() int { return s.maxPoints }

// Append adds one point to a stream, creating the stream on first use.
func (s *Store) Append(kind domain.MetricKind, p domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, ok := s.series[kind]
	if !ok {
		series = NewSeries(s.maxPoints)
		s.series[kind] = series
	}
	return series.Append(p)
}

// AppendSample fans a metric sample out to the three standard streams.
// Either all three points are stored or none.
func (s *Store) AppendSample(sample domain.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range domain.MetricKinds {
		if last, ok := s.series[k].Last(); ok && sample.Timestamp.Before(last.Timestamp) {
			return fmt.Errorf("%w: %s sample at %s precedes %s", domain.ErrOutOfOrder, k,
				sample.Timestamp.Format(time.RFC3339Nano), last.Timestamp.Format(time.RFC3339Nano))
		}
	}
	for _, k := range domain.MetricKinds {
		// Cannot fail: ordering was checked above.
		_ = s.series[k].Append(domain.Point{Timestamp: sample.Timestamp, Value: sample.Value(k)})
	}
	return nil
}

// Snapshot returns an independent copy of a stream, oldest first.
func (s *Store) Snapshot(kind domain.MetricKind) []domain.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.series[kind]
	if !ok {
		return []domain.Point{}
	}
	return series.Points()
}

// Stats summarises a stream.
func (s *Store) Stats(kind domain.MetricKind) domain.SeriesStats {
	return domain.ComputeStats(s.Snapshot(kind))
}

// Reset drops every held point.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.series {
		s.series[k] = NewSeries(s.maxPoints)
	}
}
