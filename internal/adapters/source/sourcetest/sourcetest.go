// Package sourcetest provides a scripted MeasurementSource for tests.
package sourcetest

import (
	"context"
	"sync"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
)

// Source is a MeasurementSource whose answers are set by the test.
// Probes queued with QueueProbe are consumed first; afterwards ProbeResult repeats.
type Source struct {
	mu sync.Mutex

	Path        domain.PathStatus
	PathErr     error
	Devices     []domain.DeviceRecord
	DevicesErr  error
	ProbeResult ports.ProbeResult
	ProbeErr    error
	Nodes       []domain.TopologyNode
	Links       []domain.TopologyLink
	TopologyErr error
	FlowList    []domain.FlowEntry
	FlowsErr    error

	// BeforeProbe runs at the start of every Probe call, outside the lock.
	BeforeProbe func(ctx context.Context)

	queue      []ports.ProbeResult
	probeCalls int
	closeCalls int
}

// New returns a healthy source with a satisfied path.
func New() *Source {
	return &Source{Path: domain.PathSatisfied}
}

// Set mutates the source under its lock.
func (s *Source) Set(fn func(s *Source)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// QueueProbe appends probe results to be returned in order.
func (s *Source) QueueProbe(results ...ports.ProbeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, results...)
}

// QueueLoss queues probes that only differ in packet loss.
func (s *Source) QueueLoss(losses ...float64) {
	for _, l := range losses {
		s.QueueProbe(ports.ProbeResult{BandwidthMbps: 100, LatencyMs: 20, PacketLoss: l})
	}
}

func (s *Source) PathStatus(ctx context.Context) (domain.PathStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Path, s.PathErr
}

func (s *Source) EnumerateDevices(ctx context.Context) ([]domain.DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DevicesErr != nil {
		return nil, s.DevicesErr
	}
	return append([]domain.DeviceRecord(nil), s.Devices...), nil
}

func (s *Source) Probe(ctx context.Context) (ports.ProbeResult, error) {
	s.mu.Lock()
	hook := s.BeforeProbe
	s.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeCalls++
	if s.ProbeErr != nil {
		return ports.ProbeResult{}, s.ProbeErr
	}
	if len(s.queue) > 0 {
		r := s.queue[0]
		s.queue = s.queue[1:]
		return r, nil
	}
	return s.ProbeResult, nil
}

func (s *Source) Topology(ctx context.Context) ([]domain.TopologyNode, []domain.TopologyLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TopologyErr != nil {
		return nil, nil, s.TopologyErr
	}
	return append([]domain.TopologyNode(nil), s.Nodes...), append([]domain.TopologyLink(nil), s.Links...), nil
}

func (s *Source) Flows(ctx context.Context) ([]domain.FlowEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FlowsErr != nil {
		return nil, s.FlowsErr
	}
	return append([]domain.FlowEntry(nil), s.FlowList...), nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

// ProbeCalls returns how many times Probe was invoked.
func (s *Source) ProbeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probeCalls
}

// CloseCalls returns how many times Close was invoked.
func (s *Source) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

var (
	_ ports.MeasurementSource = (*Source)(nil)
	_ ports.TopologySource    = (*Source)(nil)
	_ ports.FlowSource        = (*Source)(nil)
)
