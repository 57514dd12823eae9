package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
	"github.com/lcalzada-xor/nethealth/internal/telemetry"
)

// Sampler turns MeasurementSource readings into versioned snapshots.
// It is driven by a single goroutine; Sample must not be called concurrently.
type Sampler struct {
	source ports.MeasurementSource
	now    func() time.Time
	logger *slog.Logger

	version uint64
	last    domain.Snapshot
}

// Option customises a Sampler.
type Option func(*Sampler)

// WithClock replaces time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// WithLogger sets the logger used for rejected source data.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sampler) { s.logger = l }
}

// New creates a Sampler pulling from source.
func New(source ports.MeasurementSource, opts ...Option) *Sampler {
	s := &Sampler{
		source: source,
		now:    time.Now,
		logger: slog.Default(),
		last: domain.Snapshot{
			Path:    domain.PathUnsatisfied,
			Devices: []domain.DeviceRecord{},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Last returns the most recent snapshot produced (zero Version before the first).
func (s *Sampler) Last() domain.Snapshot {
	return s.last
}

// Sample runs one acquisition. It never fails: parts that could not be read
// carry their last-known values, are listed in Stale, and the snapshot is
// marked degraded with the error text in Reason. If ctx is cancelled while
// sampling, the result has StatusCancelled and does not replace the last
// snapshot.
func (s *Sampler) Sample(ctx context.Context) domain.Snapshot {
	prev := s.last
	snap := domain.Snapshot{
		Path:     prev.Path,
		Metrics:  prev.Metrics,
		Devices:  prev.Devices,
		Topology: prev.Topology,
		Flows:    prev.Flows,
	}

	var errs []error
	stale := func(part string, err error) {
		snap.Stale = append(snap.Stale, part)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", part, err))
		}
	}

	path, err := s.source.PathStatus(ctx)
	switch {
	case err != nil:
		stale(domain.PartPath, err)
	case path != domain.PathSatisfied:
		snap.Path = path
		errs = append(errs, errors.New("network connection lost"))
	default:
		snap.Path = path
	}

	if err == nil && path == domain.PathSatisfied {
		s.acquire(ctx, &snap, stale)
	} else {
		for _, part := range []string{domain.PartMetrics, domain.PartDevices, domain.PartTopology, domain.PartFlows} {
			stale(part, nil)
		}
	}

	if ctx.Err() != nil {
		return domain.Snapshot{
			Version:   prev.Version,
			Timestamp: prev.Timestamp,
			Status:    domain.StatusCancelled,
			Reason:    fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err()).Error(),
		}
	}

	snap.Timestamp = s.nextTimestamp(prev.Timestamp)
	if !snap.IsStale(domain.PartMetrics) {
		snap.Metrics = snap.Metrics.WithTimestamp(snap.Timestamp)
	}
	snap.Status = domain.StatusOK
	if len(snap.Stale) > 0 || len(errs) > 0 {
		snap.Status = domain.StatusDegraded
		snap.Reason = reason(errs)
	}

	s.version++
	snap.Version = s.version
	s.last = snap
	return snap
}

func (s *Sampler) acquire(ctx context.Context, snap *domain.Snapshot, stale func(string, error)) {
	if res, err := s.source.Probe(ctx); err != nil {
		stale(domain.PartMetrics, err)
	} else if m, err := domain.NewMetricSample(s.now(), res.BandwidthMbps, res.LatencyMs, res.PacketLoss); err != nil {
		stale(domain.PartMetrics, err)
	} else {
		snap.Metrics = m
	}

	if devices, err := s.source.EnumerateDevices(ctx); err != nil {
		stale(domain.PartDevices, err)
	} else {
		snap.Devices = domain.NormalizeDevices(devices)
	}

	if ts, ok := s.source.(ports.TopologySource); ok {
		nodes, links, err := ts.Topology(ctx)
		if err != nil {
			stale(domain.PartTopology, err)
		} else if topo, err := domain.NewTopology(nodes, links); err != nil {
			// The source answered but its graph is unusable: keep the last
			// valid topology without degrading the snapshot.
			telemetry.TopologyRejected.Inc()
			s.logger.Warn("topology rejected", "error", err)
		} else {
			snap.Topology = topo
		}
	}

	if fs, ok := s.source.(ports.FlowSource); ok {
		flows, err := fs.Flows(ctx)
		if err != nil {
			stale(domain.PartFlows, err)
		} else {
			snap.Flows = append([]domain.FlowEntry(nil), flows...)
		}
	}
}

// nextTimestamp keeps snapshot timestamps strictly increasing even if the
// wall clock steps backwards.
func (s *Sampler) nextTimestamp(prev time.Time) time.Time {
	ts := s.now()
	if !prev.IsZero() && !ts.After(prev) {
		ts = prev.Add(time.Nanosecond)
	}
	return ts
}

func reason(errs []error) string {
	if len(errs) == 0 {
		return ""
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%w: %s", domain.ErrSourceUnavailable, strings.Join(msgs, "; ")).Error()
}

// Cause rebuilds a matchable error from a degraded snapshot.
func Cause(snap domain.Snapshot) error {
	switch snap.Status {
	case domain.StatusDegraded:
		return fmt.Errorf("%w: %s", domain.ErrSourceUnavailable, snap.Reason)
	case domain.StatusCancelled:
		return fmt.Errorf("%w: %s", domain.ErrCancelled, snap.Reason)
	}
	return nil
}
