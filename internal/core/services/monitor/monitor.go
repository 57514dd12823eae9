// Package monitor wires the sampling cycle: source, stores, detector and bus.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
	"github.com/lcalzada-xor/nethealth/internal/core/services/anomaly"
	"github.com/lcalzada-xor/nethealth/internal/core/services/eventbus"
	"github.com/lcalzada-xor/nethealth/internal/core/services/sampler"
	"github.com/lcalzada-xor/nethealth/internal/core/services/timeseries"
	"github.com/lcalzada-xor/nethealth/internal/core/services/topology"
	"github.com/lcalzada-xor/nethealth/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Defaults applied to zero configuration fields.
const (
	DefaultSamplingPeriod = time.Second
	DefaultAlertLogSize   = 200
)

// ErrStopped is returned by operations on a stopped monitor.
var ErrStopped = errors.New("monitor stopped")

// Config holds the pipeline tunables.
type Config struct {
	SamplingPeriod time.Duration
	MaxPoints      int
	Rules          []domain.Rule
	CooldownCycles int
	AlertLogSize   int
}

func (c *Config) applyDefaults() {
	if c.SamplingPeriod == 0 {
		c.SamplingPeriod = DefaultSamplingPeriod
	}
	if c.MaxPoints == 0 {
		c.MaxPoints = timeseries.DefaultMaxPoints
	}
	if c.CooldownCycles == 0 {
		c.CooldownCycles = anomaly.DefaultCooldownCycles
	}
	if c.AlertLogSize == 0 {
		c.AlertLogSize = DefaultAlertLogSize
	}
}

// Validate checks the tunables; rules are validated by the detector.
func (c Config) Validate() error {
	if c.SamplingPeriod <= 0 {
		return fmt.Errorf("%w: sampling period must be positive, got %s", domain.ErrConfiguration, c.SamplingPeriod)
	}
	if c.MaxPoints < 1 {
		return fmt.Errorf("%w: maxPoints must be at least 1, got %d", domain.ErrConfiguration, c.MaxPoints)
	}
	if c.CooldownCycles < 1 {
		return fmt.Errorf("%w: cooldownCycles must be at least 1, got %d", domain.ErrConfiguration, c.CooldownCycles)
	}
	if c.AlertLogSize < 1 {
		return fmt.Errorf("%w: alert log size must be at least 1, got %d", domain.ErrConfiguration, c.AlertLogSize)
	}
	return nil
}

// Option customises a Monitor.
type Option func(*options)

type options struct {
	logger *slog.Logger
	clock  func() time.Time
}

// WithLogger sets the structured logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the sampler clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// Monitor is one running pipeline instance. Cycles run on a single goroutine;
// the accessor methods are safe from any goroutine.
type Monitor struct {
	cfg    Config
	source ports.MeasurementSource
	logger *slog.Logger

	sampler  *sampler.Sampler
	series   *timeseries.Store
	topology *topology.Store
	detector *anomaly.Detector
	bus      *eventbus.Bus

	latest atomic.Pointer[domain.Snapshot]

	alertsMu sync.RWMutex
	alerts   []domain.IntrusionEvent

	// cycleMu serialises cycles with Stop.
	cycleMu sync.Mutex
	closed  bool

	runMu     sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New validates cfg and builds a monitor around source.
func New(cfg Config, source ports.MeasurementSource, opts ...Option) (*Monitor, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: measurement source is required", domain.ErrConfiguration)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	detector, err := anomaly.NewDetector(cfg.Rules, cfg.CooldownCycles)
	if err != nil {
		return nil, err
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	samplerOpts := []sampler.Option{sampler.WithLogger(o.logger)}
	if o.clock != nil {
		samplerOpts = append(samplerOpts, sampler.WithClock(o.clock))
	}

	cfg.Rules = detector.Rules()
	return &Monitor{
		cfg:      cfg,
		source:   source,
		logger:   o.logger,
		sampler:  sampler.New(source, samplerOpts...),
		series:   timeseries.NewStore(cfg.MaxPoints),
		topology: topology.NewStore(),
		detector: detector,
		bus:      eventbus.New(o.logger),
	}, nil
}

// Config returns the effective configuration, defaults applied.
func (m *Monitor) Config() Config { return m.cfg }

// Bus returns the event bus subscribers register on.
func (m *Monitor) Bus() *eventbus.Bus { return m.bus }

// RunCycle samples once, updates the stores and the detector, and publishes.
// A cancelled cycle returns an error wrapping domain.ErrCancelled and
// publishes nothing.
func (m *Monitor) RunCycle(ctx context.Context) (domain.Snapshot, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if m.closed {
		return domain.Snapshot{}, fmt.Errorf("%w: %w", domain.ErrCancelled, ErrStopped)
	}

	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "cycle")
	defer span.End()

	snap := m.sampler.Sample(ctx)
	telemetry.SamplesTotal.WithLabelValues(string(snap.Status)).Inc()
	span.SetAttributes(
		attribute.Int64("snapshot.version", int64(snap.Version)),
		attribute.String("snapshot.status", string(snap.Status)),
	)
	if snap.Status == domain.StatusCancelled {
		err := sampler.Cause(snap)
		span.SetStatus(codes.Error, err.Error())
		return snap, err
	}
	if snap.IsDegraded() {
		m.logger.Warn("degraded snapshot", "version", snap.Version, "stale", snap.Stale, "reason", snap.Reason)
	}

	if !snap.IsStale(domain.PartMetrics) {
		if err := m.series.AppendSample(snap.Metrics); err != nil {
			m.logger.Warn("metric sample dropped", "error", err)
		}
		for _, k := range domain.MetricKinds {
			telemetry.MetricValue.WithLabelValues(string(k)).Set(snap.Metrics.Value(k))
		}
	}

	var diff domain.TopologyDiff
	if !snap.IsStale(domain.PartTopology) {
		d, err := m.topology.Update(snap.Topology.Nodes(), snap.Topology.Links())
		if err != nil {
			telemetry.TopologyRejected.Inc()
			m.logger.Warn("topology update rejected", "error", err)
		} else {
			diff = d
		}
	}

	events := m.detector.Evaluate(anomaly.Observation{Snapshot: snap, History: m.series})
	for state, n := range m.detector.Counts() {
		telemetry.EntityStates.WithLabelValues(string(state)).Set(float64(n))
	}
	m.recordAlerts(events)

	m.latest.Store(&snap)
	telemetry.DevicesVisible.Set(float64(len(snap.Devices)))

	m.publish(eventbus.TopicMetrics, snap)
	if !diff.IsEmpty() {
		m.publish(eventbus.TopicTopology, diff)
	}
	if !snap.IsStale(domain.PartDevices) {
		m.publish(eventbus.TopicDevices, snap.Devices)
	}
	for _, ev := range events {
		telemetry.AlertsTotal.WithLabelValues(ev.RuleName).Inc()
		m.logger.Info("intrusion confirmed",
			"id", ev.ID, "entity", ev.EntityID, "rule", ev.RuleName,
			"confidence", ev.Confidence, "severity", ev.Severity)
		m.publish(eventbus.TopicAlerts, ev)
	}

	span.SetAttributes(attribute.Int("alerts", len(events)))
	telemetry.CycleDuration.Observe(time.Since(start).Seconds())
	return snap, nil
}

// publish delivers to subscribers; failures are isolated and logged by the bus.
func (m *Monitor) publish(topic eventbus.Topic, payload any) {
	_ = m.bus.Publish(topic, payload)
}

func (m *Monitor) recordAlerts(events []domain.IntrusionEvent) {
	if len(events) == 0 {
		return
	}
	m.alertsMu.Lock()
	defer m.alertsMu.Unlock()
	m.alerts = append(m.alerts, events...)
	if over := len(m.alerts) - m.cfg.AlertLogSize; over > 0 {
		m.alerts = append([]domain.IntrusionEvent(nil), m.alerts[over:]...)
	}
}

// Start runs a cycle immediately and then once per sampling period until
// ctx is cancelled or Stop is called. A monitor whose loop ended with ctx
// may be started again; after Stop it returns ErrStopped.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		select {
		case <-m.done:
			// The previous loop ended with its parent context.
			m.cancel()
		default:
			return errors.New("monitor already started")
		}
	}
	m.cycleMu.Lock()
	closed := m.closed
	m.cycleMu.Unlock()
	if closed {
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
	return nil
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.SamplingPeriod)
	defer ticker.Stop()

	for {
		if _, err := m.RunCycle(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the loop, waits for the in-flight cycle and closes the source.
// Nothing is published after Stop returns. Stop is idempotent.
func (m *Monitor) Stop() error {
	m.runMu.Lock()
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.runMu.Unlock()

	m.cycleMu.Lock()
	m.closed = true
	m.cycleMu.Unlock()

	m.closeOnce.Do(func() {
		if err := m.source.Close(); err != nil {
			m.closeErr = fmt.Errorf("closing measurement source: %w", err)
		}
	})
	return m.closeErr
}

// Latest returns the last published snapshot.
func (m *Monitor) Latest() (domain.Snapshot, bool) {
	p := m.latest.Load()
	if p == nil {
		return domain.Snapshot{}, false
	}
	return *p, true
}

// History returns a copy of one metric stream, oldest first.
func (m *Monitor) History(kind domain.MetricKind) []domain.Point {
	return m.series.Snapshot(kind)
}

// Stats summarises one metric stream.
func (m *Monitor) Stats(kind domain.MetricKind) domain.SeriesStats {
	return m.series.Stats(kind)
}

// Topology returns the current validated topology.
func (m *Monitor) Topology() domain.Topology {
	return m.topology.Current()
}

// Alerts returns up to n of the most recent events, newest first.
// n <= 0 returns the whole log.
func (m *Monitor) Alerts(n int) []domain.IntrusionEvent {
	m.alertsMu.RLock()
	defer m.alertsMu.RUnlock()
	if n <= 0 || n > len(m.alerts) {
		n = len(m.alerts)
	}
	out := make([]domain.IntrusionEvent, 0, n)
	for i := len(m.alerts) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.alerts[i])
	}
	return out
}
