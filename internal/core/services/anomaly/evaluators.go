package anomaly

import (
	"fmt"
	"math"
	"strings"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// Entity id prefixes.
const (
	EntityMetric = "metric:"
	EntityDevice = "device:"
	EntityLink   = "link:"
	EntityFlow   = "flow:"
)

// HistoryReader exposes the held metric history to spike rules.
type HistoryReader interface {
	Snapshot(kind domain.MetricKind) []domain.Point
}

// Observation is everything a rule may look at in one cycle.
type Observation struct {
	Snapshot domain.Snapshot
	History  HistoryReader
}

// Finding is one rule firing on one entity.
type Finding struct {
	EntityID        string
	Details         string
	SourceIP        string
	DestinationIP   string
	SourcePort      int
	DestinationPort int
	Protocol        string
}

// Evaluator checks one rule against a cycle's observation.
type Evaluator interface {
	Rule() domain.Rule
	Evaluate(obs Observation) []Finding
}

// NewEvaluator builds the evaluator for a validated rule.
func NewEvaluator(rule domain.Rule) (Evaluator, error) {
	switch rule.Kind {
	case domain.RuleThreshold:
		return &thresholdEvaluator{rule: rule}, nil
	case domain.RuleSpike:
		return &spikeEvaluator{rule: rule}, nil
	case domain.RuleUnknownDevice:
		return newUnknownDeviceEvaluator(rule), nil
	case domain.RuleUnexpectedLink:
		return newUnexpectedLinkEvaluator(rule), nil
	case domain.RulePortWatch:
		return newPortWatchEvaluator(rule), nil
	}
	return nil, fmt.Errorf("rule %q: %w: %q", rule.Name, domain.ErrInvalidRuleKind, rule.Kind)
}

// metricsUsable reports whether the metric part was refreshed this cycle.
func metricsUsable(s domain.Snapshot) bool {
	return s.Status != domain.StatusCancelled && !s.IsStale(domain.PartMetrics)
}

type thresholdEvaluator struct {
	rule domain.Rule
}

func (e *thresholdEvaluator) Rule() domain.Rule { return e.rule }

func (e *thresholdEvaluator) Evaluate(obs Observation) []Finding {
	if !metricsUsable(obs.Snapshot) {
		return nil
	}
	v := obs.Snapshot.Metrics.Value(e.rule.Metric)
	if !e.rule.Comparator.Compare(v, e.rule.Value) {
		return nil
	}
	return []Finding{{
		EntityID: EntityMetric + string(e.rule.Metric),
		Details:  fmt.Sprintf("%s %.2f %s %.2f", e.rule.Metric, v, e.rule.Comparator, e.rule.Value),
	}}
}

type spikeEvaluator struct {
	rule domain.Rule
}

func (e *spikeEvaluator) Rule() domain.Rule { return e.rule }

func (e *spikeEvaluator) Evaluate(obs Observation) []Finding {
	if !metricsUsable(obs.Snapshot) || obs.History == nil {
		return nil
	}
	ts := obs.Snapshot.Metrics.Timestamp
	var trailing []domain.Point
	for _, p := range obs.History.Snapshot(e.rule.Metric) {
		if p.Timestamp.Before(ts) {
			trailing = append(trailing, p)
		}
	}
	if e.rule.Baseline > 0 && len(trailing) > e.rule.Baseline {
		trailing = trailing[len(trailing)-e.rule.Baseline:]
	}
	if len(trailing) < domain.MinSpikeBaseline {
		return nil
	}

	stats := domain.ComputeStats(trailing)
	if stats.StdDev == 0 {
		return nil
	}
	v := obs.Snapshot.Metrics.Value(e.rule.Metric)
	z := math.Abs(v-stats.Mean) / stats.StdDev
	if !e.rule.Comparator.Compare(z, e.rule.Value) {
		return nil
	}
	return []Finding{{
		EntityID: EntityMetric + string(e.rule.Metric),
		Details: fmt.Sprintf("%s %.2f deviates %.1f sigma from mean %.2f over %d points",
			e.rule.Metric, v, z, stats.Mean, stats.Count),
	}}
}

type unknownDeviceEvaluator struct {
	rule    domain.Rule
	allowed map[string]struct{}
	learned bool
}

func newUnknownDeviceEvaluator(rule domain.Rule) *unknownDeviceEvaluator {
	e := &unknownDeviceEvaluator{rule: rule, allowed: make(map[string]struct{}, len(rule.Allow))}
	for _, a := range rule.Allow {
		e.allow(a)
	}
	return e
}

func (e *unknownDeviceEvaluator) allow(id string) {
	if domain.IsValidMAC(id) {
		id = domain.NormalizeMAC(id)
	}
	e.allowed[id] = struct{}{}
}

func (e *unknownDeviceEvaluator) known(d domain.DeviceRecord) bool {
	if _, ok := e.allowed[d.Identity()]; ok {
		return true
	}
	_, ok := e.allowed[d.IPAddress]
	return ok
}

func (e *unknownDeviceEvaluator) Rule() domain.Rule { return e.rule }

func (e *unknownDeviceEvaluator) Evaluate(obs Observation) []Finding {
	snap := obs.Snapshot
	if snap.Status == domain.StatusCancelled || snap.IsStale(domain.PartDevices) {
		return nil
	}
	if e.rule.Learn && !e.learned {
		if snap.Status != domain.StatusOK {
			return nil
		}
		for _, d := range snap.Devices {
			e.allow(d.Identity())
		}
		e.learned = true
		return nil
	}

	var out []Finding
	for _, d := range snap.Devices {
		if e.known(d) {
			continue
		}
		out = append(out, Finding{
			EntityID: EntityDevice + d.Identity(),
			Details:  fmt.Sprintf("unknown device %s (%s) at %s", d.Name, d.MACAddress, d.IPAddress),
			SourceIP: d.IPAddress,
		})
	}
	return out
}

// unexpectedLinkEvaluator treats the first non-empty topology as the
// baseline and then fires, every cycle, for each link absent from it.
type unexpectedLinkEvaluator struct {
	rule     domain.Rule
	allowed  map[string]struct{}
	baseline map[string]struct{}
}

func newUnexpectedLinkEvaluator(rule domain.Rule) *unexpectedLinkEvaluator {
	e := &unexpectedLinkEvaluator{rule: rule, allowed: make(map[string]struct{}, len(rule.Allow))}
	for _, a := range rule.Allow {
		e.allowed[strings.ReplaceAll(a, " ", "")] = struct{}{}
	}
	return e
}

func (e *unexpectedLinkEvaluator) Rule() domain.Rule { return e.rule }

func (e *unexpectedLinkEvaluator) Evaluate(obs Observation) []Finding {
	snap := obs.Snapshot
	if snap.Status == domain.StatusCancelled || snap.IsStale(domain.PartTopology) || snap.Topology.IsEmpty() {
		return nil
	}
	links := snap.Topology.Links()
	if e.baseline == nil {
		e.baseline = make(map[string]struct{}, len(links))
		for _, l := range links {
			e.baseline[l.Key()] = struct{}{}
		}
		return nil
	}

	var out []Finding
	for _, l := range links {
		key := l.Key()
		if _, ok := e.baseline[key]; ok {
			continue
		}
		if _, ok := e.allowed[key]; ok {
			continue
		}
		out = append(out, Finding{
			EntityID: EntityLink + key,
			Details:  fmt.Sprintf("unexpected link %s (%.0f Mbps)", key, l.BandwidthMbps),
		})
	}
	return out
}

type portWatchEvaluator struct {
	rule  domain.Rule
	ports map[int]struct{}
}

func newPortWatchEvaluator(rule domain.Rule) *portWatchEvaluator {
	e := &portWatchEvaluator{rule: rule, ports: make(map[int]struct{}, len(rule.Ports))}
	for _, p := range rule.Ports {
		e.ports[p] = struct{}{}
	}
	return e
}

func (e *portWatchEvaluator) Rule() domain.Rule { return e.rule }

func (e *portWatchEvaluator) Evaluate(obs Observation) []Finding {
	snap := obs.Snapshot
	if snap.Status == domain.StatusCancelled || snap.IsStale(domain.PartFlows) {
		return nil
	}
	var out []Finding
	for _, f := range snap.Flows {
		if _, ok := e.ports[f.DestinationPort]; !ok {
			continue
		}
		out = append(out, Finding{
			EntityID:        EntityFlow + f.Key(),
			Details:         fmt.Sprintf("traffic to watched port %d/%s", f.DestinationPort, f.Protocol),
			SourceIP:        f.SourceIP,
			DestinationIP:   f.DestinationIP,
			SourcePort:      f.SourcePort,
			DestinationPort: f.DestinationPort,
			Protocol:        f.Protocol,
		})
	}
	return out
}
