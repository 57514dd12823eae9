package anomaly

import (
	"testing"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory map[domain.MetricKind][]domain.Point

func (h fakeHistory) Snapshot(kind domain.MetricKind) []domain.Point {
	return append([]domain.Point(nil), h[kind]...)
}

func latencyHistory(values ...float64) fakeHistory {
	pts := make([]domain.Point, len(values))
	for i, v := range values {
		pts[i] = domain.Point{Timestamp: t0.Add(time.Duration(i) * time.Second), Value: v}
	}
	return fakeHistory{domain.MetricLatency: pts}
}

func latencySnapshot(at int, latency float64) domain.Snapshot {
	ts := t0.Add(time.Duration(at) * time.Second)
	return domain.Snapshot{
		Timestamp: ts,
		Status:    domain.StatusOK,
		Metrics:   domain.MetricSample{Timestamp: ts, Latency: latency},
	}
}

func mustEvaluator(t *testing.T, rule domain.Rule) Evaluator {
	t.Helper()
	rule.ApplyDefaults()
	require.NoError(t, rule.Validate())
	ev, err := NewEvaluator(rule)
	require.NoError(t, err)
	return ev
}

func TestSpikeEvaluator(t *testing.T) {
	ev := mustEvaluator(t, domain.Rule{Name: "latency-spike", Kind: domain.RuleSpike, Metric: domain.MetricLatency, Value: 3})
	hist := latencyHistory(20, 21, 19, 20, 22, 18)

	tests := []struct {
		name    string
		history fakeHistory
		latency float64
		fires   bool
	}{
		{"within band", hist, 21, false},
		{"spike", hist, 80, true},
		{"drop counts too", hist, 0, true},
		{"too little history", latencyHistory(20, 21, 22), 80, false},
		{"flat history", latencyHistory(20, 20, 20, 20, 20), 80, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := len(tt.history[domain.MetricLatency])
			got := ev.Evaluate(Observation{Snapshot: latencySnapshot(at, tt.latency), History: tt.history})
			if tt.fires {
				require.Len(t, got, 1)
				assert.Equal(t, EntityMetric+"latency", got[0].EntityID)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestSpikeEvaluator_IgnoresCurrentPointInHistory(t *testing.T) {
	ev := mustEvaluator(t, domain.Rule{Name: "s", Kind: domain.RuleSpike, Metric: domain.MetricLatency, Value: 3})
	// The store already holds the new value at index 6.
	hist := latencyHistory(20, 21, 19, 20, 22, 18, 80)
	got := ev.Evaluate(Observation{Snapshot: latencySnapshot(6, 80), History: hist})
	assert.Len(t, got, 1)
}

func TestSpikeEvaluator_Baseline(t *testing.T) {
	ev := mustEvaluator(t, domain.Rule{Name: "s", Kind: domain.RuleSpike, Metric: domain.MetricLatency, Value: 3, Baseline: 5})
	// Old points are noisy; the last five are tight around 100.
	hist := latencyHistory(10, 300, 5, 250, 100, 101, 99, 100, 102)
	got := ev.Evaluate(Observation{Snapshot: latencySnapshot(9, 130), History: hist})
	assert.Len(t, got, 1)
}

func devicesSnapshot(status domain.SnapshotStatus, devices ...domain.DeviceRecord) domain.Snapshot {
	return domain.Snapshot{Status: status, Devices: devices}
}

func TestUnknownDeviceEvaluator_AllowList(t *testing.T) {
	ev := mustEvaluator(t, domain.Rule{
		Name:  "unknown",
		Kind:  domain.RuleUnknownDevice,
		Allow: []string{"aa-bb-cc-dd-ee-01", "10.0.0.9"},
	})

	got := ev.Evaluate(Observation{Snapshot: devicesSnapshot(domain.StatusOK,
		domain.DeviceRecord{Name: "known-mac", IPAddress: "10.0.0.1", MACAddress: "AA:BB:CC:DD:EE:01"},
		domain.DeviceRecord{Name: "known-ip", IPAddress: "10.0.0.9"},
		domain.DeviceRecord{Name: "intruder", IPAddress: "10.0.0.66", MACAddress: "de:ad:be:ef:00:01"},
	)})

	require.Len(t, got, 1)
	assert.Equal(t, EntityDevice+"DE:AD:BE:EF:00:01", got[0].EntityID)
	assert.Equal(t, "10.0.0.66", got[0].SourceIP)
}

func TestUnknownDeviceEvaluator_Learn(t *testing.T) {
	ev := mustEvaluator(t, domain.Rule{Name: "unknown", Kind: domain.RuleUnknownDevice, Learn: true})
	router := domain.DeviceRecord{Name: "router", IPAddress: "10.0.0.1"}
	newcomer := domain.DeviceRecord{Name: "new", IPAddress: "10.0.0.7"}

	// Degraded snapshots are not learned from.
	assert.Empty(t, ev.Evaluate(Observation{Snapshot: devicesSnapshot(domain.StatusDegraded, router, newcomer)}))
	assert.Empty(t, ev.Evaluate(Observation{Snapshot: devicesSnapshot(domain.StatusOK, router)}))
	assert.Empty(t, ev.Evaluate(Observation{Snapshot: devicesSnapshot(domain.StatusOK, router)}))

	got := ev.Evaluate(Observation{Snapshot: devicesSnapshot(domain.StatusOK, router, newcomer)})
	require.Len(t, got, 1)
	assert.Equal(t, EntityDevice+"10.0.0.7", got[0].EntityID)
}

func topologySnapshot(t *testing.T, links ...domain.TopologyLink) domain.Snapshot {
	t.Helper()
	nodes := []domain.TopologyNode{{ID: "Switch1"}, {ID: "Switch2"}, {ID: "Switch3"}}
	topo, err := domain.NewTopology(nodes, links)
	require.NoError(t, err)
	return domain.Snapshot{Status: domain.StatusOK, Topology: topo}
}

func TestUnexpectedLinkEvaluator(t *testing.T) {
	ev := mustEvaluator(t, domain.Rule{
		Name:  "links",
		Kind:  domain.RuleUnexpectedLink,
		Allow: []string{"Switch3->Switch1"},
	})
	ring := []domain.TopologyLink{
		{SourceID: "Switch1", DestinationID: "Switch2"},
		{SourceID: "Switch2", DestinationID: "Switch3"},
	}

	assert.Empty(t, ev.Evaluate(Observation{Snapshot: domain.Snapshot{Status: domain.StatusOK}}), "empty topology is no baseline")
	assert.Empty(t, ev.Evaluate(Observation{Snapshot: topologySnapshot(t, ring...)}), "baseline never fires")

	extended := append(append([]domain.TopologyLink(nil), ring...),
		domain.TopologyLink{SourceID: "Switch3", DestinationID: "Switch1"},
		domain.TopologyLink{SourceID: "Switch1", DestinationID: "Switch3", BandwidthMbps: 10},
	)
	for i := 0; i < 2; i++ {
		got := ev.Evaluate(Observation{Snapshot: topologySnapshot(t, extended...)})
		require.Len(t, got, 1, "cycle %d", i)
		assert.Equal(t, EntityLink+"Switch1->Switch3", got[0].EntityID)
	}
}

func TestPortWatchEvaluator(t *testing.T) {
	ev := mustEvaluator(t, domain.Rule{Name: "telnet", Kind: domain.RulePortWatch, Ports: []int{23, 3389}})
	snap := domain.Snapshot{
		Status: domain.StatusOK,
		Flows: []domain.FlowEntry{
			{SourceIP: "10.0.0.5", DestinationIP: "10.0.0.1", SourcePort: 50000, DestinationPort: 23, Protocol: "tcp"},
			{SourceIP: "10.0.0.5", DestinationIP: "1.1.1.1", SourcePort: 50001, DestinationPort: 443, Protocol: "tcp"},
		},
	}

	got := ev.Evaluate(Observation{Snapshot: snap})
	require.Len(t, got, 1)
	assert.Equal(t, EntityFlow+"10.0.0.5->10.0.0.1:23/tcp", got[0].EntityID)
	assert.Equal(t, 23, got[0].DestinationPort)
	assert.Equal(t, "tcp", got[0].Protocol)

	snap.Stale = []string{domain.PartFlows}
	assert.Empty(t, ev.Evaluate(Observation{Snapshot: snap}))
}

func TestDetector_PortWatchEventCarriesFlow(t *testing.T) {
	d, err := NewDetector([]domain.Rule{{Name: "rdp", Kind: domain.RulePortWatch, Ports: []int{3389}, Window: 1}}, 1)
	require.NoError(t, err)

	snap := domain.Snapshot{
		Status: domain.StatusOK,
		Flows:  []domain.FlowEntry{{SourceIP: "10.0.0.5", DestinationIP: "10.0.0.2", SourcePort: 40000, DestinationPort: 3389, Protocol: "tcp"}},
	}
	events := d.Evaluate(Observation{Snapshot: snap})
	require.Len(t, events, 1)
	assert.Equal(t, "10.0.0.5", events[0].SourceIP)
	assert.Equal(t, "10.0.0.2", events[0].DestinationIP)
	assert.Equal(t, 40000, events[0].SourcePort)
	assert.Equal(t, 3389, events[0].DestinationPort)
}
