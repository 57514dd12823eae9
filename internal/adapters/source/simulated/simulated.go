// Package simulated is a demo MeasurementSource generating plausible LAN
// telemetry: a three-switch OpenFlow ring, a handful of hosts, random
// metrics and occasional incidents.
package simulated

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
)

// Metric ranges of a healthy network.
const (
	minBandwidth = 50.0
	maxBandwidth = 150.0
	minLatency   = 10.0
	maxLatency   = 100.0
	maxLoss      = 5.0
)

// Vendor OUI prefixes (first 3 bytes of MAC)
var vendorPrefixes = []string{
	"00:17:F2", // Apple
	"00:12:FB", // Samsung
	"00:1E:BD", // Cisco
	"50:C7:BF", // TP-Link
	"F4:F5:D8", // Google
	"00:13:02", // Intel
}

var hostNames = []string{
	"MacBook Pro", "ThinkPad X1", "Pixel 7", "Smart TV", "NAS", "Printer", "Nest Hub", "PlayStation 5",
}

// Config tunes how often incidents are injected. Probabilities are per cycle.
type Config struct {
	Seed          int64
	Hosts         int
	LossBurstProb float64
	IntruderProb  float64
	WatchedProb   float64
}

// DefaultConfig produces a lively demo.
func DefaultConfig() Config {
	return Config{
		Seed:          time.Now().UnixNano(),
		Hosts:         4,
		LossBurstProb: 0.03,
		IntruderProb:  0.01,
		WatchedProb:   0.02,
	}
}

// Source implements ports.MeasurementSource, ports.TopologySource and ports.FlowSource.
type Source struct {
	cfg  Config
	mu   sync.Mutex
	rand *rand.Rand

	devices   []domain.DeviceRecord
	burstLeft int
	closed    bool
}

// New creates a simulated source with a stable set of devices.
func New(cfg Config) *Source {
	if cfg.Hosts <= 0 {
		cfg.Hosts = 4
	}
	s := &Source{
		cfg:  cfg,
		rand: rand.New(rand.NewSource(cfg.Seed)),
	}
	s.devices = []domain.DeviceRecord{
		{Name: "Switch 1", IPAddress: "192.168.1.1", MACAddress: "00:11:22:33:44:55", ConnectionType: domain.ConnectionSwitch},
		{Name: "Router 1", IPAddress: "192.168.1.2", MACAddress: "00:11:22:33:44:56", ConnectionType: domain.ConnectionRouter},
		{Name: "Host 1", IPAddress: "192.168.1.3", MACAddress: "00:11:22:33:44:57", ConnectionType: domain.ConnectionHost},
	}
	for i := 0; i < cfg.Hosts; i++ {
		s.devices = append(s.devices, s.generateHost(10+i))
	}
	return s
}

// generateMAC generates a random MAC address with a known vendor prefix
func (s *Source) generateMAC() string {
	prefix := vendorPrefixes[s.rand.Intn(len(vendorPrefixes))]
	return fmt.Sprintf("%s:%02X:%02X:%02X", prefix, s.rand.Intn(256), s.rand.Intn(256), s.rand.Intn(256))
}

func (s *Source) generateHost(octet int) domain.DeviceRecord {
	conn := domain.ConnectionWiFi
	if s.rand.Float64() < 0.3 {
		conn = domain.ConnectionEthernet
	}
	return domain.DeviceRecord{
		Name:           hostNames[s.rand.Intn(len(hostNames))],
		IPAddress:      fmt.Sprintf("192.168.1.%d", octet),
		MACAddress:     s.generateMAC(),
		ConnectionType: conn,
	}
}

func (s *Source) uniform(lo, hi float64) float64 {
	return lo + s.rand.Float64()*(hi-lo)
}

func (s *Source) PathStatus(ctx context.Context) (domain.PathStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.PathUnsatisfied, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.PathUnsatisfied, nil
	}
	return domain.PathSatisfied, nil
}

// EnumerateDevices returns the known devices; now and then an intruder joins
// and stays.
func (s *Source) EnumerateDevices(ctx context.Context) ([]domain.DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rand.Float64() < s.cfg.IntruderProb && len(s.devices) < 250 {
		intruder := s.generateHost(100 + len(s.devices))
		intruder.Name = "unknown"
		s.devices = append(s.devices, intruder)
	}
	return append([]domain.DeviceRecord(nil), s.devices...), nil
}

// Probe draws metrics from the healthy ranges; during a loss burst packet
// loss and latency run well above them.
func (s *Source) Probe(ctx context.Context) (ports.ProbeResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.ProbeResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.burstLeft == 0 && s.rand.Float64() < s.cfg.LossBurstProb {
		s.burstLeft = 3 + s.rand.Intn(4)
	}
	res := ports.ProbeResult{
		BandwidthMbps: s.uniform(minBandwidth, maxBandwidth),
		LatencyMs:     s.uniform(minLatency, maxLatency),
		PacketLoss:    s.uniform(0, maxLoss),
	}
	if s.burstLeft > 0 {
		s.burstLeft--
		res.PacketLoss = s.uniform(10, 40)
		res.LatencyMs = s.uniform(200, 600)
		res.BandwidthMbps = s.uniform(1, 20)
	}
	return res, nil
}

// Topology returns the OpenFlow switch ring.
func (s *Source) Topology(ctx context.Context) ([]domain.TopologyNode, []domain.TopologyLink, error) {
	nodes := []domain.TopologyNode{
		{ID: "Switch1", Label: "OpenFlow Switch 1"},
		{ID: "Switch2", Label: "OpenFlow Switch 2"},
		{ID: "Switch3", Label: "OpenFlow Switch 3"},
	}
	links := []domain.TopologyLink{
		{SourceID: "Switch1", DestinationID: "Switch2", BandwidthMbps: 100},
		{SourceID: "Switch2", DestinationID: "Switch3", BandwidthMbps: 100},
		{SourceID: "Switch3", DestinationID: "Switch1", BandwidthMbps: 100},
	}
	return nodes, links, nil
}

// Flows returns the steady host flows plus, occasionally, a session to a
// watched port.
func (s *Source) Flows(ctx context.Context) ([]domain.FlowEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flows := []domain.FlowEntry{
		{FlowID: "1", SourceIP: "192.168.1.3", DestinationIP: "192.168.1.4", SourcePort: 8080, DestinationPort: 80, Protocol: "tcp", BandwidthMbps: 1.5},
		{FlowID: "2", SourceIP: "192.168.1.4", DestinationIP: "192.168.1.3", SourcePort: 80, DestinationPort: 8080, Protocol: "tcp", BandwidthMbps: 2.0},
	}
	if s.rand.Float64() < s.cfg.WatchedProb {
		flows = append(flows, domain.FlowEntry{
			FlowID:          "3",
			SourceIP:        "192.168.1.3",
			DestinationIP:   "192.168.1.2",
			SourcePort:      40000 + s.rand.Intn(20000),
			DestinationPort: 23,
			Protocol:        "tcp",
			BandwidthMbps:   0.1,
		})
	}
	return flows, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var (
	_ ports.MeasurementSource = (*Source)(nil)
	_ ports.TopologySource    = (*Source)(nil)
	_ ports.FlowSource        = (*Source)(nil)
)
