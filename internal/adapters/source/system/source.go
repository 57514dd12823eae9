// Package system reads network health from the local Linux host: /proc for
// neighbours, counters, routes and sockets, and ICMP or TCP probes for
// latency and loss.
package system

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
)

// Config for the host source.
type Config struct {
	ProcRoot     string
	SysRoot      string
	Target       string // probe target; defaults to the default gateway
	ProbeCount   int
	ProbeTimeout time.Duration
	TCPPort      int // used by the TCP fallback prober
}

func (c *Config) applyDefaults() {
	if c.ProcRoot == "" {
		c.ProcRoot = "/proc"
	}
	if c.SysRoot == "" {
		c.SysRoot = "/sys"
	}
	if c.ProbeCount <= 0 {
		c.ProbeCount = 3
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = time.Second
	}
	if c.TCPPort <= 0 {
		c.TCPPort = 443
	}
}

// iface is the part of net.Interface the source needs.
type iface struct {
	Name string
	MAC  string
}

// Source implements ports.MeasurementSource, ports.TopologySource and ports.FlowSource.
type Source struct {
	cfg        Config
	prober     Prober
	interfaces func() ([]iface, error)
	hostname   string

	mu       sync.Mutex
	lastDev  map[string]ifaceCounters
	lastRead time.Time
}

// New builds the source, preferring raw ICMP probes.
func New(cfg Config) *Source {
	cfg.applyDefaults()
	var prober Prober
	if p, err := NewICMPProber(cfg.ProbeTimeout); err == nil {
		prober = p
	} else {
		log.Printf("[SYSTEM] Raw ICMP unavailable (%v), using TCP probes on port %d", err, cfg.TCPPort)
		prober = &TCPProber{Port: cfg.TCPPort, Timeout: cfg.ProbeTimeout}
	}
	return newSource(cfg, prober, upInterfaces)
}

func newSource(cfg Config, prober Prober, interfaces func() ([]iface, error)) *Source {
	cfg.applyDefaults()
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return &Source{cfg: cfg, prober: prober, interfaces: interfaces, hostname: host}
}

// upInterfaces lists running, non-loopback interfaces.
func upInterfaces() ([]iface, error) {
	list, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []iface
	for _, i := range list {
		if i.Flags&net.FlagUp == 0 || i.Flags&net.FlagLoopback != 0 {
			continue
		}
		out = append(out, iface{Name: i.Name, MAC: i.HardwareAddr.String()})
	}
	return out, nil
}

func (s *Source) open(name string) (*os.File, error) {
	return os.Open(filepath.Join(s.cfg.ProcRoot, "net", name))
}

func (s *Source) gateway() (string, string, bool) {
	f, err := s.open("route")
	if err != nil {
		return "", "", false
	}
	defer f.Close()
	return parseDefaultGateway(f)
}

// PathStatus is satisfied with a default route, requires_connection with
// only a link, and unsatisfied otherwise.
func (s *Source) PathStatus(ctx context.Context) (domain.PathStatus, error) {
	f, err := s.open("route")
	if err != nil {
		return domain.PathUnsatisfied, fmt.Errorf("reading routes: %w", err)
	}
	_, _, ok := parseDefaultGateway(f)
	f.Close()
	if ok {
		return domain.PathSatisfied, nil
	}
	ifs, err := s.interfaces()
	if err != nil {
		return domain.PathUnsatisfied, fmt.Errorf("listing interfaces: %w", err)
	}
	if len(ifs) > 0 {
		return domain.PathRequiresConnection, nil
	}
	return domain.PathUnsatisfied, nil
}

func (s *Source) neighbours() ([]arpEntry, error) {
	f, err := s.open("arp")
	if err != nil {
		return nil, fmt.Errorf("reading arp table: %w", err)
	}
	defer f.Close()
	return parseARP(f)
}

// EnumerateDevices returns the resolved ARP neighbours.
func (s *Source) EnumerateDevices(ctx context.Context) ([]domain.DeviceRecord, error) {
	entries, err := s.neighbours()
	if err != nil {
		return nil, err
	}
	gw, _, _ := s.gateway()
	out := make([]domain.DeviceRecord, 0, len(entries))
	for _, e := range entries {
		d := domain.DeviceRecord{
			IPAddress:      e.IP,
			MACAddress:     e.MAC,
			ConnectionType: connectionType(e.Interface),
		}
		if e.IP == gw {
			d.Name = "gateway"
			d.ConnectionType = domain.ConnectionRouter
		}
		out = append(out, d)
	}
	return out, nil
}

func connectionType(ifname string) string {
	if strings.HasPrefix(ifname, "wl") {
		return domain.ConnectionWiFi
	}
	return domain.ConnectionEthernet
}

// Probe measures throughput from interface counters and latency/loss with
// the prober. Total loss is reported as 100% at the probe timeout.
func (s *Source) Probe(ctx context.Context) (ports.ProbeResult, error) {
	bw, err := s.throughput()
	if err != nil {
		return ports.ProbeResult{}, err
	}
	target := s.cfg.Target
	if target == "" {
		gw, _, ok := s.gateway()
		if !ok {
			return ports.ProbeResult{}, errors.New("no probe target: no default gateway")
		}
		target = gw
	}
	lat, loss, err := measure(ctx, s.prober, target, s.cfg.ProbeCount, s.cfg.ProbeTimeout)
	if err != nil && !errors.Is(err, errAllLost) {
		return ports.ProbeResult{}, err
	}
	return ports.ProbeResult{BandwidthMbps: bw, LatencyMs: lat, PacketLoss: loss}, nil
}

// throughput is the rx+tx rate in Mbps over non-loopback interfaces since
// the previous call; the first call reports 0.
func (s *Source) throughput() (float64, error) {
	f, err := s.open("dev")
	if err != nil {
		return 0, fmt.Errorf("reading interface counters: %w", err)
	}
	counters, err := parseNetDev(f)
	f.Close()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	prev, prevAt := s.lastDev, s.lastRead
	s.lastDev, s.lastRead = counters, now
	if prev == nil {
		return 0, nil
	}
	elapsed := now.Sub(prevAt).Seconds()
	if elapsed <= 0 {
		return 0, nil
	}
	var bytes uint64
	for name, c := range counters {
		if name == "lo" {
			continue
		}
		p, ok := prev[name]
		if !ok || c.RxBytes < p.RxBytes || c.TxBytes < p.TxBytes {
			continue
		}
		bytes += (c.RxBytes - p.RxBytes) + (c.TxBytes - p.TxBytes)
	}
	return float64(bytes) * 8 / elapsed / 1e6, nil
}

// Topology is the host, its interfaces and their neighbours.
func (s *Source) Topology(ctx context.Context) ([]domain.TopologyNode, []domain.TopologyLink, error) {
	ifs, err := s.interfaces()
	if err != nil {
		return nil, nil, fmt.Errorf("listing interfaces: %w", err)
	}
	entries, err := s.neighbours()
	if err != nil {
		return nil, nil, err
	}
	gw, _, _ := s.gateway()

	nodes := []domain.TopologyNode{{ID: "host", Label: s.hostname}}
	var links []domain.TopologyLink
	known := make(map[string]bool, len(ifs))
	for _, i := range ifs {
		id := "if:" + i.Name
		known[i.Name] = true
		nodes = append(nodes, domain.TopologyNode{ID: id, Label: i.Name})
		links = append(links, domain.TopologyLink{SourceID: "host", DestinationID: id, BandwidthMbps: s.linkSpeed(i.Name)})
	}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		id := "ip:" + e.IP
		if !known[e.Interface] || seen[id] {
			continue
		}
		seen[id] = true
		label := e.MAC
		if e.IP == gw {
			label = "gateway"
		}
		nodes = append(nodes, domain.TopologyNode{ID: id, Label: label})
		links = append(links, domain.TopologyLink{SourceID: "if:" + e.Interface, DestinationID: id})
	}
	return nodes, links, nil
}

// linkSpeed reads the negotiated speed in Mbps; 0 when unknown.
func (s *Source) linkSpeed(name string) float64 {
	b, err := os.ReadFile(filepath.Join(s.cfg.SysRoot, "class", "net", name, "speed"))
	if err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// Flows lists established TCP connections and connected UDP sockets.
func (s *Source) Flows(ctx context.Context) ([]domain.FlowEntry, error) {
	var out []domain.FlowEntry
	for _, proto := range []string{"tcp", "udp"} {
		f, err := s.open(proto)
		if err != nil {
			if proto == "tcp" {
				return nil, fmt.Errorf("reading sockets: %w", err)
			}
			continue
		}
		flows, err := parseSockets(f, proto)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing %s sockets: %w", proto, err)
		}
		out = append(out, flows...)
	}
	return out, nil
}

func (s *Source) Close() error {
	return s.prober.Close()
}

var (
	_ ports.MeasurementSource = (*Source)(nil)
	_ ports.TopologySource    = (*Source)(nil)
	_ ports.FlowSource        = (*Source)(nil)
)
