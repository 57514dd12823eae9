package ports

import (
	"context"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// MeasurementSource is the platform capability the Sampler pulls from.
// Implementations own their error semantics; the Sampler degrades on any error.
type MeasurementSource interface {
	// PathStatus reports whether the network path is usable.
	PathStatus(ctx context.Context) (domain.PathStatus, error)
	// EnumerateDevices lists the devices currently visible on the local network.
	EnumerateDevices(ctx context.Context) ([]domain.DeviceRecord, error)
	// Probe measures bandwidth (Mbps), latency (ms) and packet loss (%).
	Probe(ctx context.Context) (ProbeResult, error)
	// Close releases the underlying resources (sockets, monitors).
	Close() error
}

// ProbeResult is the raw output of a bandwidth/latency/loss probe.
type ProbeResult struct {
	BandwidthMbps float64
	LatencyMs     float64
	PacketLoss    float64
}

// TopologySource is implemented by sources that can report the node/link graph.
type TopologySource interface {
	Topology(ctx context.Context) ([]domain.TopologyNode, []domain.TopologyLink, error)
}

// FlowSource is implemented by sources that can report active connections.
type FlowSource interface {
	Flows(ctx context.Context) ([]domain.FlowEntry, error)
}
