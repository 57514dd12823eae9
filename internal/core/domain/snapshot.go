package domain

import "time"

// SnapshotStatus tells consumers how much of a snapshot is fresh.
type SnapshotStatus string

const (
	StatusOK        SnapshotStatus = "ok"
	StatusDegraded  SnapshotStatus = "degraded"
	StatusCancelled SnapshotStatus = "cancelled"
)

// PathStatus mirrors the reachability of the network path.
type PathStatus string

const (
	PathSatisfied          PathStatus = "satisfied"
	PathUnsatisfied        PathStatus = "unsatisfied"
	PathRequiresConnection PathStatus = "requires_connection"
)

// Snapshot parts that can carry last-known values.
const (
	PartPath     = "path"
	PartMetrics  = "metrics"
	PartDevices  = "devices"
	PartTopology = "topology"
	PartFlows    = "flows"
)

// Snapshot is the versioned output of one sampling cycle.
// It is built once and never modified; slices are owned by the snapshot and
// must be treated as read-only by every consumer.
type Snapshot struct {
	Version   uint64         `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	Status    SnapshotStatus `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Path      PathStatus     `json:"path"`
	Metrics   MetricSample   `json:"metrics"`
	Devices   []DeviceRecord `json:"devices"`
	Topology  Topology       `json:"topology"`
	Flows     []FlowEntry    `json:"flows,omitempty"`
	Stale     []string       `json:"stale,omitempty"`
}

// IsDegraded reports whether any part carries last-known values.
func (s Snapshot) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsStale reports whether the given part was not refreshed this cycle.
func (s Snapshot) IsStale(part string) bool {
	for _, p := range s.Stale {
		if p == part {
			return true
		}
	}
	return false
}
