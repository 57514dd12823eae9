package grpc

import (
	"log"
	"sync"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// MonitorService is the health service name reflecting the pipeline.
const MonitorService = "nethealth.Monitor"

// HealthReporter mirrors pipeline snapshots into the standard gRPC health
// service. The overall ("") status and MonitorService are SERVING while the
// last snapshot is fresh and NOT_SERVING while it is degraded.
// It implements ports.Subscriber.
type HealthReporter struct {
	health *health.Server
	mu     sync.Mutex
	last   healthpb.HealthCheckResponse_ServingStatus
}

// NewHealthReporter starts in NOT_SERVING until the first snapshot arrives.
func NewHealthReporter() *HealthReporter {
	h := &HealthReporter{health: health.NewServer()}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// NewGrpcServer creates a server exposing the health and reflection services.
func NewGrpcServer(reporter *HealthReporter, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, reporter.health)
	reflection.Register(s)
	return s
}

func (h *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if status == h.last {
		return
	}
	if h.last != healthpb.HealthCheckResponse_UNKNOWN {
		log.Printf("[GRPC] Health %s -> %s", h.last, status)
	}
	h.last = status
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(MonitorService, status)
}

// Status returns the current serving status.
func (h *HealthReporter) Status() healthpb.HealthCheckResponse_ServingStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (h *HealthReporter) Shutdown() {
	h.health.Shutdown()
}

func (h *HealthReporter) OnMetrics(snap domain.Snapshot) error {
	if snap.IsDegraded() {
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	} else {
		h.set(healthpb.HealthCheckResponse_SERVING)
	}
	return nil
}

func (h *HealthReporter) OnTopology(domain.TopologyDiff) error  { return nil }
func (h *HealthReporter) OnDevices([]domain.DeviceRecord) error { return nil }
func (h *HealthReporter) OnAlert(domain.IntrusionEvent) error   { return nil }
