package ports

import "github.com/lcalzada-xor/nethealth/internal/core/domain"

// Subscriber is the contract consumers (UI, loggers, reporters) implement to
// receive pipeline output. Returned errors are logged and isolated by the bus.
type Subscriber interface {
	OnMetrics(snapshot domain.Snapshot) error
	OnTopology(diff domain.TopologyDiff) error
	OnDevices(devices []domain.DeviceRecord) error
	OnAlert(event domain.IntrusionEvent) error
}
