package ports

import (
	"context"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// Storage defines the behavior for history persistence.
type Storage interface {
	// SaveSnapshotsBatch stores the metric samples and devices of several snapshots.
	SaveSnapshotsBatch(ctx context.Context, snapshots []domain.Snapshot) error
	// SaveAlert stores a confirmed intrusion event.
	SaveAlert(ctx context.Context, event domain.IntrusionEvent) error
	// GetSamples returns the samples recorded in [from, to], oldest first.
	GetSamples(ctx context.Context, from, to time.Time) ([]domain.MetricSample, error)
	// GetAlerts returns the most recent events, newest first.
	GetAlerts(ctx context.Context, limit int) ([]domain.IntrusionEvent, error)
	// GetDevices returns every device ever recorded, keyed by identity.
	GetDevices(ctx context.Context) ([]domain.DeviceRecord, error)

	// Close closes the storage connection.
	Close() error
}
