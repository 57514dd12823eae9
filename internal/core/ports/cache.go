package ports

import (
	"context"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// SnapshotCache mirrors the latest pipeline state for other processes.
type SnapshotCache interface {
	// LatestSnapshot returns the cached snapshot; ok is false when none is cached.
	LatestSnapshot(ctx context.Context) (snap domain.Snapshot, ok bool, err error)
	// RecentAlerts returns up to n cached events, newest first.
	RecentAlerts(ctx context.Context, n int64) ([]domain.IntrusionEvent, error)
}
