package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// SQLiteAdapter implements ports.Storage using GORM and SQLite.
type SQLiteAdapter struct {
	db *gorm.DB
}

// SampleModel is one fresh metric reading.
type SampleModel struct {
	ID         uint      `gorm:"primaryKey"`
	Version    uint64    `gorm:"index"`
	Timestamp  time.Time `gorm:"index"`
	Status     string
	Bandwidth  float64
	Latency    float64
	PacketLoss float64
}

// DeviceModel is the last known state of a device, keyed by identity.
type DeviceModel struct {
	Identity       string `gorm:"primaryKey"`
	Name           string
	IPAddress      string `gorm:"index"`
	MACAddress     string
	ConnectionType string
	FirstSeen      time.Time
	LastSeen       time.Time `gorm:"index"`
}

// AlertModel is a confirmed intrusion event.
type AlertModel struct {
	ID              string `gorm:"primaryKey"`
	EntityID        string `gorm:"index"`
	RuleName        string `gorm:"index"`
	SourceIP        string
	DestinationIP   string
	SourcePort      int
	DestinationPort int
	Protocol        string
	Confidence      float64
	Severity        string
	Details         string
	Timestamp       time.Time `gorm:"index"`
}

// NewSQLiteAdapter opens the database, enables tracing and migrates the schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("enabling db tracing: %w", err)
	}
	return newAdapter(db)
}

func newAdapter(db *gorm.DB) (*SQLiteAdapter, error) {
	if err := db.AutoMigrate(&SampleModel{}, &DeviceModel{}, &AlertModel{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &SQLiteAdapter{db: db}, nil
}

// SaveSnapshotsBatch stores fresh metric samples and upserts the devices of
// every snapshot in a single transaction. Stale parts are skipped.
func (a *SQLiteAdapter) SaveSnapshotsBatch(ctx context.Context, snapshots []domain.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	var samples []SampleModel
	devices := make(map[string]DeviceModel)
	for _, s := range snapshots {
		if s.Status == domain.StatusCancelled {
			continue
		}
		if !s.IsStale(domain.PartMetrics) && !s.Metrics.Timestamp.IsZero() {
			samples = append(samples, toSampleModel(s))
		}
		if s.IsStale(domain.PartDevices) {
			continue
		}
		for _, d := range s.Devices {
			m := toDeviceModel(d, s.Timestamp)
			devices[m.Identity] = m
		}
	}

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(samples) > 0 {
			if err := tx.CreateInBatches(samples, 100).Error; err != nil {
				return fmt.Errorf("saving samples: %w", err)
			}
		}
		if len(devices) == 0 {
			return nil
		}
		models := make([]DeviceModel, 0, len(devices))
		for _, m := range devices {
			models = append(models, m)
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "ip_address", "mac_address", "connection_type", "last_seen"}),
		}).CreateInBatches(models, 100).Error
		if err != nil {
			return fmt.Errorf("saving devices: %w", err)
		}
		return nil
	})
}

// SaveAlert stores an intrusion event; saving the same event twice is a no-op.
func (a *SQLiteAdapter) SaveAlert(ctx context.Context, event domain.IntrusionEvent) error {
	m := toAlertModel(event)
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error
}

// GetSamples returns the samples recorded in [from, to], oldest first.
func (a *SQLiteAdapter) GetSamples(ctx context.Context, from, to time.Time) ([]domain.MetricSample, error) {
	var models []SampleModel
	err := a.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", from, to).
		Order("timestamp asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.MetricSample, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out, nil
}

// GetAlerts returns the most recent events, newest first.
func (a *SQLiteAdapter) GetAlerts(ctx context.Context, limit int) ([]domain.IntrusionEvent, error) {
	q := a.db.WithContext(ctx).Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []AlertModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.IntrusionEvent, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out, nil
}

// GetDevices returns every device ever recorded, sorted by IP.
func (a *SQLiteAdapter) GetDevices(ctx context.Context) ([]domain.DeviceRecord, error) {
	var models []DeviceModel
	if err := a.db.WithContext(ctx).Order("ip_address asc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.DeviceRecord, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure interface compliance
var _ ports.Storage = (*SQLiteAdapter)(nil)
