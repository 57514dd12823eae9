package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
)

// historyAlertLimit bounds the stored events pulled into one report.
const historyAlertLimit = 500

// StateReader is the in-memory pipeline state a report is built from.
type StateReader interface {
	Latest() (domain.Snapshot, bool)
	Stats(kind domain.MetricKind) domain.SeriesStats
	Alerts(n int) []domain.IntrusionEvent
}

// ReportGenerator builds health reports.
type ReportGenerator struct {
	state       StateReader
	storage     ports.Storage
	riskCalc    *RiskCalculator
	recommender *RecommendationEngine
	now         func() time.Time
}

// NewReportGenerator creates a generator. storage may be nil, in which case
// alerts and devices come from the in-memory state only.
func NewReportGenerator(state StateReader, storage ports.Storage) *ReportGenerator {
	return &ReportGenerator{
		state:       state,
		storage:     storage,
		riskCalc:    NewRiskCalculator(),
		recommender: NewRecommendationEngine(),
		now:         time.Now,
	}
}

// Generate creates a report covering the given range.
func (g *ReportGenerator) Generate(ctx context.Context, period domain.DateRange) (*domain.HealthReport, error) {
	latest, _ := g.state.Latest()

	stats := make(map[domain.MetricKind]domain.SeriesStats, len(domain.MetricKinds))
	for _, k := range domain.MetricKinds {
		stats[k] = g.state.Stats(k)
	}

	alerts, devices, err := g.collect(ctx, latest)
	if err != nil {
		return nil, err
	}
	alerts = filterByDateRange(alerts, period)

	score := g.riskCalc.CalculateHealthScore(latest, alerts)

	return &domain.HealthReport{
		ID:               uuid.New().String(),
		Title:            "Network Health Report",
		GeneratedAt:      g.now(),
		GeneratedBy:      "nethealth",
		Period:           period,
		Latest:           latest,
		Stats:            stats,
		Alerts:           alerts,
		Devices:          devices,
		Score:            score,
		Level:            g.riskCalc.GetHealthLevel(score),
		AlertsBySeverity: g.riskCalc.CountBySeverity(alerts),
		TopRules:         g.riskCalc.CalculateTopRules(alerts, 5),
		Recommendations:  g.recommender.GenerateRecommendations(latest, alerts),
	}, nil
}

func (g *ReportGenerator) collect(ctx context.Context, latest domain.Snapshot) ([]domain.IntrusionEvent, []domain.DeviceRecord, error) {
	if g.storage == nil {
		return g.state.Alerts(0), latest.Devices, nil
	}

	alerts, err := g.storage.GetAlerts(ctx, historyAlertLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch alerts: %w", err)
	}
	devices, err := g.storage.GetDevices(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch devices: %w", err)
	}
	return alerts, devices, nil
}

func filterByDateRange(alerts []domain.IntrusionEvent, period domain.DateRange) []domain.IntrusionEvent {
	out := make([]domain.IntrusionEvent, 0, len(alerts))
	for _, a := range alerts {
		if period.Contains(a.Timestamp) {
			out = append(out, a)
		}
	}
	return out
}
