package reporting

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *domain.HealthReport {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	alerts := make([]domain.IntrusionEvent, 0, 40)
	for i := 0; i < 40; i++ {
		alerts = append(alerts, domain.NewIntrusionEvent(
			fmt.Sprintf("device:00:11:22:33:44:%02x", i), "unknown-device", 0.8, "not in allow list", now))
	}

	return &domain.HealthReport{
		ID:          "0f1e2d3c-aaaa-bbbb-cccc-000000000000",
		Title:       "Network Health Report",
		GeneratedAt: now,
		GeneratedBy: "nethealth",
		Period:      domain.DateRange{Start: now.Add(-24 * time.Hour)},
		Latest: domain.Snapshot{
			Version:   12,
			Timestamp: now,
			Status:    domain.StatusDegraded,
			Reason:    "source unavailable: probe timeout",
			Path:      domain.PathSatisfied,
			Metrics:   domain.MetricSample{Timestamp: now, Bandwidth: 88.2, Latency: 140, PacketLoss: 12},
		},
		Stats: map[domain.MetricKind]domain.SeriesStats{
			domain.MetricBandwidth:  {Count: 12, Mean: 95, StdDev: 10, Min: 60, Max: 140},
			domain.MetricLatency:    {Count: 12, Mean: 40, StdDev: 25, Min: 12, Max: 140},
			domain.MetricPacketLoss: {Count: 12, Mean: 2, StdDev: 3, Min: 0, Max: 12},
		},
		Alerts: alerts,
		Devices: []domain.DeviceRecord{
			{Name: "Switch 1", IPAddress: "192.168.1.1", MACAddress: "00:11:22:33:44:55", ConnectionType: "switch"},
			{Name: "Router 1", IPAddress: "192.168.1.2", MACAddress: "00:11:22:33:44:56", ConnectionType: "router"},
		},
		Score: 4.2,
		Level: "Degraded",
		AlertsBySeverity: map[domain.AlertSeverity]int{
			domain.SeverityHigh: 40,
		},
		TopRules: []domain.RuleActivity{
			{Rank: 1, RuleName: "unknown-device", Events: 40, Entities: 40, MaxSeverity: domain.SeverityHigh},
		},
		Recommendations: []domain.Recommendation{
			{Priority: "high", Title: "Investigate unknown devices", Description: "40 devices joined.", Actions: []string{"Check vendors"}},
		},
	}
}

func TestPDFExporterExportHealthReport(t *testing.T) {
	exporter := NewPDFExporter()

	pdfBytes, err := exporter.ExportHealthReport(sampleReport())
	require.NoError(t, err)

	assert.Greater(t, len(pdfBytes), 1000, "PDF should be reasonably sized")
	assert.True(t, bytes.HasPrefix(pdfBytes, []byte("%PDF-")), "output should be a PDF document")
}

func TestPDFExporterEmptyReport(t *testing.T) {
	exporter := NewPDFExporter()

	pdfBytes, err := exporter.ExportHealthReport(&domain.HealthReport{Title: "Empty", GeneratedBy: "test"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdfBytes, []byte("%PDF-")))
}

func TestPDFExporterNilReport(t *testing.T) {
	_, err := NewPDFExporter().ExportHealthReport(nil)
	assert.Error(t, err)
}

func TestScoreColor(t *testing.T) {
	e := NewPDFExporter()

	r, g, _ := e.getScoreColor(9)
	assert.Equal(t, 52, r)
	assert.Equal(t, 199, g)

	r, _, _ = e.getScoreColor(1)
	assert.Equal(t, 220, r)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
