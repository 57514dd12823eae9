package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeState struct {
	latest domain.Snapshot
	ok     bool
	alerts []domain.IntrusionEvent
}

func (f *fakeState) Latest() (domain.Snapshot, bool) { return f.latest, f.ok }
func (f *fakeState) Stats(kind domain.MetricKind) domain.SeriesStats {
	return domain.SeriesStats{Count: 3, Mean: 10}
}
func (f *fakeState) Alerts(n int) []domain.IntrusionEvent { return f.alerts }

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SaveSnapshotsBatch(ctx context.Context, snapshots []domain.Snapshot) error {
	return m.Called(ctx, snapshots).Error(0)
}
func (m *MockStorage) SaveAlert(ctx context.Context, event domain.IntrusionEvent) error {
	return m.Called(ctx, event).Error(0)
}
func (m *MockStorage) GetSamples(ctx context.Context, from, to time.Time) ([]domain.MetricSample, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]domain.MetricSample), args.Error(1)
}
func (m *MockStorage) GetAlerts(ctx context.Context, limit int) ([]domain.IntrusionEvent, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.IntrusionEvent), args.Error(1)
}
func (m *MockStorage) GetDevices(ctx context.Context) ([]domain.DeviceRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.DeviceRecord), args.Error(1)
}
func (m *MockStorage) Close() error { return m.Called().Error(0) }

func healthySnapshot() domain.Snapshot {
	return domain.Snapshot{
		Version: 4,
		Status:  domain.StatusOK,
		Metrics: domain.MetricSample{Timestamp: t0, Bandwidth: 100, Latency: 20, PacketLoss: 0},
		Devices: []domain.DeviceRecord{{Name: "Router 1", IPAddress: "192.168.1.2"}},
	}
}

func event(entity, rule string, confidence float64, at time.Time) domain.IntrusionEvent {
	return domain.NewIntrusionEvent(entity, rule, confidence, "", at)
}

func TestCalculateHealthScore(t *testing.T) {
	rc := NewRiskCalculator()

	tests := []struct {
		name   string
		snap   domain.Snapshot
		alerts []domain.IntrusionEvent
		want   float64
	}{
		{"no snapshot", domain.Snapshot{}, nil, 0},
		{"healthy", healthySnapshot(), nil, 10},
		{"loss and latency", func() domain.Snapshot {
			s := healthySnapshot()
			s.Metrics.PacketLoss = 30
			s.Metrics.Latency = 300
			return s
		}(), nil, 5},
		{"degraded", func() domain.Snapshot {
			s := healthySnapshot()
			s.Status = domain.StatusDegraded
			return s
		}(), nil, 8},
		{"events", healthySnapshot(), []domain.IntrusionEvent{
			event("metric:packet_loss", "loss", 0.95, t0),
			event("device:aa", "unknown", 0.75, t0),
		}, 8.5},
		{"floor", func() domain.Snapshot {
			s := healthySnapshot()
			s.Metrics.PacketLoss = 100
			s.Status = domain.StatusDegraded
			return s
		}(), nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, rc.CalculateHealthScore(tt.snap, tt.alerts), 1e-9)
		})
	}
}

func TestGetHealthLevel(t *testing.T) {
	rc := NewRiskCalculator()
	assert.Equal(t, "Healthy", rc.GetHealthLevel(9))
	assert.Equal(t, "Fair", rc.GetHealthLevel(6))
	assert.Equal(t, "Degraded", rc.GetHealthLevel(4.5))
	assert.Equal(t, "Critical", rc.GetHealthLevel(1))
}

func TestCalculateTopRules(t *testing.T) {
	rc := NewRiskCalculator()
	alerts := []domain.IntrusionEvent{
		event("metric:packet_loss", "loss", 0.5, t0),
		event("metric:packet_loss", "loss", 0.6, t0),
		event("device:aa", "unknown", 0.95, t0),
		event("device:bb", "unknown", 0.5, t0),
		event("flow:x", "telnet", 0.95, t0),
	}

	top := rc.CalculateTopRules(alerts, 2)
	require.Len(t, top, 2)

	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, "unknown", top[0].RuleName, "ties on count break on severity")
	assert.Equal(t, 2, top[0].Events)
	assert.Equal(t, 2, top[0].Entities)
	assert.Equal(t, domain.SeverityCritical, top[0].MaxSeverity)

	assert.Equal(t, "loss", top[1].RuleName)
	assert.Equal(t, 1, top[1].Entities)
}

func TestGenerateRecommendations(t *testing.T) {
	re := NewRecommendationEngine()

	t.Run("quiet network", func(t *testing.T) {
		recs := re.GenerateRecommendations(healthySnapshot(), nil)
		require.Len(t, recs, 1)
		assert.Equal(t, "low", recs[0].Priority)
	})

	t.Run("ordered by urgency", func(t *testing.T) {
		snap := healthySnapshot()
		snap.Status = domain.StatusDegraded
		snap.Reason = "network connection lost"

		recs := re.GenerateRecommendations(snap, []domain.IntrusionEvent{
			event("metric:latency", "lat", 0.5, t0),
			event("flow:10.0.0.1->10.0.0.2:23/tcp", "telnet", 0.9, t0),
			event("device:aa", "unknown", 0.5, t0),
			event("device:bb", "unknown", 0.5, t0),
		})

		require.Len(t, recs, 4)
		assert.Contains(t, recs[0].Description, "network connection lost")
		assert.Equal(t, "Close watched service ports", recs[1].Title)
		assert.Contains(t, recs[2].Description, "2 devices")
		assert.Equal(t, "medium", recs[3].Priority)
		for _, r := range recs {
			assert.NotEmpty(t, r.Actions)
		}
	})
}

func TestReportGenerator_InMemory(t *testing.T) {
	state := &fakeState{
		latest: healthySnapshot(),
		ok:     true,
		alerts: []domain.IntrusionEvent{
			event("metric:packet_loss", "loss", 0.5, t0.Add(-time.Hour)),
			event("metric:packet_loss", "loss", 0.5, t0.Add(-48*time.Hour)),
		},
	}
	g := NewReportGenerator(state, nil)
	g.now = func() time.Time { return t0 }

	report, err := g.Generate(context.Background(), domain.DateRange{Start: t0.Add(-24 * time.Hour)})
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, t0, report.GeneratedAt)
	assert.Len(t, report.Alerts, 1, "events outside the period are dropped")
	assert.Len(t, report.Devices, 1)
	assert.Len(t, report.Stats, len(domain.MetricKinds))
	assert.Equal(t, 1, report.AlertsBySeverity[domain.SeverityMedium])
	assert.InDelta(t, 9.75, report.Score, 1e-9)
	assert.Equal(t, "Healthy", report.Level)
	require.Len(t, report.TopRules, 1)
}

func TestReportGenerator_Storage(t *testing.T) {
	store := new(MockStorage)
	store.On("GetAlerts", mock.Anything, historyAlertLimit).Return([]domain.IntrusionEvent{
		event("device:aa", "unknown", 0.9, t0),
	}, nil)
	store.On("GetDevices", mock.Anything).Return([]domain.DeviceRecord{
		{Name: "a", IPAddress: "10.0.0.1"}, {Name: "b", IPAddress: "10.0.0.2"},
	}, nil)

	g := NewReportGenerator(&fakeState{latest: healthySnapshot(), ok: true}, store)
	report, err := g.Generate(context.Background(), domain.DateRange{})
	require.NoError(t, err)

	assert.Len(t, report.Alerts, 1)
	assert.Len(t, report.Devices, 2)
	store.AssertExpectations(t)
}

func TestReportGenerator_StorageError(t *testing.T) {
	store := new(MockStorage)
	store.On("GetAlerts", mock.Anything, historyAlertLimit).Return([]domain.IntrusionEvent(nil), errors.New("disk gone"))

	g := NewReportGenerator(&fakeState{}, store)
	_, err := g.Generate(context.Background(), domain.DateRange{})
	assert.ErrorContains(t, err, "disk gone")
}
