package timeseries

import (
	"math/rand"
	"testing"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pt(sec int64, v float64) domain.Point {
	return domain.Point{Timestamp: time.Unix(sec, 0), Value: v}
}

func values(points []domain.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

func TestSeries_EvictsOldestFIFO(t *testing.T) {
	s := NewSeries(3)
	for i, v := range []float64{1, 2, 3, 4} {
		require.NoError(t, s.Append(pt(int64(i), v)))
	}

	assert.Equal(t, []float64{2, 3, 4}, values(s.Points()))
	assert.Equal(t, 3, s.Len())

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 4.0, last.Value)
}

func TestSeries_RejectsOutOfOrder(t *testing.T) {
	s := NewSeries(5)
	require.NoError(t, s.Append(pt(10, 1)))
	require.NoError(t, s.Append(pt(10, 2)), "equal timestamps keep the order non-decreasing")

	err := s.Append(pt(9, 3))
	assert.ErrorIs(t, err, domain.ErrOutOfOrder)
	assert.Equal(t, []float64{1, 2}, values(s.Points()))
}

func TestSeries_PointsIsACopy(t *testing.T) {
	s := NewSeries(2)
	require.NoError(t, s.Append(pt(1, 1)))

	got := s.Points()
	got[0].Value = 99
	assert.Equal(t, 1.0, s.Points()[0].Value)
}

func TestSeries_PropertyBoundedAndOrdered(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for capacity := 1; capacity <= 7; capacity++ {
		s := NewSeries(capacity)
		ts := int64(0)
		for i := 0; i < 200; i++ {
			// Mostly forward, occasionally backwards.
			step := int64(r.Intn(4)) - 1
			ts += step
			_ = s.Append(pt(ts, r.Float64()))

			points := s.Points()
			require.LessOrEqual(t, len(points), capacity)
			for j := 1; j < len(points); j++ {
				require.False(t, points[j].Timestamp.Before(points[j-1].Timestamp))
			}
		}
	}
}

func TestStore_AppendSample(t *testing.T) {
	store := NewStore(3)
	for i := 1; i <= 4; i++ {
		sample, err := domain.NewMetricSample(time.Unix(int64(i), 0), float64(i*10), float64(i), float64(i)/10)
		require.NoError(t, err)
		require.NoError(t, store.AppendSample(sample))
	}

	assert.Equal(t, []float64{20, 30, 40}, values(store.Snapshot(domain.MetricBandwidth)))
	assert.Equal(t, []float64{2, 3, 4}, values(store.Snapshot(domain.MetricLatency)))
	assert.Equal(t, []float64{0.2, 0.3, 0.4}, values(store.Snapshot(domain.MetricPacketLoss)))

	old, err := domain.NewMetricSample(time.Unix(1, 0), 1, 1, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, store.AppendSample(old), domain.ErrOutOfOrder)
	assert.Len(t, store.Snapshot(domain.MetricLatency), 3, "rejected sample is not partially stored")
}

func TestStore_DefaultsAndStats(t *testing.T) {
	store := NewStore(0)
	assert.Equal(t, DefaultMaxPoints, store.MaxPoints())

	require.NoError(t, store.Append(domain.MetricLatency, pt(1, 10)))
	require.NoError(t, store.Append(domain.MetricLatency, pt(2, 20)))

	st := store.Stats(domain.MetricLatency)
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 15.0, st.Mean)

	assert.Empty(t, store.Snapshot("jitter"))

	store.Reset()
	assert.Empty(t, store.Snapshot(domain.MetricLatency))
}
