package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetrics_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		InitMetrics()
		InitMetrics()
	})

	err := prometheus.DefaultRegisterer.Register(SamplesTotal)
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}

func TestAlertsTotal_Counts(t *testing.T) {
	before := testutil.ToFloat64(AlertsTotal.WithLabelValues("telemetry-test"))
	AlertsTotal.WithLabelValues("telemetry-test").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AlertsTotal.WithLabelValues("telemetry-test")))
}

func TestInitTracer_WritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer(&buf, "test")
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "cycle")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"cycle"`)
}
