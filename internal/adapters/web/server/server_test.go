package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/adapters/reporting"
	"github.com/lcalzada-xor/nethealth/internal/adapters/source/sourcetest"
	"github.com/lcalzada-xor/nethealth/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/nethealth/internal/adapters/web/server"
	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
	"github.com/lcalzada-xor/nethealth/internal/core/services/monitor"
	reportingService "github.com/lcalzada-xor/nethealth/internal/core/services/reporting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "s3cret"

type fakeToggle struct{ enabled bool }

func (f *fakeToggle) IsEnabled() bool         { return f.enabled }
func (f *fakeToggle) SetEnabled(enabled bool) { f.enabled = enabled }

type fakeCache struct{ snap domain.Snapshot }

func (f fakeCache) LatestSnapshot(ctx context.Context) (domain.Snapshot, bool, error) {
	return f.snap, true, nil
}
func (f fakeCache) RecentAlerts(ctx context.Context, n int64) ([]domain.IntrusionEvent, error) {
	return nil, nil
}

func lossRule() domain.Rule {
	return domain.Rule{
		Name:       "high-loss",
		Kind:       domain.RuleThreshold,
		Metric:     domain.MetricPacketLoss,
		Comparator: domain.CompGreater,
		Value:      5,
		Window:     2,
	}
}

type fixture struct {
	mon    *monitor.Monitor
	src    *sourcetest.Source
	toggle *fakeToggle
	url    string
}

func setup(t *testing.T, mutate func(*server.Options)) *fixture {
	t.Helper()

	src := sourcetest.New()
	src.ProbeResult = ports.ProbeResult{BandwidthMbps: 100, LatencyMs: 20}
	src.Devices = []domain.DeviceRecord{{Name: "Router 1", IPAddress: "192.168.1.2", ConnectionType: domain.ConnectionRouter}}
	src.Nodes = []domain.TopologyNode{{ID: "Switch1"}, {ID: "Switch2"}}
	src.Links = []domain.TopologyLink{{SourceID: "Switch1", DestinationID: "Switch2", BandwidthMbps: 100}}

	mon, err := monitor.New(monitor.Config{Rules: []domain.Rule{lossRule()}, CooldownCycles: 1}, src)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mon.Stop() })

	auth, err := middleware.NewTokenAuth("test", token)
	require.NoError(t, err)

	toggle := &fakeToggle{enabled: true}
	opts := server.Options{
		Auth:        auth,
		Persistence: toggle,
		Reports:     reportingService.NewReportGenerator(mon, nil),
		Exporter:    reporting.NewPDFExporter(),
	}
	if mutate != nil {
		mutate(&opts)
	}

	srv := server.NewServer(":0", mon, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{mon: mon, src: src, toggle: toggle, url: ts.URL}
}

func (f *fixture) cycle(t *testing.T) {
	t.Helper()
	_, err := f.mon.RunCycle(context.Background())
	require.NoError(t, err)
}

func (f *fixture) do(t *testing.T, method, path string, authed bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.url+path, nil)
	require.NoError(t, err)
	if authed {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestServer_PublicProbes(t *testing.T) {
	f := setup(t, nil)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", false).StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/readyz", false).StatusCode)

	f.cycle(t)
	resp := f.do(t, http.MethodGet, "/readyz", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", false).StatusCode)
}

func TestServer_ReadyReportsDegraded(t *testing.T) {
	f := setup(t, nil)
	f.src.Set(func(s *sourcetest.Source) { s.Path = domain.PathUnsatisfied })
	f.cycle(t)

	resp := f.do(t, http.MethodGet, "/readyz", false)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["reason"], "network connection lost")
}

func TestServer_RequiresToken(t *testing.T) {
	f := setup(t, nil)

	for _, path := range []string{"/api/snapshot", "/api/alerts", "/api/config", "/ws"} {
		assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, path, false).StatusCode, path)
	}
}

func TestServer_NoAuthConfigured(t *testing.T) {
	f := setup(t, func(o *server.Options) { o.Auth = nil })
	f.cycle(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/snapshot", false).StatusCode)
}

func TestServer_SnapshotAndHistory(t *testing.T) {
	f := setup(t, nil)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/snapshot", true).StatusCode)

	f.cycle(t)
	f.cycle(t)

	var snap domain.Snapshot
	decode(t, f.do(t, http.MethodGet, "/api/snapshot", true), &snap)
	assert.Equal(t, uint64(2), snap.Version)
	assert.Equal(t, domain.StatusOK, snap.Status)
	assert.Len(t, snap.Topology.Nodes(), 2)

	var history struct {
		Metric domain.MetricKind  `json:"metric"`
		Points []domain.Point     `json:"points"`
		Stats  domain.SeriesStats `json:"stats"`
	}
	decode(t, f.do(t, http.MethodGet, "/api/history/bandwidth", true), &history)
	assert.Equal(t, domain.MetricBandwidth, history.Metric)
	assert.Len(t, history.Points, 2)
	assert.Equal(t, 2, history.Stats.Count)
	assert.InDelta(t, 100, history.Stats.Mean, 1e-9)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/history/jitter", true).StatusCode)

	var stats map[domain.MetricKind]domain.SeriesStats
	decode(t, f.do(t, http.MethodGet, "/api/stats", true), &stats)
	assert.Len(t, stats, len(domain.MetricKinds))

	var devices []domain.DeviceRecord
	decode(t, f.do(t, http.MethodGet, "/api/devices", true), &devices)
	require.Len(t, devices, 1)
	assert.Equal(t, "Router 1", devices[0].Name)

	var topo domain.Topology
	decode(t, f.do(t, http.MethodGet, "/api/topology", true), &topo)
	assert.Len(t, topo.Links(), 1)
}

func TestServer_Alerts(t *testing.T) {
	f := setup(t, nil)
	f.src.QueueLoss(6, 7)
	f.cycle(t)
	f.cycle(t)

	var alerts []domain.IntrusionEvent
	decode(t, f.do(t, http.MethodGet, "/api/alerts", true), &alerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, "high-loss", alerts[0].RuleName)
	assert.InDelta(t, 0.5, alerts[0].Confidence, 1e-9)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/alerts?limit=-1", true).StatusCode)
}

func TestServer_HistoryWithoutStorage(t *testing.T) {
	f := setup(t, nil)

	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/devices?source=history", true).StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/samples", true).StatusCode)
}

func TestServer_CacheFallback(t *testing.T) {
	f := setup(t, func(o *server.Options) {
		o.Cache = fakeCache{snap: domain.Snapshot{Version: 41, Status: domain.StatusOK}}
	})

	resp := f.do(t, http.MethodGet, "/api/snapshot", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cache", resp.Header.Get("X-Nethealth-Source"))
	var snap domain.Snapshot
	decode(t, resp, &snap)
	assert.Equal(t, uint64(41), snap.Version)
}

func TestServer_Config(t *testing.T) {
	f := setup(t, nil)

	var cfg map[string]any
	decode(t, f.do(t, http.MethodGet, "/api/config", true), &cfg)
	assert.EqualValues(t, 1000, cfg["samplingPeriodMs"])
	assert.EqualValues(t, 1, cfg["cooldownCycles"])
	assert.Equal(t, true, cfg["persistenceEnabled"])
	assert.Len(t, cfg["rules"], 1)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/config/persistence?enabled=false", true).StatusCode)
	assert.False(t, f.toggle.enabled)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/config/persistence?enabled=maybe", true).StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/api/config/persistence", true).StatusCode)
}

func TestServer_ExportHistoryCSV(t *testing.T) {
	f := setup(t, nil)
	f.cycle(t)

	resp := f.do(t, http.MethodGet, "/api/export?type=history&format=csv", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "nethealth_history.csv")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Len(t, lines, 1+len(domain.MetricKinds))

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/export?format=xml", true).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/export?type=flows", true).StatusCode)
}

func TestServer_ReportPDFRateLimited(t *testing.T) {
	f := setup(t, func(o *server.Options) { o.ReportLimit = 1 })
	f.cycle(t)

	resp := f.do(t, http.MethodGet, "/api/report?hours=1", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "%PDF-"))

	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodGet, "/api/report", true).StatusCode)
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	mon, err := monitor.New(monitor.Config{}, sourcetest.New())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := server.NewServer(ln.Addr().String(), mon, server.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
