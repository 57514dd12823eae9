package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/adapters/storage"
	"github.com/lcalzada-xor/nethealth/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func loadConfig(t *testing.T, extra ...string) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	args := append([]string{
		"-source", "simulated",
		"-seed", "7",
		"-addr", "127.0.0.1:0",
		"-grpc", "127.0.0.1:0",
		"-period", "50ms",
	}, extra...)
	cfg, err := config.Load(args)
	require.NoError(t, err)
	return cfg
}

func TestApplication_RunPersistsAndShutsDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "nethealth.db")
	cfg := loadConfig(t, "-db", dbPath, "-token", "s3cret")

	app, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, app.Storage)
	require.NotNil(t, app.PersistenceManager)
	require.NotNil(t, app.GrpcServer)
	assert.Nil(t, app.Cache)
	assert.NotNil(t, app.WebServer.Auth)
	assert.NotNil(t, app.WebServer.ReportHandler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		snap, ok := app.Monitor.Latest()
		return ok && snap.Version >= 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, app.HealthReporter.Status())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// The pending batch is flushed on shutdown.
	store, err := storage.NewSQLiteAdapter(dbPath)
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	samples, err := store.GetSamples(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(samples), 2)

	devices, err := store.GetDevices(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, devices)
}

func TestApplication_WithoutOptionalComponents(t *testing.T) {
	cfg := loadConfig(t, "-db", "", "-grpc", "")

	app, err := New(cfg)
	require.NoError(t, err)
	assert.Nil(t, app.Storage)
	assert.Nil(t, app.PersistenceManager)
	assert.Nil(t, app.GrpcServer)
	assert.Nil(t, app.WebServer.Auth)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, app.Run(ctx))
}

func TestNew_InvalidTokenHash(t *testing.T) {
	cfg := loadConfig(t, "-db", "")
	cfg.APITokenHash = "not-a-bcrypt-hash"

	_, err := New(cfg)
	assert.ErrorContains(t, err, "invalid token hash")
}
