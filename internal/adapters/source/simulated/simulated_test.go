package simulated

import (
	"context"
	"testing"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe_HealthyRanges(t *testing.T) {
	src := New(Config{Seed: 42})
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		res, err := src.Probe(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.BandwidthMbps, minBandwidth)
		assert.LessOrEqual(t, res.BandwidthMbps, maxBandwidth)
		assert.GreaterOrEqual(t, res.LatencyMs, minLatency)
		assert.LessOrEqual(t, res.LatencyMs, maxLatency)
		assert.GreaterOrEqual(t, res.PacketLoss, 0.0)
		assert.LessOrEqual(t, res.PacketLoss, maxLoss)
	}
}

func TestProbe_LossBurst(t *testing.T) {
	src := New(Config{Seed: 1, LossBurstProb: 1})
	res, err := src.Probe(context.Background())
	require.NoError(t, err)
	assert.Greater(t, res.PacketLoss, maxLoss)
}

func TestTopology_IsValidRing(t *testing.T) {
	src := New(Config{Seed: 1})
	nodes, links, err := src.Topology(context.Background())
	require.NoError(t, err)

	topo, err := domain.NewTopology(nodes, links)
	require.NoError(t, err)
	assert.Len(t, topo.Nodes(), 3)
	assert.Len(t, topo.Links(), 3)
}

func TestDevices_StableAndNormalizable(t *testing.T) {
	src := New(Config{Seed: 7, Hosts: 3})
	ctx := context.Background()

	first, err := src.EnumerateDevices(ctx)
	require.NoError(t, err)
	second, err := src.EnumerateDevices(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, domain.NormalizeDevices(first), 6)
	for _, d := range first {
		assert.True(t, domain.IsValidMAC(d.MACAddress), d.MACAddress)
	}
}

func TestDevices_IntruderJoins(t *testing.T) {
	src := New(Config{Seed: 7, Hosts: 1, IntruderProb: 1})
	devices, err := src.EnumerateDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 5)
	assert.Equal(t, "unknown", devices[4].Name)
}

func TestFlows_WatchedPort(t *testing.T) {
	src := New(Config{Seed: 3, WatchedProb: 1})
	flows, err := src.Flows(context.Background())
	require.NoError(t, err)
	require.Len(t, flows, 3)
	assert.Equal(t, 23, flows[2].DestinationPort)
}

func TestClose_PathUnsatisfied(t *testing.T) {
	src := New(Config{Seed: 3})
	require.NoError(t, src.Close())
	path, err := src.PathStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PathUnsatisfied, path)
}
