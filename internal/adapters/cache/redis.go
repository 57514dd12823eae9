// Package cache mirrors the latest snapshot and recent alerts into Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
)

const (
	latestKey  = "nethealth:snapshot:latest"
	alertsKey  = "nethealth:alerts:recent"
	devicesKey = "nethealth:devices"

	// DefaultMaxAlerts bounds the cached alert list.
	DefaultMaxAlerts = 1000
	writeTimeout     = 500 * time.Millisecond
)

// RedisCache is a bus subscriber writing through to Redis.
type RedisCache struct {
	client    redis.Cmdable
	closer    func() error
	ttl       time.Duration
	maxAlerts int64
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	c := newRedisCache(client, ttl)
	c.closer = client.Close
	return c, nil
}

func newRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, maxAlerts: DefaultMaxAlerts}
}

// OnMetrics stores the snapshot as the latest one.
func (r *RedisCache) OnMetrics(snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.client.Set(ctx, latestKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot in Redis: %w", err)
	}
	return nil
}

// OnDevices stores the current device list.
func (r *RedisCache) OnDevices(devices []domain.DeviceRecord) error {
	data, err := json.Marshal(devices)
	if err != nil {
		return fmt.Errorf("failed to marshal devices: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.client.Set(ctx, devicesKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store devices in Redis: %w", err)
	}
	return nil
}

// OnTopology is a no-op; the topology travels inside the latest snapshot.
func (r *RedisCache) OnTopology(domain.TopologyDiff) error { return nil }

// OnAlert pushes the event onto the bounded recent list.
func (r *RedisCache) OnAlert(ev domain.IntrusionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.client.LPush(ctx, alertsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push alert to Redis: %w", err)
	}
	if err := r.client.LTrim(ctx, alertsKey, 0, r.maxAlerts-1).Err(); err != nil {
		return fmt.Errorf("failed to trim alert list: %w", err)
	}
	return nil
}

// LatestSnapshot returns the cached snapshot.
func (r *RedisCache) LatestSnapshot(ctx context.Context) (domain.Snapshot, bool, error) {
	data, err := r.client.Get(ctx, latestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("failed to decode latest snapshot: %w", err)
	}
	return snap, true, nil
}

// RecentAlerts returns up to n cached events, newest first. Undecodable
// entries are skipped.
func (r *RedisCache) RecentAlerts(ctx context.Context, n int64) ([]domain.IntrusionEvent, error) {
	if n <= 0 || n > r.maxAlerts {
		n = r.maxAlerts
	}
	raw, err := r.client.LRange(ctx, alertsKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent alerts: %w", err)
	}
	out := make([]domain.IntrusionEvent, 0, len(raw))
	for _, item := range raw {
		var ev domain.IntrusionEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *RedisCache) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

var (
	_ ports.Subscriber    = (*RedisCache)(nil)
	_ ports.SnapshotCache = (*RedisCache)(nil)
)
