// Package redis mirrors each host's latest snapshot into Redis so external
// consumers (alerting scripts, other dashboards) can read board state
// without hitting the aggregator's HTTP API. The mirror is strictly
// write-through: the in-memory stores remain the source of truth and the
// aggregator never reads its own state back from Redis. Keys carry a TTL so
// a dead aggregator leaves no stale board behind.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gpuwatch/internal/model"
	"gpuwatch/pkg/config"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "gpuwatch:latest:"

// DefaultEntryTTL is how long a mirrored snapshot survives without being
// refreshed by a flush.
const DefaultEntryTTL = 5 * time.Minute

// Mirror publishes latest snapshots to Redis.
type Mirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMirror connects to Redis using the mirror configuration and verifies
// the connection with a ping.
func NewMirror(cfg config.MirrorConfig) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Mirror{client: client, ttl: DefaultEntryTTL}, nil
}

// NewMirrorWithClient wraps an existing client. Used by tests.
func NewMirrorWithClient(client *redis.Client, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = DefaultEntryTTL
	}
	return &Mirror{client: client, ttl: ttl}
}

// Publish writes one host's latest snapshot under its key, refreshing the
// TTL.
func (m *Mirror) Publish(ctx context.Context, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for %s: %w", snap.Hostname, err)
	}
	if err := m.client.Set(ctx, keyPrefix+snap.Hostname, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to mirror snapshot for %s: %w", snap.Hostname, err)
	}
	return nil
}

// PublishAll mirrors the latest snapshot of every host. Individual failures
// do not stop the flush; the first error is reported after all hosts were
// attempted.
func (m *Mirror) PublishAll(ctx context.Context, latest map[string]*model.Snapshot) error {
	var firstErr error
	for _, snap := range latest {
		if err := m.Publish(ctx, snap); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Get reads a mirrored snapshot back. Only exercised by tests and external
// tooling; the aggregator itself never calls this.
func (m *Mirror) Get(ctx context.Context, hostname string) (*model.Snapshot, error) {
	data, err := m.client.Get(ctx, keyPrefix+hostname).Bytes()
	if err != nil {
		return nil, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupt mirror entry for %s: %w", hostname, err)
	}
	return &snap, nil
}

// Close closes the underlying connection.
func (m *Mirror) Close() error {
	return m.client.Close()
}
