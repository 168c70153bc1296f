package redis

import (
	"context"
	"testing"
	"time"

	"gpuwatch/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMirror(t *testing.T) (*Mirror, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mirror := NewMirrorWithClient(client, time.Minute)
	t.Cleanup(func() { _ = mirror.Close() })
	return mirror, mr
}

func TestMirror_PublishAndGet(t *testing.T) {
	mirror, _ := newTestMirror(t)
	ctx := context.Background()

	snap := &model.Snapshot{
		Hostname:  "h1",
		QueryTime: 1234,
		GPUs: []model.GPUReading{
			{Index: 0, Name: "RTX 3090", Utilization: 55, MemoryUsed: 1024, MemoryTotal: 24576,
				Users: map[string]float64{"alice": 1024}},
		},
		HostMetrics: map[string]float64{"cpu_percent": 12.5},
	}

	require.NoError(t, mirror.Publish(ctx, snap))

	got, err := mirror.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestMirror_EntriesExpire(t *testing.T) {
	mirror, mr := newTestMirror(t)
	ctx := context.Background()

	require.NoError(t, mirror.Publish(ctx, &model.Snapshot{Hostname: "h1", QueryTime: 1}))

	mr.FastForward(2 * time.Minute)

	_, err := mirror.Get(ctx, "h1")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestMirror_PublishAllMirrorsEveryHost(t *testing.T) {
	mirror, _ := newTestMirror(t)
	ctx := context.Background()

	latest := map[string]*model.Snapshot{
		"h1": {Hostname: "h1", QueryTime: 1},
		"h2": {Hostname: "h2", QueryTime: 2},
	}
	require.NoError(t, mirror.PublishAll(ctx, latest))

	for name, want := range latest {
		got, err := mirror.Get(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, want.QueryTime, got.QueryTime)
	}
}

func TestMirror_GetUnknownHost(t *testing.T) {
	mirror, _ := newTestMirror(t)

	_, err := mirror.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, redis.Nil)
}
