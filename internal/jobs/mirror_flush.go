package jobs

import (
	"context"
	"time"

	"gpuwatch/pkg/store/memory"
	redisstore "gpuwatch/pkg/store/redis"
)

// MirrorFlush periodically republishes every host's latest snapshot to the
// Redis mirror, refreshing the TTLs. Ingest already mirrors each accepted
// snapshot; the flush covers entries that expired while a host was between
// reports and entries lost to transient Redis failures.
type MirrorFlush struct {
	store    *memory.HistoryStore
	mirror   *redisstore.Mirror
	interval time.Duration
}

// NewMirrorFlush creates the flush job.
func NewMirrorFlush(store *memory.HistoryStore, mirror *redisstore.Mirror, interval time.Duration) *MirrorFlush {
	return &MirrorFlush{store: store, mirror: mirror, interval: interval}
}

func (f *MirrorFlush) Name() string { return "mirror-flush" }

func (f *MirrorFlush) Interval() time.Duration { return f.interval }

// Run mirrors all latest snapshots once.
func (f *MirrorFlush) Run(ctx context.Context) error {
	return f.mirror.PublishAll(ctx, f.store.LatestAll())
}
