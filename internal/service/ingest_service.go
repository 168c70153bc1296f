package service

import (
	"context"
	"time"

	"gpuwatch/internal/model"
	"gpuwatch/pkg/logger"
	"gpuwatch/pkg/store/memory"
	redisstore "gpuwatch/pkg/store/redis"
)

// IngestService is the ingestion gateway: it validates and normalizes a
// submitted payload, then updates the history store and liveness tracker.
// Ingestion is all-or-nothing per payload; a rejected payload mutates
// nothing.
type IngestService struct {
	store    *memory.HistoryStore
	liveness *memory.LivenessTracker
	mirror   *redisstore.Mirror

	// now is the wall clock used for liveness touches, replaceable in tests.
	now func() time.Time
}

// NewIngestService creates the ingestion gateway over the given stores.
func NewIngestService(store *memory.HistoryStore, liveness *memory.LivenessTracker) *IngestService {
	return &IngestService{
		store:    store,
		liveness: liveness,
		now:      time.Now,
	}
}

// WithMirror attaches an optional Redis mirror that receives each accepted
// snapshot. Returns the service for chaining.
func (s *IngestService) WithMirror(mirror *redisstore.Mirror) *IngestService {
	s.mirror = mirror
	return s
}

// Ingest accepts one decoded (identity-encoded) payload. The transport
// layer is responsible for content-encoding dispatch; by the time a payload
// reaches this method it is plain JSON bytes.
func (s *IngestService) Ingest(ctx context.Context, payload []byte) (*model.Snapshot, error) {
	snap, err := model.DecodeSnapshot(payload)
	if err != nil {
		return nil, err
	}

	s.store.Append(snap.Hostname, snap)
	s.liveness.Touch(snap.Hostname, s.now())

	if s.mirror != nil {
		// Mirror failures never fail the ingest; the in-memory stores are
		// the source of truth and the periodic flush will catch up.
		if err := s.mirror.Publish(ctx, snap); err != nil {
			logger.WarnCtx(ctx, "mirror publish failed for %s: %v", snap.Hostname, err)
		}
	}

	logger.DebugCtx(ctx, "ingested snapshot from %s with %d gpus, retained %d",
		snap.Hostname, len(snap.GPUs), s.store.Count(snap.Hostname))
	return snap, nil
}
