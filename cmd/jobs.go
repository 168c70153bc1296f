package main

import (
	"time"

	"gpuwatch/internal/jobs"
	"gpuwatch/pkg/logger"
)

func (app *Application) initJobs() error {
	if app.store == nil || app.liveness == nil {
		logger.WarnCtx(app.ctx, "Stores not initialized yet, skipping background task registration")
		return nil
	}

	manager := jobs.NewManager(app.ctx)

	// Watch for hosts going silent. Checking at half the disconnect
	// threshold keeps transition logs within one threshold of reality.
	threshold := app.config.LivenessThreshold()
	manager.Register(jobs.NewStaleWatchdog(app.liveness, threshold, threshold/2))

	// Periodically re-publish every latest snapshot so mirror entries
	// outlive their TTL even when a host stops reporting briefly.
	if app.mirror != nil {
		flushInterval := time.Duration(app.config.Mirror.FlushIntervalSeconds) * time.Second
		manager.Register(jobs.NewMirrorFlush(app.store, app.mirror, flushInterval))
	}

	app.jobsManager = manager
	return nil
}
