package jobs

import (
	"context"
	"time"

	"gpuwatch/pkg/logger"
	"gpuwatch/pkg/store/memory"
)

// StaleWatchdog periodically sweeps the liveness tracker and logs hosts
// crossing the disconnect threshold in either direction. Pure observability:
// it never mutates the stores (stale hosts stay on the board, greyed out).
type StaleWatchdog struct {
	liveness  *memory.LivenessTracker
	threshold time.Duration
	interval  time.Duration

	// wasLive remembers each host's last classification so transitions are
	// logged once, not on every sweep.
	wasLive map[string]bool

	now func() time.Time
}

// NewStaleWatchdog creates the watchdog job.
func NewStaleWatchdog(liveness *memory.LivenessTracker, threshold, interval time.Duration) *StaleWatchdog {
	return &StaleWatchdog{
		liveness:  liveness,
		threshold: threshold,
		interval:  interval,
		wasLive:   make(map[string]bool),
		now:       time.Now,
	}
}

func (w *StaleWatchdog) Name() string { return "stale-watchdog" }

func (w *StaleWatchdog) Interval() time.Duration { return w.interval }

// Run sweeps all known hosts once.
func (w *StaleWatchdog) Run(ctx context.Context) error {
	now := w.now()
	for host, seen := range w.liveness.All() {
		live := now.Sub(seen) <= w.threshold
		prev, known := w.wasLive[host]
		w.wasLive[host] = live

		if !known {
			continue
		}
		if prev && !live {
			logger.WarnCtx(ctx, "host %s went stale, last seen %v ago", host, now.Sub(seen).Round(time.Second))
		} else if !prev && live {
			logger.InfoCtx(ctx, "host %s is reporting again", host)
		}
	}
	return nil
}

// Transitions returns the current classification map. Used by tests.
func (w *StaleWatchdog) Transitions() map[string]bool {
	out := make(map[string]bool, len(w.wasLive))
	for host, live := range w.wasLive {
		out[host] = live
	}
	return out
}
