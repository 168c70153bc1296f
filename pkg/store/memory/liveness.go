package memory

import (
	"errors"
	"sync"
	"time"
)

// ErrUnknownHost is returned when liveness is queried for a host that has
// never been touched. Distinct from ErrNotFound: a host can be known to the
// tracker while a particular query shape still has no data.
var ErrUnknownHost = errors.New("host has never reported")

// LivenessTracker records the last time each host was seen. A host becomes
// known on its first touch and is never forgotten for the life of the
// process.
//
// Touch stores the literal timestamp it is given, last write wins: a delayed
// out-of-order report can move a host's last-seen time backwards. That
// matches the long-observed behavior of the system; adding a monotonic clamp
// here would change liveness classification under reordered delivery.
type LivenessTracker struct {
	mu       sync.RWMutex
	lastSeen map[string]time.Time
}

// NewLivenessTracker creates an empty tracker.
func NewLivenessTracker() *LivenessTracker {
	return &LivenessTracker{
		lastSeen: make(map[string]time.Time),
	}
}

// Touch records now as the host's last-seen time, creating the entry if the
// host is new.
func (t *LivenessTracker) Touch(hostname string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[hostname] = now
}

// LastSeen returns the host's recorded last-seen time.
func (t *LivenessTracker) LastSeen(hostname string) (time.Time, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen, ok := t.lastSeen[hostname]
	if !ok {
		return time.Time{}, ErrUnknownHost
	}
	return seen, nil
}

// Staleness returns now minus the host's last-seen time.
func (t *LivenessTracker) Staleness(hostname string, now time.Time) (time.Duration, error) {
	seen, err := t.LastSeen(hostname)
	if err != nil {
		return 0, err
	}
	return now.Sub(seen), nil
}

// IsLive reports whether the host's staleness is within the threshold.
func (t *LivenessTracker) IsLive(hostname string, now time.Time, threshold time.Duration) (bool, error) {
	staleness, err := t.Staleness(hostname, now)
	if err != nil {
		return false, err
	}
	return staleness <= threshold, nil
}

// All returns a copy of the last-seen map for aggregate views.
func (t *LivenessTracker) All() map[string]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]time.Time, len(t.lastSeen))
	for host, seen := range t.lastSeen {
		out[host] = seen
	}
	return out
}
