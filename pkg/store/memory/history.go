// Package memory holds the aggregator's process state: per-host snapshot
// history bounded by the retention policy, and last-seen liveness tracking.
// Both stores are plain mutex-guarded maps constructed once in application
// wiring and passed by handle into the ingest and query paths; nothing in
// this package is reachable through package-level state.
package memory

import (
	"errors"
	"sort"
	"sync"

	"gpuwatch/internal/model"
	"gpuwatch/pkg/retention"
)

// ErrNotFound is returned when a host has no retained snapshots.
var ErrNotFound = errors.New("no snapshots for host")

// HistoryStore keeps a bounded, insertion-ordered snapshot sequence per
// host. The retention policy runs after every append, for the appended host
// only. Appending never fails; the policy is the only bound on growth, and
// there is deliberately no bound on the number of distinct hosts.
type HistoryStore struct {
	mu     sync.RWMutex
	policy retention.Policy
	hosts  map[string][]*model.Snapshot
}

// NewHistoryStore creates a history store with the given retention policy.
func NewHistoryStore(policy retention.Policy) *HistoryStore {
	return &HistoryStore{
		policy: policy,
		hosts:  make(map[string][]*model.Snapshot),
	}
}

// Append adds a snapshot to the host's sequence and applies the retention
// policy to that host.
func (s *HistoryStore) Append(hostname string, snap *model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.hosts[hostname], snap)

	timestamps := make([]float64, len(entries))
	for i, e := range entries {
		timestamps[i] = e.QueryTime
	}
	keep := s.policy.Apply(timestamps)

	if len(keep) == len(entries) {
		s.hosts[hostname] = entries
		return
	}
	kept := make([]*model.Snapshot, len(keep))
	for i, idx := range keep {
		kept[i] = entries[idx]
	}
	s.hosts[hostname] = kept
}

// Latest returns the most recently appended snapshot for the host, or
// ErrNotFound if the host has never reported.
func (s *HistoryStore) Latest(hostname string) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.hosts[hostname]
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries[len(entries)-1], nil
}

// History returns the host's retained snapshots with QueryTime >= since, in
// insertion order. An unknown host yields an empty result, not an error.
func (s *HistoryStore) History(hostname string, since float64) []*model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Snapshot
	for _, snap := range s.hosts[hostname] {
		if snap.QueryTime >= since {
			out = append(out, snap)
		}
	}
	return out
}

// Hosts returns the known host names in sorted order.
func (s *HistoryStore) Hosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.hosts))
	for name := range s.hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LatestAll returns a copy of the latest snapshot per host, giving aggregate
// views a consistent point-in-time read without holding the lock while they
// compute.
func (s *HistoryStore) LatestAll() map[string]*model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*model.Snapshot, len(s.hosts))
	for name, entries := range s.hosts {
		if len(entries) > 0 {
			out[name] = entries[len(entries)-1]
		}
	}
	return out
}

// Count returns the number of retained snapshots for the host.
func (s *HistoryStore) Count(hostname string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hosts[hostname])
}
