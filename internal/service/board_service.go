package service

import (
	"sort"
	"time"

	"gpuwatch/internal/model"
	"gpuwatch/pkg/config"
	"gpuwatch/pkg/store/memory"
)

// BoardService computes the cross-host aggregate views served to observers.
// Every method is a pure read: it takes a consistent copy of the stores'
// current state and mutates nothing.
type BoardService struct {
	store    *memory.HistoryStore
	liveness *memory.LivenessTracker

	livenessThreshold time.Duration
	idleUtilization   int
	idleMemoryRatio   float64
	ignored           map[string]bool
}

// NewBoardService creates the view layer over the given stores with the
// board tuning from configuration.
func NewBoardService(store *memory.HistoryStore, liveness *memory.LivenessTracker, cfg config.BoardConfig) *BoardService {
	ignored := make(map[string]bool, len(cfg.IgnoredOccupants))
	for _, name := range cfg.IgnoredOccupants {
		ignored[name] = true
	}
	return &BoardService{
		store:             store,
		liveness:          liveness,
		livenessThreshold: time.Duration(cfg.LivenessThresholdSeconds) * time.Second,
		idleUtilization:   cfg.IdleUtilizationPercent,
		idleMemoryRatio:   cfg.IdleMemoryRatio,
		ignored:           ignored,
	}
}

// LivenessInfo is the liveness answer for one host.
type LivenessInfo struct {
	LastSeen time.Time `json:"last_seen"`
	IsLive   bool      `json:"is_live"`
}

// Tally counts idle versus busy instances of one GPU model.
type Tally struct {
	Free int `json:"free"`
	Used int `json:"used"`
}

// FinderEntry names a host currently exposing idle instances of a GPU model.
type FinderEntry struct {
	Hostname  string `json:"hostname"`
	IdleCount int    `json:"idle_count"`
}

// LeaderboardEntry is one occupant's distinct-GPU occupancy count.
type LeaderboardEntry struct {
	User  string `json:"user"`
	Count int    `json:"count"`
}

// HostView is one host's row on the rendered board.
type HostView struct {
	Hostname  string          `json:"hostname"`
	Connected bool            `json:"connected"`
	LastSeen  time.Time       `json:"last_seen"`
	Snapshot  *model.Snapshot `json:"snapshot"`
	TopUsers  map[int]string  `json:"top_users"` // gpu index -> most frequent occupant over retained history
}

// BoardView is the full dashboard state.
type BoardView struct {
	GeneratedAt time.Time  `json:"generated_at"`
	Hosts       []HostView `json:"hosts"`
}

// Latest returns the host's latest snapshot.
func (s *BoardService) Latest(hostname string) (*model.Snapshot, error) {
	return s.store.Latest(hostname)
}

// AllLatest returns the latest snapshot for every host.
func (s *BoardService) AllLatest() map[string]*model.Snapshot {
	return s.store.LatestAll()
}

// History returns the host's retained snapshots with QueryTime >= since.
func (s *BoardService) History(hostname string, since float64) []*model.Snapshot {
	return s.store.History(hostname, since)
}

// Liveness classifies one host against the disconnect threshold.
func (s *BoardService) Liveness(hostname string, now time.Time) (LivenessInfo, error) {
	seen, err := s.liveness.LastSeen(hostname)
	if err != nil {
		return LivenessInfo{}, err
	}
	return LivenessInfo{
		LastSeen: seen,
		IsLive:   now.Sub(seen) <= s.livenessThreshold,
	}, nil
}

// IsIdle judges one GPU reading as having no meaningful active use. Two
// independent clauses, either suffices:
//
//  1. after dropping ignored system accounts the occupant set is empty;
//  2. utilization and memory pressure are both under the idle thresholds.
//
// A reading with memory.total == 0 can never be idle via clause 2; clause 1
// still applies.
func (s *BoardService) IsIdle(r model.GPUReading) bool {
	occupied := false
	for user := range r.Users {
		if !s.ignored[user] {
			occupied = true
			break
		}
	}
	if !occupied {
		return true
	}
	if r.Utilization <= s.idleUtilization && r.MemoryTotal > 0 &&
		r.MemoryUsed/r.MemoryTotal < s.idleMemoryRatio {
		return true
	}
	return false
}

// FreeUsedTally counts idle and busy instances per GPU model across all
// hosts' latest snapshots.
func (s *BoardService) FreeUsedTally() map[string]Tally {
	tally := make(map[string]Tally)
	for _, snap := range s.store.LatestAll() {
		for _, gpu := range snap.GPUs {
			t := tally[gpu.Name]
			if s.IsIdle(gpu) {
				t.Free++
			} else {
				t.Used++
			}
			tally[gpu.Name] = t
		}
	}
	return tally
}

// Finder maps each GPU model to the hosts currently exposing idle instances
// of it, most idle instances first (ties by hostname).
func (s *BoardService) Finder() map[string][]FinderEntry {
	idleByModel := make(map[string]map[string]int)
	for hostname, snap := range s.store.LatestAll() {
		for _, gpu := range snap.GPUs {
			if !s.IsIdle(gpu) {
				continue
			}
			if idleByModel[gpu.Name] == nil {
				idleByModel[gpu.Name] = make(map[string]int)
			}
			idleByModel[gpu.Name][hostname]++
		}
	}

	finder := make(map[string][]FinderEntry, len(idleByModel))
	for name, hosts := range idleByModel {
		entries := make([]FinderEntry, 0, len(hosts))
		for hostname, count := range hosts {
			entries = append(entries, FinderEntry{Hostname: hostname, IdleCount: count})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].IdleCount != entries[j].IdleCount {
				return entries[i].IdleCount > entries[j].IdleCount
			}
			return entries[i].Hostname < entries[j].Hostname
		})
		finder[name] = entries
	}
	return finder
}

// Leaderboard ranks occupants by the number of distinct GPUs they currently
// hold across all hosts' latest snapshots. Ignored system accounts are
// excluded; ties order by user name.
func (s *BoardService) Leaderboard() []LeaderboardEntry {
	counts := make(map[string]int)
	for _, snap := range s.store.LatestAll() {
		for _, gpu := range snap.GPUs {
			for user := range gpu.Users {
				if !s.ignored[user] {
					counts[user]++
				}
			}
		}
	}

	board := make([]LeaderboardEntry, 0, len(counts))
	for user, count := range counts {
		board = append(board, LeaderboardEntry{User: user, Count: count})
	}
	sort.Slice(board, func(i, j int) bool {
		if board[i].Count != board[j].Count {
			return board[i].Count > board[j].Count
		}
		return board[i].User < board[j].User
	})
	return board
}

// TopUsers returns, per GPU index, the occupant appearing in the most
// retained snapshots of the host. Ties break toward the occupant seen first
// in history order, matching how the board has always displayed the
// past-week top user.
func (s *BoardService) TopUsers(hostname string) map[int]string {
	type score struct {
		count     int
		firstSeen int
	}
	perGPU := make(map[int]map[string]*score)
	order := 0

	for _, snap := range s.store.History(hostname, 0) {
		for _, gpu := range snap.GPUs {
			scores := perGPU[gpu.Index]
			if scores == nil {
				scores = make(map[string]*score)
				perGPU[gpu.Index] = scores
			}
			// Map iteration order is random; walk users sorted so the
			// first-seen rank is deterministic within one snapshot.
			users := make([]string, 0, len(gpu.Users))
			for user := range gpu.Users {
				users = append(users, user)
			}
			sort.Strings(users)
			for _, user := range users {
				if sc, ok := scores[user]; ok {
					sc.count++
				} else {
					scores[user] = &score{count: 1, firstSeen: order}
					order++
				}
			}
		}
	}

	top := make(map[int]string, len(perGPU))
	for index, scores := range perGPU {
		var bestUser string
		var best *score
		for user, sc := range scores {
			if best == nil || sc.count > best.count ||
				(sc.count == best.count && sc.firstSeen < best.firstSeen) {
				bestUser, best = user, sc
			}
		}
		if best != nil {
			top[index] = bestUser
		}
	}
	return top
}

// Board assembles the full dashboard view: every host's latest snapshot,
// its liveness classification, and the per-GPU historical top user, sorted
// by hostname.
func (s *BoardService) Board(now time.Time) BoardView {
	latest := s.store.LatestAll()
	lastSeen := s.liveness.All()

	names := make([]string, 0, len(latest))
	for name := range latest {
		names = append(names, name)
	}
	sort.Strings(names)

	view := BoardView{GeneratedAt: now, Hosts: make([]HostView, 0, len(names))}
	for _, name := range names {
		seen := lastSeen[name]
		view.Hosts = append(view.Hosts, HostView{
			Hostname:  name,
			Connected: now.Sub(seen) <= s.livenessThreshold,
			LastSeen:  seen,
			Snapshot:  latest[name],
			TopUsers:  s.TopUsers(name),
		})
	}
	return view
}
