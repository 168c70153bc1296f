package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Ingest errors surfaced to the submitting agent. None of them mutate any
// store state; a rejected payload leaves the aggregator exactly as it was.
var (
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrMissingHostname   = errors.New("missing hostname")
	ErrDuplicateGPUIndex = errors.New("duplicate gpu index")
)

// Snapshot is one normalized report from one host at one point in time.
// Snapshots are immutable once built; the history store hands out the same
// pointers it was given.
type Snapshot struct {
	Hostname    string             `json:"hostname"`
	QueryTime   float64            `json:"query_time"` // seconds since epoch, as reported by the host
	GPUs        []GPUReading       `json:"gpus"`
	HostMetrics map[string]float64 `json:"host_metrics,omitempty"` // cpu/memory scalars, passed through untouched
}

// GPUReading is the state of one GPU slot within a snapshot. Index is the
// stable identity of the physical device across snapshots even if the
// reported name or ordering changes.
type GPUReading struct {
	Index       int                `json:"index"`
	Name        string             `json:"name"`
	Utilization int                `json:"utilization.gpu"` // 0-100
	MemoryUsed  float64            `json:"memory.used"`
	MemoryTotal float64            `json:"memory.total"`
	Users       map[string]float64 `json:"users"` // occupant -> attributed memory
}

// submitPayload is the wire shape of POST /submit, matching what the
// original reporting agents send.
type submitPayload struct {
	Hostname  string       `json:"hostname"`
	QueryTime float64      `json:"query_time"`
	GPUs      []gpuPayload `json:"gpus"`
}

type gpuPayload struct {
	Index       int          `json:"index"`
	Name        string       `json:"name"`
	Utilization int          `json:"utilization.gpu"`
	MemoryUsed  float64      `json:"memory.used"`
	MemoryTotal float64      `json:"memory.total"`
	Users       userPayloads `json:"users"`
}

// userPayloads accepts both occupant wire shapes:
//
//   - an object mapping user to attributed memory, as agents that fold
//     per-process usage themselves send: {"alice": 4096}
//   - an array of per-process entries, for raw agents:
//     [{"username": "alice", "gpu_memory_usage": 2048}, ...]
//
// The array form is folded into per-user sums, one entry per user.
type userPayloads map[string]float64

type processEntry struct {
	Username       string  `json:"username"`
	GPUMemoryUsage float64 `json:"gpu_memory_usage"`
}

func (u *userPayloads) UnmarshalJSON(data []byte) error {
	// Try the pre-folded object form first.
	var folded map[string]float64
	if err := json.Unmarshal(data, &folded); err == nil {
		*u = folded
		return nil
	}

	var processes []processEntry
	if err := json.Unmarshal(data, &processes); err != nil {
		return fmt.Errorf("users must be an object or a process array: %w", err)
	}

	out := make(map[string]float64, len(processes))
	for _, p := range processes {
		out[p.Username] += p.GPUMemoryUsage
	}
	*u = out
	return nil
}

// snapshotFields are the payload keys consumed by the structured decode;
// every other top-level numeric key is treated as an opaque host metric.
var snapshotFields = map[string]bool{
	"hostname":   true,
	"query_time": true,
	"gpus":       true,
}

// DecodeSnapshot parses and validates a submit payload, returning the
// normalized snapshot. Validation is all-or-nothing: any error means the
// payload produced no snapshot at all.
func DecodeSnapshot(payload []byte) (*Snapshot, error) {
	var raw submitPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.Hostname == "" {
		return nil, ErrMissingHostname
	}

	seen := make(map[int]bool, len(raw.GPUs))
	for _, gpu := range raw.GPUs {
		if seen[gpu.Index] {
			return nil, fmt.Errorf("%w: index %d", ErrDuplicateGPUIndex, gpu.Index)
		}
		seen[gpu.Index] = true
	}

	snap := &Snapshot{
		Hostname:    raw.Hostname,
		QueryTime:   raw.QueryTime,
		GPUs:        make([]GPUReading, len(raw.GPUs)),
		HostMetrics: decodeHostMetrics(payload),
	}
	for i, gpu := range raw.GPUs {
		users := map[string]float64(gpu.Users)
		if users == nil {
			users = map[string]float64{}
		}
		snap.GPUs[i] = GPUReading{
			Index:       gpu.Index,
			Name:        gpu.Name,
			Utilization: gpu.Utilization,
			MemoryUsed:  gpu.MemoryUsed,
			MemoryTotal: gpu.MemoryTotal,
			Users:       users,
		}
	}
	return snap, nil
}

// decodeHostMetrics collects top-level scalar fields that are not part of
// the snapshot shape (cpu_percent, vm_total_M and whatever else the agent
// reports). The payload already parsed once, so errors cannot happen here;
// non-numeric extras are simply skipped.
func decodeHostMetrics(payload []byte) map[string]float64 {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return nil
	}

	var metrics map[string]float64
	for key, value := range top {
		if snapshotFields[key] {
			continue
		}
		var num float64
		if err := json.Unmarshal(value, &num); err != nil {
			continue
		}
		if metrics == nil {
			metrics = make(map[string]float64)
		}
		metrics[key] = num
	}
	return metrics
}
