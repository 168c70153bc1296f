// Package retention implements the history-bounding policy applied to each
// host's snapshot sequence: a sliding time window anchored on the host's own
// newest snapshot, followed by count-triggered decimation. Both steps are
// pure functions over timestamps and counts so they can be tested without a
// store behind them.
package retention

// Policy bounds one host's retained history.
type Policy struct {
	// Window is the sliding retention window in seconds, anchored on the
	// host's newest query_time rather than wall-clock now. A host with a
	// stalled clock or a backfilled batch still prunes relative to its own
	// last known time.
	Window float64

	// CapacityLimit is the retained count at which decimation becomes
	// eligible.
	CapacityLimit int

	// DecimationFactor is the stride of the decimation: when it fires,
	// only every DecimationFactor-th entry (starting at index 0) is kept.
	DecimationFactor int
}

// WindowKeep returns the indices, in order, of entries that survive the
// sliding window. The cutoff is max(timestamps) - window; entries strictly
// older are dropped. Insertion order is preserved. An empty input yields nil.
func WindowKeep(timestamps []float64, window float64) []int {
	if len(timestamps) == 0 {
		return nil
	}
	newest := timestamps[0]
	for _, ts := range timestamps[1:] {
		if ts > newest {
			newest = ts
		}
	}
	cutoff := newest - window

	keep := make([]int, 0, len(timestamps))
	for i, ts := range timestamps {
		if ts >= cutoff {
			keep = append(keep, i)
		}
	}
	return keep
}

// ShouldDecimate reports whether the decimation step fires for the given
// retained count. The trigger is deliberately coarse: the count must have
// reached the capacity limit AND be an exact multiple of the factor. In
// between multiples the history keeps growing untouched, producing visible
// steps in the effective sampling rate. Do not smooth this out; downstream
// history aggregates assume this exact firing pattern.
func ShouldDecimate(count, capacityLimit, factor int) bool {
	if capacityLimit <= 0 || factor <= 1 {
		return false
	}
	return count >= capacityLimit && count%factor == 0
}

// DecimationKeep returns the indices kept by one decimation pass over a
// sequence of the given length: every factor-th entry starting at index 0.
func DecimationKeep(length, factor int) []int {
	if length <= 0 || factor <= 1 {
		return nil
	}
	keep := make([]int, 0, (length+factor-1)/factor)
	for i := 0; i < length; i += factor {
		keep = append(keep, i)
	}
	return keep
}

// Apply runs the full policy over a host's timestamps and returns the
// indices of surviving entries, in insertion order.
func (p Policy) Apply(timestamps []float64) []int {
	keep := WindowKeep(timestamps, p.Window)
	if !ShouldDecimate(len(keep), p.CapacityLimit, p.DecimationFactor) {
		return keep
	}
	thin := DecimationKeep(len(keep), p.DecimationFactor)
	out := make([]int, len(thin))
	for i, j := range thin {
		out[i] = keep[j]
	}
	return out
}
