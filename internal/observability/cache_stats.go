package observability

import "sync/atomic"

// CacheStats holds fetch cache counters. The zero value is ready to use and
// safe for concurrent updates.
type CacheStats struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Fetches   atomic.Int64
	Failures  atomic.Int64
	Joined    atomic.Int64
	Evictions atomic.Int64
}

// CacheSnapshot is a point-in-time copy of CacheStats.
type CacheSnapshot struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Fetches   int64   `json:"fetches"`
	Failures  int64   `json:"failures"`
	Joined    int64   `json:"joined"`
	Evictions int64   `json:"evictions"`
	HitRatio  float64 `json:"hit_ratio"`
}

// Snapshot returns the current counter values.
func (s *CacheStats) Snapshot() CacheSnapshot {
	snap := CacheSnapshot{
		Hits:      s.Hits.Load(),
		Misses:    s.Misses.Load(),
		Fetches:   s.Fetches.Load(),
		Failures:  s.Failures.Load(),
		Joined:    s.Joined.Load(),
		Evictions: s.Evictions.Load(),
	}
	if total := snap.Hits + snap.Misses; total > 0 {
		snap.HitRatio = float64(snap.Hits) / float64(total)
	}
	return snap
}
