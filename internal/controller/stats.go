package controller

import "sync/atomic"

// Stats is a per-process counter set exposed on the status surface,
// modeled on the original implementation's Stats.h: simple running totals,
// no histogram or percentile tracking.
type Stats struct {
	requests   atomic.Int64
	timeouts   atomic.Int64
	recoveries atomic.Int64
}

// NewStats returns a zeroed Stats.
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) IncRequests()   { s.requests.Add(1) }
func (s *Stats) IncTimeouts()   { s.timeouts.Add(1) }
func (s *Stats) IncRecoveries() { s.recoveries.Add(1) }

// Snapshot is a point-in-time copy of the counters, safe to serialize.
type Snapshot struct {
	Requests   int64 `json:"requests"`
	Timeouts   int64 `json:"timeouts"`
	Recoveries int64 `json:"recoveries"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Requests:   s.requests.Load(),
		Timeouts:   s.timeouts.Load(),
		Recoveries: s.recoveries.Load(),
	}
}
