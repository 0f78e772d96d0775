package pipeline

import (
	"sync"
	"time"
)

// LatencySnapshot is a point-in-time view of per-frame decode latency for
// the current session.
type LatencySnapshot struct {
	Count      int
	Avg        time.Duration
	Max        time.Duration
	OverBudget int
	Budget     time.Duration
}

// latencyStats accumulates the wall time of each read+decode step. It is
// written by the capture loop and read from Stop, so it carries its own lock.
type latencyStats struct {
	mu     sync.Mutex
	budget time.Duration
	count  int
	total  time.Duration
	max    time.Duration
	over   int
}

func newLatencyStats(budget time.Duration) *latencyStats {
	return &latencyStats{budget: budget}
}

func (s *latencyStats) record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	s.total += d
	if d > s.max {
		s.max = d
	}
	if d > s.budget {
		s.over++
	}
}

func (s *latencyStats) snapshot() LatencySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := LatencySnapshot{
		Count:      s.count,
		Max:        s.max,
		OverBudget: s.over,
		Budget:     s.budget,
	}
	if s.count > 0 {
		snap.Avg = s.total / time.Duration(s.count)
	}
	return snap
}

func (s *latencyStats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
	s.total = 0
	s.max = 0
	s.over = 0
}
