package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats counts pipeline outcomes. One instance is created at startup and passed to
// every component that records into it.
type Stats struct {
	received        atomic.Int64
	processed       atomic.Int64
	skipped         atomic.Int64
	duplicates      atomic.Int64
	failed          atomic.Int64
	autoRepliesSent atomic.Int64
	aiFailures      atomic.Int64
	sendFailures    atomic.Int64

	mu    sync.RWMutex
	since time.Time
}

type StatsSnapshot struct {
	Received        int64     `json:"received"`
	Processed       int64     `json:"processed"`
	Skipped         int64     `json:"skipped"`
	Duplicates      int64     `json:"duplicates"`
	Failed          int64     `json:"failed"`
	AutoRepliesSent int64     `json:"autoRepliesSent"`
	AIFailures      int64     `json:"aiFailures"`
	SendFailures    int64     `json:"sendFailures"`
	Since           time.Time `json:"since"`
}

func NewStats() *Stats {
	return &Stats{since: time.Now().UTC()}
}

func (s *Stats) IncReceived() { s.received.Add(1) }
func (s *Stats) IncProcessed() { s.processed.Add(1) }
func (s *Stats) IncSkipped() { s.skipped.Add(1) }
func (s *Stats) IncDuplicate() { s.duplicates.Add(1) }
func (s *Stats) IncFailed() { s.failed.Add(1) }
func (s *Stats) IncAutoReplySent() { s.autoRepliesSent.Add(1) }
func (s *Stats) IncAIFailure() { s.aiFailures.Add(1) }
func (s *Stats) IncSendFailure() { s.sendFailures.Add(1) }

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	since := s.since
	s.mu.RUnlock()

	return StatsSnapshot{
		Received:        s.received.Load(),
		Processed:       s.processed.Load(),
		Skipped:         s.skipped.Load(),
		Duplicates:      s.duplicates.Load(),
		Failed:          s.failed.Load(),
		AutoRepliesSent: s.autoRepliesSent.Load(),
		AIFailures:      s.aiFailures.Load(),
		SendFailures:    s.sendFailures.Load(),
		Since:           since,
	}
}

// Reset zeroes every counter and restarts the observation window.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received.Store(0)
	s.processed.Store(0)
	s.skipped.Store(0)
	s.duplicates.Store(0)
	s.failed.Store(0)
	s.autoRepliesSent.Store(0)
	s.aiFailures.Store(0)
	s.sendFailures.Store(0)
	s.since = time.Now().UTC()
}
