package dashboard

import (
	"sync"
	"time"

	"github.com/zulandar/dripline/internal/metrics"
)

// Status holds the latest report per job and fans new reports out to SSE
// subscribers. Safe for concurrent use.
type Status struct {
	mu        sync.RWMutex
	startedAt time.Time
	last      map[string]metrics.Report
	next      map[string]time.Time
	subs      map[chan metrics.Report]struct{}
}

// NewStatus creates an empty Status.
func NewStatus(startedAt time.Time) *Status {
	return &Status{
		startedAt: startedAt,
		last:      make(map[string]metrics.Report),
		next:      make(map[string]time.Time),
		subs:      make(map[chan metrics.Report]struct{}),
	}
}

// Record stores rep as the latest for its job and notifies subscribers.
// Slow subscribers miss the event rather than block the caller.
func (s *Status) Record(rep metrics.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[rep.Job] = rep
	for ch := range s.subs {
		select {
		case ch <- rep:
		default:
		}
	}
}

// SetNext records the next scheduled run of a job.
func (s *Status) SetNext(job string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[job] = at
}

// Last returns the latest report for a job.
func (s *Status) Last(job string) (metrics.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rep, ok := s.last[job]
	return rep, ok
}

// Snapshot returns copies of all latest reports and next-run times.
func (s *Status) Snapshot() (map[string]metrics.Report, map[string]time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last := make(map[string]metrics.Report, len(s.last))
	for k, v := range s.last {
		last[k] = v
	}
	next := make(map[string]time.Time, len(s.next))
	for k, v := range s.next {
		next[k] = v
	}
	return last, next
}

// Uptime is the time since the Status was created.
func (s *Status) Uptime(now time.Time) time.Duration {
	return now.Sub(s.startedAt)
}

// Subscribe returns a channel receiving each recorded report and a function
// that unsubscribes and closes it.
func (s *Status) Subscribe() (<-chan metrics.Report, func()) {
	ch := make(chan metrics.Report, 8)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}
