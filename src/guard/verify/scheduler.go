package verify

import (
	"sync"
	"time"

	"github.com/stake-plus/groupguard/src/metrics"
)

// Key identifies one timeout job. The token lets a job detect that it was superseded.
type Key struct {
	GroupID int64
	UserID  int64
	Token   string
}

// Scheduler runs fn for key at the given time. Scheduling a key again replaces only the job
// armed for that same key, so a job for one token never displaces a job for another.
type Scheduler interface {
	Schedule(key Key, at time.Time, fn func())
	// Cancel drops the job armed for key, if any. Cancelled jobs that already started still
	// re-validate by token.
	Cancel(key Key)
	Stop()
}

type timerEntry struct {
	timer *time.Timer
}

// TimerScheduler backs each job with a time.AfterFunc timer.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[Key]*timerEntry
	stopped bool
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[Key]*timerEntry)}
}

func (s *TimerScheduler) Schedule(key Key, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.timers[key]; ok && old.timer.Stop() {
		metrics.TimerReleased()
	}
	entry := &timerEntry{}
	entry.timer = time.AfterFunc(time.Until(at), func() {
		s.mu.Lock()
		if cur, ok := s.timers[key]; ok && cur == entry {
			delete(s.timers, key)
		}
		s.mu.Unlock()
		metrics.TimerReleased()
		fn()
	})
	s.timers[key] = entry
	metrics.TimerArmed()
}

func (s *TimerScheduler) Cancel(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[key]
	if !ok {
		return
	}
	delete(s.timers, key)
	if e.timer.Stop() {
		metrics.TimerReleased()
	}
}

// Pending reports how many timers are armed.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every armed timer. Jobs are re-armed from the store on the next start.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for k, e := range s.timers {
		if e.timer.Stop() {
			metrics.TimerReleased()
		}
		delete(s.timers, k)
	}
}
