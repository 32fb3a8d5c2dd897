package api

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultTriggerWindow is the per-job cooldown between manual triggers.
	DefaultTriggerWindow = 10 * time.Second
	// limiterGCThreshold is the entry count above which stale entries are
	// collected.
	limiterGCThreshold = 100
)

// TriggerLimiter rate-limits manual job triggers: one trigger per job per
// window. State is in-memory only and resets on restart.
type TriggerLimiter struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

// NewTriggerLimiter creates a limiter with the given cooldown window.
func NewTriggerLimiter(window time.Duration) *TriggerLimiter {
	if window <= 0 {
		window = DefaultTriggerWindow
	}
	return &TriggerLimiter{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow records a trigger attempt for a job. When the job is still in
// cooldown it returns false plus the remaining wait in seconds, rounded to
// one decimal.
func (l *TriggerLimiter) Allow(jobID string) (bool, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, exists := l.last[jobID]; exists {
		elapsed := now.Sub(last)
		if elapsed < l.window {
			remaining := (l.window - elapsed).Seconds()
			return false, math.Round(remaining*10) / 10
		}
	}

	l.last[jobID] = now
	l.gc(now)
	return true, 0
}

// Refund returns the token consumed by the most recent Allow for a job.
// Used when a trigger was admitted but no execution actually started.
func (l *TriggerLimiter) Refund(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.last, jobID)
}

// gc drops entries older than twice the window once the map grows past the
// threshold. Callers hold the mutex.
func (l *TriggerLimiter) gc(now time.Time) {
	if len(l.last) <= limiterGCThreshold {
		return
	}
	for id, t := range l.last {
		if now.Sub(t) > 2*l.window {
			delete(l.last, id)
		}
	}
}
