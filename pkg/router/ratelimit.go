package router

import (
	"sync"
	"time"

	"github.com/driptide/driptide/pkg/models"
)

// Window names used on RateLimited diagnostics.
const (
	WindowHour = "hour"
	WindowDay  = "day"
)

// RateLimiter enforces per-workflow sliding hour/day windows over execution
// start times. Zero limits mean unlimited. In-memory: counts reset on
// restart, which errs on the permissive side.
type RateLimiter struct {
	mu     sync.Mutex
	starts map[string][]time.Time
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{starts: make(map[string][]time.Time)}
}

// Allow checks the workflow's windows and, when permitted, records the start.
// On refusal it reports which window was exhausted and its limit.
func (l *RateLimiter) Allow(workflowID string, limits models.RateLimitSettings, now time.Time) (bool, string, int) {
	if limits.MaxExecutionsPerHour <= 0 && limits.MaxExecutionsPerDay <= 0 {
		return true, "", 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dayAgo := now.Add(-24 * time.Hour)
	hourAgo := now.Add(-time.Hour)

	kept := l.starts[workflowID][:0]
	hourCount := 0

	for _, start := range l.starts[workflowID] {
		if start.Before(dayAgo) {
			continue
		}

		kept = append(kept, start)

		if !start.Before(hourAgo) {
			hourCount++
		}
	}

	l.starts[workflowID] = kept

	if limits.MaxExecutionsPerHour > 0 && hourCount >= limits.MaxExecutionsPerHour {
		return false, WindowHour, limits.MaxExecutionsPerHour
	}

	if limits.MaxExecutionsPerDay > 0 && len(kept) >= limits.MaxExecutionsPerDay {
		return false, WindowDay, limits.MaxExecutionsPerDay
	}

	l.starts[workflowID] = append(kept, now)

	return true, "", 0
}
