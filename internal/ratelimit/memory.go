package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is used when no Redis is configured. Counters are per process.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]window
	limit   int
	period  time.Duration
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.period)) {
		l.sweep(now)
		w = window{start: now}
	}
	w.count++
	l.windows[key] = w

	if w.count <= l.limit {
		return true, 0, nil
	}
	return false, w.start.Add(l.period).Sub(now), nil
}

// sweep drops expired windows. Callers hold mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.start.Add(l.period)) {
			delete(l.windows, k)
		}
	}
}
