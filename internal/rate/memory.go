package rate

import (
	"sync"
	"time"
)

type window struct {
	count   int
	startAt time.Time
}

// Limiter is a fixed-window in-memory rate limiter keyed by caller-chosen
// strings (route + client IP). Old windows are garbage collected
// opportunistically during Allow.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]window
	now     func() time.Time
	lastGC  time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{windows: map[string]window{}, now: time.Now, lastGC: time.Now().UTC()}
}

func (l *Limiter) Allow(key string, limit int, span time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now().UTC()
	if now.Sub(l.lastGC) > time.Minute {
		for k, w := range l.windows {
			if now.Sub(w.startAt) > 3*span {
				delete(l.windows, k)
			}
		}
		l.lastGC = now
	}
	w, ok := l.windows[key]
	if !ok || now.Sub(w.startAt) >= span {
		l.windows[key] = window{count: 1, startAt: now}
		return true
	}
	if w.count >= limit {
		return false
	}
	w.count++
	l.windows[key] = w
	return true
}
