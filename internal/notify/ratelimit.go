package notify

import (
	"errors"
	"sync"
	"time"
)

var ErrRateLimited = errors.New("notification rate limit exceeded")

// RateLimiter admits or refuses one dispatch for a key.
type RateLimiter interface {
	Allow(key string) error
}

// SlidingWindowLimiter admits at most max calls per key in any window-long span.
// State is process local and resets on restart.
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	now    func() time.Time
	hits   map[string][]time.Time
}

func NewSlidingWindowLimiter(window time.Duration, max int) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		window: window,
		max:    max,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

func (l *SlidingWindowLimiter) Allow(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.max {
		l.hits[key] = recent
		return ErrRateLimited
	}

	l.hits[key] = append(recent, now)
	return nil
}

// Prune drops keys with no hits inside the window.
func (l *SlidingWindowLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for key, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}
