package dispatch

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces requests-per-second and requests-per-minute caps with
// sliding-window accounting. A zero cap means unlimited on that axis.
type Limiter struct {
	mu     sync.Mutex
	rps    int
	rpm    int
	second []time.Time
	minute []time.Time
}

func NewLimiter(rps, rpm int) *Limiter {
	return &Limiter{rps: rps, rpm: rpm}
}

// Allow records one request at now if both windows have room.
func (l *Limiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.second = prune(l.second, now.Add(-time.Second))
	l.minute = prune(l.minute, now.Add(-time.Minute))
	if l.rps > 0 && len(l.second) >= l.rps {
		return false
	}
	if l.rpm > 0 && len(l.minute) >= l.rpm {
		return false
	}
	if l.rps > 0 {
		l.second = append(l.second, now)
	}
	if l.rpm > 0 {
		l.minute = append(l.minute, now)
	}
	return true
}

// Wait blocks until a request slot is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if l.Allow(time.Now()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
