package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Cowork/internal/domain"
)

// JoinRateLimiter caps join attempts per connection within a sliding window.
type JoinRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ConnID][]time.Time
	limit    int
	interval time.Duration
}

func NewJoinRateLimiter(limit int, interval time.Duration) *JoinRateLimiter {
	return &JoinRateLimiter{
		history:  make(map[domain.ConnID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *JoinRateLimiter) Allow(cid domain.ConnID) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[cid]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[cid] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[cid] = fresh
	return true
}

func (rl *JoinRateLimiter) Forget(cid domain.ConnID) {
	rl.mu.Lock()
	delete(rl.history, cid)
	rl.mu.Unlock()
}
