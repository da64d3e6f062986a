// Package ratelimit implements sliding-window admission control per
// (guild, user) key. State is process-local and non-durable: after a restart
// the window starts empty, which only errs in the user's favor.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/modmail/internal/models"
)

// DefaultRetention is how long a timestamp survives before the periodic
// purge may evict it, independent of any policy window.
const DefaultRetention = 10 * time.Minute

type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	logger  *zap.Logger
	now     func() time.Time
}

func NewLimiter(logger *zap.Logger) *Limiter {
	return &Limiter{
		windows: make(map[string][]time.Time),
		logger:  logger,
		now:     time.Now,
	}
}

func key(guildID, userID string) string {
	return fmt.Sprintf("%s:%s", guildID, userID)
}

// Limited reports whether the user has exhausted the policy window. A call
// that is limited does not consume a slot: the attempt is recorded only when
// admitted, so retries by a limited caller don't starve the window further.
func (l *Limiter) Limited(userID, guildID string, policy models.RateLimitPolicy) bool {
	if !policy.Enabled {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-policy.Window)

	k := key(guildID, userID)
	kept := l.windows[k][:0]
	for _, ts := range l.windows[k] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= policy.MaxMessages {
		l.windows[k] = kept
		return true
	}

	l.windows[k] = append(kept, now)
	return false
}

// PurgeStale drops timestamps older than maxAge and evicts keys whose window
// emptied, bounding memory for inactive users.
func (l *Limiter) PurgeStale(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxAge)
	for k, timestamps := range l.windows {
		kept := timestamps[:0]
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(l.windows, k)
		} else {
			l.windows[k] = kept
		}
	}
}

// Run purges on the given cadence until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.PurgeStale(retention)
		}
	}
}

// TrackedKeys reports how many keys currently hold timestamps.
func (l *Limiter) TrackedKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
