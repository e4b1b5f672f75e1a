package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/NickKasten/posture/internal/config"
	"github.com/NickKasten/posture/internal/domain"
)

// CounterStore is the shared windowed counter behind the limiter. Incr bumps
// the counter for key, arranging for it to expire one window after the first
// hit, and returns the new count plus the time left in the window.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// Limiter applies named sliding-window policies over a shared counter
// store. When the store is unreachable the limiter fails open: the request
// is admitted and the failure logged, trading strictness for availability.
type Limiter struct {
	store  CounterStore
	logger *zap.Logger
}

// NewLimiter wires the limiter.
func NewLimiter(store CounterStore, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.L()
	}
	return &Limiter{store: store, logger: logger}
}

// Check runs one admission decision for the identifier under the policy.
func (l *Limiter) Check(ctx context.Context, policy config.RateLimitPolicy, identifier string) domain.RateLimitDecision {
	now := time.Now()
	if policy.MaxRequests <= 0 {
		return domain.RateLimitDecision{
			Allowed:   true,
			Limit:     policy.MaxRequests,
			Remaining: 0,
			ResetAt:   now,
		}
	}

	key := policy.KeyPrefix + ":" + identifier
	count, windowLeft, err := l.store.Incr(ctx, key, policy.Window)
	if err != nil {
		l.logger.Error("rate limit store unavailable, failing open",
			zap.String("key", key),
			zap.Error(err),
		)
		return domain.RateLimitDecision{
			Allowed:   true,
			Limit:     policy.MaxRequests,
			Remaining: policy.MaxRequests,
			ResetAt:   now.Add(policy.Window),
		}
	}

	if windowLeft <= 0 {
		windowLeft = policy.Window
	}
	remaining := policy.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   count <= int64(policy.MaxRequests),
		Limit:     policy.MaxRequests,
		Remaining: remaining,
		ResetAt:   now.Add(windowLeft),
	}
}
