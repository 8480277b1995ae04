package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default quota settings, kept below the backend's hard limit of 60 per minute.
const (
	DefaultCalls  = 50
	DefaultPeriod = time.Minute
)

// Limiter allows at most limit calls in any sliding window of length period.
// Wait blocks until a slot is free; it never rejects a caller.
type Limiter struct {
	limit  int
	period time.Duration
	opts   Options

	mu    sync.Mutex
	calls []time.Time
}

// NewLimiter returns a limiter for limit calls per period. Non-positive values
// fall back to DefaultCalls and DefaultPeriod.
func NewLimiter(limit int, period time.Duration, opts Options) *Limiter {
	if limit <= 0 {
		limit = DefaultCalls
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Limiter{limit: limit, period: period, opts: opts.withDefaults()}
}

// Wait blocks until the call can proceed within the quota and records it. It
// returns an error only when ctx ends first.
func (l *Limiter) Wait(ctx context.Context) error {
	var waited time.Duration
	for {
		delay, ok := l.reserve()
		if ok {
			l.opts.Metrics.ObserveLimiterWait(waited)
			return nil
		}

		l.opts.Logger.Debug("rate limit window full, waiting",
			zap.Duration("delay", delay), zap.Int("limit", l.limit), zap.Duration("period", l.period))
		if err := l.opts.Clock.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
		waited += delay
	}
}

// reserve records a call if the window has room. Otherwise it returns how long
// until the oldest call leaves the window.
func (l *Limiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.opts.Clock.Now()
	l.prune(now)
	if len(l.calls) < l.limit {
		l.calls = append(l.calls, now)
		return 0, true
	}
	return l.calls[0].Add(l.period).Sub(now), false
}

func (l *Limiter) prune(now time.Time) {
	i := 0
	for i < len(l.calls) && now.Sub(l.calls[i]) >= l.period {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

// InWindow returns how many calls are currently counted against the quota.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.opts.Clock.Now())
	return len(l.calls)
}
