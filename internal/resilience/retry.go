package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/model"
)

// RetryConfig bounds the backoff of a Retrier.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxJitter    time.Duration
}

// MaxAttemptsCeiling is the most attempts a Retrier ever makes.
const MaxAttemptsCeiling = 5

// maxBackoff caps a single wait between attempts.
const maxBackoff = 5 * time.Minute

// DefaultRetryConfig is five attempts starting at one second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: MaxAttemptsCeiling, InitialDelay: time.Second, MaxJitter: 500 * time.Millisecond}
}

// Retrier re-runs a call that failed with a quota error, waiting
// InitialDelay*2^attempt plus random jitter between attempts. Other errors are
// returned immediately.
type Retrier struct {
	cfg  RetryConfig
	opts Options
}

// NewRetrier returns a Retrier. A non-positive MaxAttempts means the default,
// and values above MaxAttemptsCeiling are clamped to it.
func NewRetrier(cfg RetryConfig, opts Options) *Retrier {
	if cfg.MaxAttempts <= 0 || cfg.MaxAttempts > MaxAttemptsCeiling {
		cfg.MaxAttempts = MaxAttemptsCeiling
	}
	return &Retrier{cfg: cfg, opts: opts.withDefaults()}
}

// Do runs op until it succeeds, fails with a non-quota error, or has been
// tried MaxAttempts times. Exhaustion yields a *model.RateLimitError wrapping
// the last quota error.
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error) error {
	var last error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				r.opts.Metrics.Retry("success")
			}
			return nil
		}
		if !IsQuotaError(err) {
			return err
		}
		last = err
		if attempt == r.cfg.MaxAttempts-1 {
			break
		}

		delay := r.Backoff(attempt)
		r.opts.Logger.Warn("backend quota exceeded, retrying",
			zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
		r.opts.Metrics.Retry("retry")
		if err := r.opts.Clock.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("waiting to retry: %w", err)
		}
	}

	r.opts.Metrics.Retry("exhausted")
	r.opts.Logger.Error("backend quota still exceeded, giving up",
		zap.Int("attempts", r.cfg.MaxAttempts), zap.Error(last))
	return &model.RateLimitError{Attempts: r.cfg.MaxAttempts, Err: last}
}

// Backoff returns the wait before retry number attempt+1, at most maxBackoff
// plus jitter.
func (r *Retrier) Backoff(attempt int) time.Duration {
	d := maxBackoff
	if attempt < 32 && r.cfg.InitialDelay <= maxBackoff>>attempt {
		d = r.cfg.InitialDelay << attempt
	}
	if r.cfg.MaxJitter > 0 {
		d += rand.N(r.cfg.MaxJitter)
	}
	return d
}

// Do is Retrier.Do for calls that return a value.
func Do[T any](ctx context.Context, r *Retrier, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
