package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erazemk/rezervator/internal/metrics"
	"github.com/erazemk/rezervator/internal/model"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 429", statusErr(429), true},
		{"wrapped 429", fmt.Errorf("appending row: %w", statusErr(429)), true},
		{"status 500", statusErr(500), false},
		{"quota message", errors.New("Quota exceeded for quota metric 'Write requests'"), true},
		{"grpc code", errors.New("RESOURCE_EXHAUSTED: try later"), true},
		{"rate limit", errors.New("user rate limit exceeded"), true},
		{"network", errors.New("dial tcp: connection refused"), false},
		{"exhausted", &model.RateLimitError{Attempts: 5, Err: statusErr(429)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuotaError(tt.err))
		})
	}
}

func TestRetrySucceedsAfterTwoQuotaErrors(t *testing.T) {
	clock := NewFakeClock(epoch)
	m := metrics.New(prometheus.NewRegistry())
	r := NewRetrier(RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, Options{
		Clock: clock, Logger: zaptest.NewLogger(t), Metrics: m,
	})

	attempts := 0
	got, err := Do(context.Background(), r, func(context.Context) (string, error) {
		attempts++
		if attempts <= 2 {
			return "", statusErr(429)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetryAttempts.WithLabelValues("retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetryAttempts.WithLabelValues("success")))
}

func TestRetryDoesNotRetryOtherErrors(t *testing.T) {
	clock := NewFakeClock(epoch)
	r := NewRetrier(DefaultRetryConfig(), Options{Clock: clock})
	boom := errors.New("permission denied")

	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, clock.Sleeps())
}

func TestRetryExhaustion(t *testing.T) {
	clock := NewFakeClock(epoch)
	r := NewRetrier(RetryConfig{MaxAttempts: 5, InitialDelay: time.Second, MaxJitter: 250 * time.Millisecond}, Options{Clock: clock})

	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("429 Too Many Requests")
	})

	var rl *model.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 5, rl.Attempts)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, model.RemedyRetryLater, model.RemedyFor(err))

	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 4)
	for i, d := range sleeps {
		base := time.Second << i
		assert.GreaterOrEqual(t, d, base, "attempt %d", i)
		assert.Less(t, d, base+250*time.Millisecond, "attempt %d", i)
	}
}

func TestRetryStopsOnCancellation(t *testing.T) {
	clock := NewFakeClock(epoch)
	r := NewRetrier(DefaultRetryConfig(), Options{Clock: clock})
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := r.Do(ctx, func(context.Context) error {
		attempts++
		cancel()
		return statusErr(429)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryAttemptsAreCapped(t *testing.T) {
	clock := NewFakeClock(epoch)
	r := NewRetrier(RetryConfig{MaxAttempts: 40, InitialDelay: time.Second}, Options{Clock: clock})

	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		return statusErr(429)
	})

	var rl *model.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, MaxAttemptsCeiling, attempts)
	assert.Equal(t, MaxAttemptsCeiling, rl.Attempts)
	for _, d := range clock.Sleeps() {
		assert.Positive(t, d)
	}
}

func TestBackoffNeverOverflows(t *testing.T) {
	r := NewRetrier(RetryConfig{InitialDelay: time.Hour}, Options{})
	for _, attempt := range []int{0, 4, 40, 100} {
		d := r.Backoff(attempt)
		assert.Positive(t, d, "attempt %d", attempt)
		assert.LessOrEqual(t, d, maxBackoff, "attempt %d", attempt)
	}
	assert.Equal(t, 4*time.Second, NewRetrier(RetryConfig{InitialDelay: time.Second}, Options{}).Backoff(2))
}
