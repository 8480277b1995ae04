// Package resilience protects calls to a quota-limited backend: a sliding
// window rate limiter, retry with exponential backoff on quota errors, and a
// short-lived read cache. Each piece is constructed explicitly and holds no
// package-level state.
package resilience

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/metrics"
	"github.com/erazemk/rezervator/internal/model"
)

// Options carries the collaborators shared by the resilience components. Zero
// fields get defaults: the real clock, a no-op logger and no metrics.
type Options struct {
	Clock   Clock
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = RealClock()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

var quotaPatterns = []string{
	"quota exceeded",
	"resource_exhausted",
	"ratelimitexceeded",
	"rate limit",
	"too many requests",
}

// IsQuotaError reports whether err means the backend rejected the call for
// exceeding its request quota. It looks for a 429 status first and then for
// well-known message fragments. An already exhausted *model.RateLimitError is
// not a quota error, so retriers never nest.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var exhausted *model.RateLimitError
	if errors.As(err, &exhausted) {
		return false
	}
	var sc StatusCoder
	if errors.As(err, &sc) && sc.StatusCode() == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range quotaPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
