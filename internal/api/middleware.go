package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/audit"
	"github.com/erazemk/rezervator/internal/auth"
	"github.com/erazemk/rezervator/internal/metrics"
)

// ActorHeader names the caller when no bearer token is sent.
const ActorHeader = "X-Actor"

// ActorMiddleware puts the name of the caller into the request context for the
// audit log. With a secret configured, a bearer token must be valid; without a
// token the X-Actor header is used, and failing that the anonymous actor.
func ActorMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get(ActorHeader))

			if header := r.Header.Get("Authorization"); secret != "" && header != "" {
				tokenStr, ok := strings.CutPrefix(header, "Bearer ")
				if !ok {
					jsonError(w, http.StatusUnauthorized, "invalid authorization header")
					return
				}
				claims, err := auth.ValidateToken(secret, tokenStr)
				if err != nil {
					jsonError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				actor = claims.Actor()
			}

			ctx := audit.WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs HTTP requests with method, path, status, and duration
// and counts them in m.
func LoggingMiddleware(log *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			m.HTTPRequest(r.Method, strconv.Itoa(rec.status), elapsed)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.RequestURI()),
				zap.Int("status", rec.status),
				zap.Duration("duration", elapsed.Round(time.Millisecond)),
			)
		})
	}
}
