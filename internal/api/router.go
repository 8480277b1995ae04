package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/engine"
	"github.com/erazemk/rezervator/internal/metrics"
)

// Config holds what the router needs.
type Config struct {
	Engine *engine.Engine
	Logger *zap.Logger
	// Metrics records request counts; Gatherer serves /metrics. Either may be nil.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// JWTSecret enables bearer tokens for naming the actor.
	JWTSecret string
	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	itemsHandler := &ItemsHandler{Engine: cfg.Engine, Log: cfg.Logger}
	commitmentsHandler := &CommitmentsHandler{Engine: cfg.Engine, Log: cfg.Logger}
	availabilityHandler := &AvailabilityHandler{Engine: cfg.Engine, Log: cfg.Logger}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// Items.
	mux.HandleFunc("GET /api/items", itemsHandler.List)
	mux.HandleFunc("POST /api/items", itemsHandler.Create)
	mux.HandleFunc("GET /api/items/{id}", itemsHandler.Get)
	mux.HandleFunc("PUT /api/items/{id}", itemsHandler.Update)
	mux.HandleFunc("DELETE /api/items/{id}", itemsHandler.Delete)
	mux.HandleFunc("GET /api/items/{id}/history", itemsHandler.GetHistory)
	mux.HandleFunc("GET /api/items/{id}/availability", availabilityHandler.Item)
	mux.HandleFunc("GET /api/items/{id}/availability/period", availabilityHandler.Period)

	// Availability of every item.
	mux.HandleFunc("GET /api/availability", availabilityHandler.All)

	// Commitments.
	mux.HandleFunc("GET /api/commitments", commitmentsHandler.List)
	mux.HandleFunc("POST /api/commitments", commitmentsHandler.Create)
	mux.HandleFunc("GET /api/commitments/{id}", commitmentsHandler.Get)
	mux.HandleFunc("PUT /api/commitments/{id}", commitmentsHandler.Update)
	mux.HandleFunc("DELETE /api/commitments/{id}", commitmentsHandler.Delete)
	mux.HandleFunc("GET /api/commitments/{id}/history", commitmentsHandler.GetHistory)

	var h http.Handler = mux
	h = ActorMiddleware(cfg.JWTSecret)(h)
	// Without configured origins browsers get no CORS headers at all.
	if len(cfg.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", ActorHeader},
		}).Handler(h)
	}
	h = LoggingMiddleware(cfg.Logger, cfg.Metrics)(h)
	return h
}
