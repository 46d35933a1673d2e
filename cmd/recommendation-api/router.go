// Package main provides the API router setup.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/cmd/recommendation-api/handlers"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/cmd/recommendation-api/middleware"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
)

// RouterDeps holds what the router needs from the application.
type RouterDeps struct {
	Logger         *observability.Logger
	Service        handlers.Recommender
	Metrics        *observability.Metrics
	Ready          func(ctx context.Context) error
	DefaultK       int
	RequestTimeout time.Duration
	ServiceName    string
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(deps RouterDeps) http.Handler {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}
	if deps.ServiceName == "" {
		deps.ServiceName = "recommendation-engine"
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Trace)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{"status": "healthy", "service": deps.ServiceName})
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ready(ctx); err != nil {
				deps.Logger.WithContext(r.Context()).Warn().Err(err).Msg("Readiness check failed")
				writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
				return
			}
		}
		writeStatus(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	recommendationHandler := handlers.NewRecommendationHandler(deps.Logger, deps.Service, deps.DefaultK)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(deps.RequestTimeout))

		r.Get("/products/{productId}/recommendations", recommendationHandler.Recommend)
		r.Post("/cache/invalidate", recommendationHandler.Invalidate)
	})

	return r
}

func writeStatus(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
