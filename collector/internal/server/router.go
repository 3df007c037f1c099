// Package server wires the collector's HTTP surface: ingestion endpoints,
// health and readiness, and Prometheus metrics.
package server

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/traceway-systems/traceway-edge/collector/internal/ratelimit"
	"github.com/traceway-systems/traceway-edge/collector/internal/receiver"
	"github.com/traceway-systems/traceway-edge/collector/internal/service"
	"github.com/traceway-systems/traceway-edge/common/health"
	"github.com/traceway-systems/traceway-edge/common/middleware"
)

// NewRouter constructs the collector's HTTP handler. The ingestion routes
// sit behind CORS and the rate limiter; operational routes do not.
func NewRouter(h *receiver.HTTPHandler, collector *service.Collector, orch *health.Orchestrator, limiter ratelimit.RateLimiter, allowedOrigins []string, logger *slog.Logger) http.Handler {
	ingest := http.NewServeMux()
	h.Register(ingest)

	cors := middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
	})

	mux := http.NewServeMux()
	mux.Handle("/v1/", cors(rateLimited(limiter, logger)(ingest)))

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady(collector, orch))

	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}

// rateLimited rejects requests over the per-client budget. Limiter errors
// fail open: a broken Redis must not stop ingestion.
func rateLimited(limiter ratelimit.RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				key = r.RemoteAddr
			}

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limit check failed, allowing request",
					slog.String("error", err.Error()),
				)
				allowed = true
			}
			if !allowed {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error":  "rate limit exceeded",
					"status": http.StatusTooManyRequests,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReady reports pipeline accounting and dependency states. It returns
// 503 until every hard dependency is healthy.
func handleReady(collector *service.Collector, orch *health.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := orch == nil || orch.Ready()

		body := map[string]any{
			"ready":     ready,
			"pipelines": collector.Stats(),
			"memory": map[string]int64{
				"inflight_bytes": collector.InFlightBytes(),
			},
		}
		if orch != nil {
			body["dependencies"] = orch.Snapshot()
		}

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(body)
	}
}
