// Package server wires the gateway's HTTP surface: static assets at the
// root, the API prefix forwarded to the upstream, and operational endpoints.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/traceway-systems/traceway-edge/common/health"
	"github.com/traceway-systems/traceway-edge/common/middleware"
	"github.com/traceway-systems/traceway-edge/gateway/internal/proxy"
)

// NewRouter constructs the gateway handler. apiPrefix is forwarded to the
// upstream byte-for-byte, prefix included.
func NewRouter(forwarder *proxy.Forwarder, staticDir, apiPrefix string, orch *health.Orchestrator) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(apiPrefix, forwarder)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ready := orch == nil || orch.Ready()
		body := map[string]any{"ready": ready}
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
	})

	mux.Handle("/metrics", promhttp.Handler())

	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}

	return middleware.RequestID(mux)
}
