package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceway-systems/traceway-edge/collector/internal/config"
	"github.com/traceway-systems/traceway-edge/collector/internal/ratelimit"
	"github.com/traceway-systems/traceway-edge/collector/internal/receiver"
	"github.com/traceway-systems/traceway-edge/collector/internal/service"
)

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(ctx context.Context, key string) (bool, error) { return false, nil }
func (denyAllLimiter) Close() error                                        { return nil }

func newTestRouter(t *testing.T, limiter ratelimit.RateLimiter) http.Handler {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.DLQ.Backend = "none"
	cfg.Sinks.Traces.Endpoint = ""
	cfg.Sinks.Logs.Endpoint = ""
	cfg.Sinks.Metrics.Endpoint = ""

	logger := slog.New(slog.DiscardHandler)
	collector, err := service.New(cfg, logger)
	require.NoError(t, err)

	h := receiver.NewHTTPHandler(collector, logger, 0)
	return NewRouter(h, collector, nil, limiter, []string{"*"}, logger)
}

func TestRouter_Healthz(t *testing.T) {
	router := newTestRouter(t, &ratelimit.NoOpRateLimiter{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_ReadyzReportsPipelines(t *testing.T) {
	router := newTestRouter(t, &ratelimit.NoOpRateLimiter{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ready"])

	pipelines := body["pipelines"].(map[string]any)
	for _, signal := range []string{"traces", "logs", "metrics"} {
		_, ok := pipelines[signal]
		assert.True(t, ok, "missing %s in readyz pipelines", signal)
	}
}

func TestRouter_IngestRoutesAreRateLimited(t *testing.T) {
	router := newTestRouter(t, denyAllLimiter{})

	req := httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRouter_OperationalRoutesBypassRateLimit(t *testing.T) {
	router := newTestRouter(t, denyAllLimiter{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
