package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceway-systems/traceway-edge/collector/internal/config"
	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.DLQ.Backend = "none"
	cfg.Sinks.Traces.Endpoint = ""
	cfg.Sinks.Logs.Endpoint = ""
	cfg.Sinks.Metrics.Endpoint = ""
	return cfg
}

func TestNew_BuildsAPipelinePerSignal(t *testing.T) {
	c, err := New(testConfig(t), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	stats := c.Stats()
	for _, signal := range model.Signals() {
		_, ok := stats[signal]
		assert.True(t, ok, "missing pipeline for %s", signal)
	}
}

func TestAccept_UnknownSignal(t *testing.T) {
	c, err := New(testConfig(t), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	err = c.Accept(context.Background(), model.Signal("profiles"), []model.Record{{}}, 10)
	assert.Error(t, err)
}

func TestAccept_EmptyRecordsAreANoOp(t *testing.T) {
	c, err := New(testConfig(t), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	require.NoError(t, c.Accept(context.Background(), model.SignalLogs, nil, 0))
	assert.Zero(t, c.Stats()[model.SignalLogs].Ingested)
}

// End to end: a log record accepted by the service reaches the configured
// log sink with its promoted labels applied.
func TestCollector_LogRecordReachesSink(t *testing.T) {
	delivered := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var push map[string]any
		require.NoError(t, json.Unmarshal(body, &push))
		delivered <- push
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Sinks.Logs.Endpoint = srv.URL
	cfg.Pipeline.FlushRecords = 1
	cfg.Pipeline.FlushInterval = 10 * time.Millisecond

	c, err := New(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	c.Start()

	rec := model.Record{
		Signal:    model.SignalLogs,
		Timestamp: time.Now(),
		Resource: map[string]any{
			"service.name":     "api",
			"traceway.promote": "service.name",
		},
		Log: &model.Log{Body: "order placed"},
	}
	require.NoError(t, c.Accept(context.Background(), model.SignalLogs, []model.Record{rec}, 64))

	select {
	case push := <-delivered:
		streams := push["streams"].([]any)
		require.Len(t, streams, 1)
		stream := streams[0].(map[string]any)["stream"].(map[string]any)
		assert.Equal(t, "api", stream["service.name"])
	case <-time.After(5 * time.Second):
		t.Fatal("log record never reached the sink")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))

	stats := c.Stats()[model.SignalLogs]
	assert.Equal(t, uint64(1), stats.Ingested)
	assert.Equal(t, uint64(1), stats.Exported)
	assert.Zero(t, c.InFlightBytes())
}
