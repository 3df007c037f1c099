package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"

	"github.com/traceway-systems/traceway-edge/collector/internal/model"
	"github.com/traceway-systems/traceway-edge/collector/internal/otlp"
)

const metricsPushPath = "/v1/metrics"

// MetricSink pushes metric batches to an upstream collector's HTTP endpoint
// as binary protobuf.
type MetricSink struct {
	name   string
	url    string
	client *http.Client
}

// NewMetricSink creates a metric sink for the given base URL.
func NewMetricSink(name, baseURL string, timeout time.Duration) *MetricSink {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MetricSink{
		name:   name,
		url:    strings.TrimRight(baseURL, "/") + metricsPushPath,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *MetricSink) Name() string { return s.name }

func (s *MetricSink) Send(ctx context.Context, batch *model.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	body, err := proto.Marshal(otlp.EncodeMetrics(batch))
	if err != nil {
		return fmt.Errorf("marshal metrics request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build metrics request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-protobuf")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push %d metric points to %s: %w", batch.Len(), s.url, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push to %s: unexpected status %d", s.url, resp.StatusCode)
	}
	return nil
}
