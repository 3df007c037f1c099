package otlp_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	collectorlogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	collectormetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/traceway-systems/traceway-edge/collector/internal/model"
	"github.com/traceway-systems/traceway-edge/collector/internal/otlp"
)

func strAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

func TestDecodeTraces(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(250 * time.Millisecond)

	req := &collectortracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{strAttr("service.name", "flask-backend")},
				},
				ScopeSpans: []*tracepb.ScopeSpans{
					{
						Spans: []*tracepb.Span{
							{
								TraceId:           []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
								SpanId:            []byte{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11},
								Name:              "GET /tasks",
								StartTimeUnixNano: uint64(start.UnixNano()),
								EndTimeUnixNano:   uint64(end.UnixNano()),
								Attributes:        []*commonpb.KeyValue{strAttr("http.method", "GET")},
								Status:            &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
							},
						},
					},
				},
			},
		},
	}

	records := otlp.DecodeTraces(req)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, model.SignalTraces, rec.Signal)
	assert.Equal(t, "flask-backend", rec.Resource["service.name"])
	assert.Equal(t, "GET", rec.Attributes["http.method"])

	require.NotNil(t, rec.Span)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", rec.Span.TraceID)
	assert.Equal(t, "0a0b0c0d0e0f1011", rec.Span.SpanID)
	assert.Equal(t, "GET /tasks", rec.Span.Name)
	assert.Equal(t, 250*time.Millisecond, rec.Span.Duration)
}

func TestDecodeLogs_FallsBackToObservedTime(t *testing.T) {
	observed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	req := &collectorlogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{
			{
				ScopeLogs: []*logspb.ScopeLogs{
					{
						LogRecords: []*logspb.LogRecord{
							{
								ObservedTimeUnixNano: uint64(observed.UnixNano()),
								SeverityNumber:       logspb.SeverityNumber_SEVERITY_NUMBER_ERROR,
								SeverityText:         "ERROR",
								Body:                 &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "task not found"}},
							},
						},
					},
				},
			},
		},
	}

	records := otlp.DecodeLogs(req)
	require.Len(t, records, 1)
	rec := records[0]
	require.NotNil(t, rec.Log)
	assert.Equal(t, "task not found", rec.Log.Body)
	assert.Equal(t, "ERROR", rec.Log.SeverityText)
	assert.True(t, rec.Timestamp.Equal(observed))
}

func TestDecodeMetrics_GaugeAndSumPoints(t *testing.T) {
	req := &collectormetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{
			{
				ScopeMetrics: []*metricspb.ScopeMetrics{
					{
						Metrics: []*metricspb.Metric{
							{
								Name: "http_request_duration_seconds",
								Unit: "s",
								Data: &metricspb.Metric_Gauge{
									Gauge: &metricspb.Gauge{
										DataPoints: []*metricspb.NumberDataPoint{
											{Value: &metricspb.NumberDataPoint_AsDouble{AsDouble: 0.42}},
										},
									},
								},
							},
							{
								Name: "http_requests_total",
								Data: &metricspb.Metric_Sum{
									Sum: &metricspb.Sum{
										DataPoints: []*metricspb.NumberDataPoint{
											{Value: &metricspb.NumberDataPoint_AsInt{AsInt: 7}},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}

	records := otlp.DecodeMetrics(req)
	require.Len(t, records, 2)
	assert.Equal(t, 0.42, records[0].Metric.Value)
	assert.Equal(t, "s", records[0].Metric.Unit)
	assert.Equal(t, float64(7), records[1].Metric.Value)
}

func TestEncodeTraces_RoundTripsCoreFields(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	batch := model.NewBatch(model.SignalTraces, []model.Record{
		{
			Signal:   model.SignalTraces,
			Resource: map[string]any{"service.name": "flask-backend"},
			Span: &model.Span{
				TraceID:  "0102030405060708090a0b0c0d0e0f10",
				SpanID:   "0a0b0c0d0e0f1011",
				Name:     "POST /tasks",
				Start:    start,
				Duration: 100 * time.Millisecond,
			},
		},
	}, 128)

	req := otlp.EncodeTraces(batch)
	decoded := otlp.DecodeTraces(req)
	require.Len(t, decoded, 1)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", decoded[0].Span.TraceID)
	assert.Equal(t, "POST /tasks", decoded[0].Span.Name)
	assert.Equal(t, 100*time.Millisecond, decoded[0].Span.Duration)
	assert.Equal(t, "flask-backend", decoded[0].Resource["service.name"])
}
