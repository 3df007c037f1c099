// Package seeder generates synthetic OTLP payloads for exercising a running
// collector without instrumenting a real application.
package seeder

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	collectorlogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	collectormetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// Options configures generated payloads.
type Options struct {
	// Service is the service.name resource attribute.
	Service string

	// Count is the number of records per request.
	Count int

	// PromoteLabels, for logs, sets the promotion list so the collector
	// turns these resource attributes into indexed stream labels.
	PromoteLabels []string
}

func (o Options) resource(extra map[string]string) *resourcepb.Resource {
	attrs := []*commonpb.KeyValue{
		strAttr("service.name", o.Service),
		strAttr("host.name", gofakeit.DomainName()),
	}
	for k, v := range extra {
		attrs = append(attrs, strAttr(k, v))
	}
	return &resourcepb.Resource{Attributes: attrs}
}

func strAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

func randomID(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}

// Traces builds one export request with Count fake HTTP server spans.
func Traces(opts Options) *collectortracepb.ExportTraceServiceRequest {
	spans := make([]*tracepb.Span, opts.Count)
	for i := range spans {
		start := time.Now().Add(-time.Duration(rand.Intn(5000)) * time.Millisecond)
		end := start.Add(time.Duration(1+rand.Intn(400)) * time.Millisecond)
		spans[i] = &tracepb.Span{
			TraceId:           randomID(16),
			SpanId:            randomID(8),
			Name:              fmt.Sprintf("%s %s", gofakeit.HTTPMethod(), "/"+gofakeit.Word()),
			Kind:              tracepb.Span_SPAN_KIND_SERVER,
			StartTimeUnixNano: uint64(start.UnixNano()),
			EndTimeUnixNano:   uint64(end.UnixNano()),
			Attributes: []*commonpb.KeyValue{
				strAttr("http.method", gofakeit.HTTPMethod()),
				strAttr("http.client_ip", gofakeit.IPv4Address()),
			},
			Status: &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
		}
	}

	return &collectortracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{
			{
				Resource:   opts.resource(nil),
				ScopeSpans: []*tracepb.ScopeSpans{{Spans: spans}},
			},
		},
	}
}

// Logs builds one export request with Count fake log records. When
// PromoteLabels is set, the promotion list resource attribute is added so
// the collector indexes those attributes as stream labels.
func Logs(opts Options) *collectorlogspb.ExportLogsServiceRequest {
	records := make([]*logspb.LogRecord, opts.Count)
	for i := range records {
		severity := logspb.SeverityNumber_SEVERITY_NUMBER_INFO
		text := "INFO"
		if rand.Intn(10) == 0 {
			severity = logspb.SeverityNumber_SEVERITY_NUMBER_ERROR
			text = "ERROR"
		}
		records[i] = &logspb.LogRecord{
			TimeUnixNano:   uint64(time.Now().UnixNano()),
			SeverityNumber: severity,
			SeverityText:   text,
			Body: &commonpb.AnyValue{
				Value: &commonpb.AnyValue_StringValue{StringValue: gofakeit.HackerPhrase()},
			},
			Attributes: []*commonpb.KeyValue{
				strAttr("user.id", gofakeit.UUID()),
			},
		}
	}

	extra := map[string]string{"deployment.environment": "dev"}
	if len(opts.PromoteLabels) > 0 {
		list := ""
		for i, name := range opts.PromoteLabels {
			if i > 0 {
				list += ","
			}
			list += name
		}
		extra["traceway.promote"] = list
	}

	return &collectorlogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{
			{
				Resource:  opts.resource(extra),
				ScopeLogs: []*logspb.ScopeLogs{{LogRecords: records}},
			},
		},
	}
}

// Metrics builds one export request with Count fake gauge points.
func Metrics(opts Options) *collectormetricspb.ExportMetricsServiceRequest {
	ms := make([]*metricspb.Metric, opts.Count)
	for i := range ms {
		ms[i] = &metricspb.Metric{
			Name: "http_request_duration_seconds",
			Unit: "s",
			Data: &metricspb.Metric_Gauge{
				Gauge: &metricspb.Gauge{
					DataPoints: []*metricspb.NumberDataPoint{
						{
							TimeUnixNano: uint64(time.Now().UnixNano()),
							Value: &metricspb.NumberDataPoint_AsDouble{
								AsDouble: rand.Float64(),
							},
						},
					},
				},
			},
		}
	}

	return &collectormetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{
			{
				Resource:     opts.resource(nil),
				ScopeMetrics: []*metricspb.ScopeMetrics{{Metrics: ms}},
			},
		},
	}
}
