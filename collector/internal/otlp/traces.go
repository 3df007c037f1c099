package otlp

import (
	"encoding/hex"
	"time"

	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

// DecodeTraces normalizes an OTLP trace export request into records.
func DecodeTraces(req *collectortracepb.ExportTraceServiceRequest) []model.Record {
	var records []model.Record
	for _, rs := range req.GetResourceSpans() {
		resource := resourceAttrs(rs.GetResource())
		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				if span == nil {
					continue
				}
				start := time.Unix(0, int64(span.StartTimeUnixNano))
				end := time.Unix(0, int64(span.EndTimeUnixNano))
				rec := model.Record{
					Signal:     model.SignalTraces,
					Timestamp:  start,
					Resource:   resource,
					Attributes: attrsToMap(span.Attributes),
					Span: &model.Span{
						TraceID:      hex.EncodeToString(span.TraceId),
						SpanID:       hex.EncodeToString(span.SpanId),
						ParentSpanID: hex.EncodeToString(span.ParentSpanId),
						Name:         span.Name,
						Start:        start,
						Duration:     end.Sub(start),
						StatusCode:   int32(span.GetStatus().GetCode()),
						StatusText:   span.GetStatus().GetMessage(),
					},
				}
				records = append(records, rec)
			}
		}
	}
	return records
}

// EncodeTraces builds an OTLP trace export request from a batch, for the
// binary RPC push sink. Records sharing a resource are not re-grouped; one
// resource-spans entry per record keeps the encoding predictable.
func EncodeTraces(batch *model.Batch) *collectortracepb.ExportTraceServiceRequest {
	req := &collectortracepb.ExportTraceServiceRequest{}
	for _, rec := range batch.Records {
		if rec.Span == nil {
			continue
		}
		traceID, _ := hex.DecodeString(rec.Span.TraceID)
		spanID, _ := hex.DecodeString(rec.Span.SpanID)
		parentID, _ := hex.DecodeString(rec.Span.ParentSpanID)

		span := &tracepb.Span{
			TraceId:           traceID,
			SpanId:            spanID,
			ParentSpanId:      parentID,
			Name:              rec.Span.Name,
			StartTimeUnixNano: uint64(rec.Span.Start.UnixNano()),
			EndTimeUnixNano:   uint64(rec.Span.Start.Add(rec.Span.Duration).UnixNano()),
			Attributes:        mapToAttrs(rec.Attributes),
			Status: &tracepb.Status{
				Code:    tracepb.Status_StatusCode(rec.Span.StatusCode),
				Message: rec.Span.StatusText,
			},
		}

		req.ResourceSpans = append(req.ResourceSpans, &tracepb.ResourceSpans{
			Resource: resourceFromMap(rec.Resource),
			ScopeSpans: []*tracepb.ScopeSpans{
				{Spans: []*tracepb.Span{span}},
			},
		})
	}
	return req
}
