package otlp

import (
	"time"

	collectorlogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"

	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

// DecodeLogs normalizes an OTLP logs export request into records.
func DecodeLogs(req *collectorlogspb.ExportLogsServiceRequest) []model.Record {
	var records []model.Record
	for _, rl := range req.GetResourceLogs() {
		resource := resourceAttrs(rl.GetResource())
		for _, sl := range rl.GetScopeLogs() {
			for _, lr := range sl.GetLogRecords() {
				if lr == nil {
					continue
				}
				ts := lr.TimeUnixNano
				if ts == 0 {
					ts = lr.ObservedTimeUnixNano
				}
				records = append(records, model.Record{
					Signal:     model.SignalLogs,
					Timestamp:  time.Unix(0, int64(ts)),
					Resource:   resource,
					Attributes: attrsToMap(lr.Attributes),
					Log: &model.Log{
						Severity:     int32(lr.SeverityNumber),
						SeverityText: lr.SeverityText,
						Body:         lr.GetBody().GetStringValue(),
					},
				})
			}
		}
	}
	return records
}

// EncodeLogs builds an OTLP logs export request from a batch.
func EncodeLogs(batch *model.Batch) *collectorlogspb.ExportLogsServiceRequest {
	req := &collectorlogspb.ExportLogsServiceRequest{}
	for _, rec := range batch.Records {
		if rec.Log == nil {
			continue
		}
		lr := &logspb.LogRecord{
			TimeUnixNano:   uint64(rec.Timestamp.UnixNano()),
			SeverityNumber: logspb.SeverityNumber(rec.Log.Severity),
			SeverityText:   rec.Log.SeverityText,
			Body:           anyValue(rec.Log.Body),
			Attributes:     mapToAttrs(rec.Attributes),
		}
		req.ResourceLogs = append(req.ResourceLogs, &logspb.ResourceLogs{
			Resource: resourceFromMap(rec.Resource),
			ScopeLogs: []*logspb.ScopeLogs{
				{LogRecords: []*logspb.LogRecord{lr}},
			},
		})
	}
	return req
}
