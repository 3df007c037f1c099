package otlp

import (
	"time"

	collectormetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"

	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

// DecodeMetrics normalizes an OTLP metrics export request into one record
// per data point. Gauge and sum points are supported; histogram points are
// outside the record model and skipped.
func DecodeMetrics(req *collectormetricspb.ExportMetricsServiceRequest) []model.Record {
	var records []model.Record
	for _, rm := range req.GetResourceMetrics() {
		resource := resourceAttrs(rm.GetResource())
		for _, sm := range rm.GetScopeMetrics() {
			for _, metric := range sm.GetMetrics() {
				if metric == nil {
					continue
				}
				for _, dp := range numberPoints(metric) {
					records = append(records, model.Record{
						Signal:     model.SignalMetrics,
						Timestamp:  time.Unix(0, int64(dp.TimeUnixNano)),
						Resource:   resource,
						Attributes: attrsToMap(dp.Attributes),
						Metric: &model.Metric{
							Name:  metric.Name,
							Value: pointValue(dp),
							Unit:  metric.Unit,
						},
					})
				}
			}
		}
	}
	return records
}

// EncodeMetrics builds an OTLP metrics export request from a batch. Each
// record becomes a gauge with a single data point.
func EncodeMetrics(batch *model.Batch) *collectormetricspb.ExportMetricsServiceRequest {
	req := &collectormetricspb.ExportMetricsServiceRequest{}
	for _, rec := range batch.Records {
		if rec.Metric == nil {
			continue
		}
		point := &metricspb.NumberDataPoint{
			TimeUnixNano: uint64(rec.Timestamp.UnixNano()),
			Attributes:   mapToAttrs(rec.Attributes),
			Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: rec.Metric.Value},
		}
		m := &metricspb.Metric{
			Name: rec.Metric.Name,
			Unit: rec.Metric.Unit,
			Data: &metricspb.Metric_Gauge{
				Gauge: &metricspb.Gauge{DataPoints: []*metricspb.NumberDataPoint{point}},
			},
		}
		req.ResourceMetrics = append(req.ResourceMetrics, &metricspb.ResourceMetrics{
			Resource: resourceFromMap(rec.Resource),
			ScopeMetrics: []*metricspb.ScopeMetrics{
				{Metrics: []*metricspb.Metric{m}},
			},
		})
	}
	return req
}

func numberPoints(metric *metricspb.Metric) []*metricspb.NumberDataPoint {
	switch data := metric.Data.(type) {
	case *metricspb.Metric_Gauge:
		return data.Gauge.GetDataPoints()
	case *metricspb.Metric_Sum:
		return data.Sum.GetDataPoints()
	default:
		return nil
	}
}

func pointValue(dp *metricspb.NumberDataPoint) float64 {
	switch v := dp.Value.(type) {
	case *metricspb.NumberDataPoint_AsDouble:
		return v.AsDouble
	case *metricspb.NumberDataPoint_AsInt:
		return float64(v.AsInt)
	default:
		return 0
	}
}
