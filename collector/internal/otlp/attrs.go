// Package otlp converts between the OTLP wire representation and the
// collector's normalized record model. Both ingestion protocols (gRPC and
// HTTP) decode through here, so protocol choice never changes downstream
// semantics.
package otlp

import (
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
)

// attrsToMap flattens OTLP key-value pairs into the model's attribute map.
// Only scalar values survive; nested lists and maps are not part of the
// record model.
func attrsToMap(kvs []*commonpb.KeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		if kv == nil || kv.Value == nil {
			continue
		}
		switch v := kv.Value.Value.(type) {
		case *commonpb.AnyValue_StringValue:
			out[kv.Key] = v.StringValue
		case *commonpb.AnyValue_BoolValue:
			out[kv.Key] = v.BoolValue
		case *commonpb.AnyValue_IntValue:
			out[kv.Key] = v.IntValue
		case *commonpb.AnyValue_DoubleValue:
			out[kv.Key] = v.DoubleValue
		}
	}
	return out
}

// mapToAttrs is the inverse of attrsToMap, used when encoding batches for
// push sinks.
func mapToAttrs(m map[string]any) []*commonpb.KeyValue {
	if len(m) == 0 {
		return nil
	}
	out := make([]*commonpb.KeyValue, 0, len(m))
	for k, v := range m {
		av := anyValue(v)
		if av == nil {
			continue
		}
		out = append(out, &commonpb.KeyValue{Key: k, Value: av})
	}
	return out
}

func anyValue(v any) *commonpb.AnyValue {
	switch t := v.(type) {
	case string:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: t}}
	case bool:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: t}}
	case int64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: t}}
	case int:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(t)}}
	case float64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: t}}
	default:
		return nil
	}
}

func resourceAttrs(res *resourcepb.Resource) map[string]any {
	if res == nil {
		return nil
	}
	return attrsToMap(res.Attributes)
}

func resourceFromMap(m map[string]any) *resourcepb.Resource {
	return &resourcepb.Resource{Attributes: mapToAttrs(m)}
}
