package pipeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceway-systems/traceway-edge/collector/internal/model"
	"github.com/traceway-systems/traceway-edge/collector/internal/pipeline"
)

func TestResourceEnrich_AddsWithoutOverwriting(t *testing.T) {
	stage := pipeline.NewResourceEnrichStage(map[string]any{
		"service.instance.id": "collector-1",
		"service.name":        "injected",
	})

	batch := model.NewBatch(model.SignalTraces, []model.Record{
		{
			Signal:   model.SignalTraces,
			Resource: map[string]any{"service.name": "flask-backend"},
			Span:     &model.Span{TraceID: "abc", SpanID: "def", Name: "GET /tasks"},
		},
	}, 64)

	out, outcome, err := stage.Process(batch)
	require.NoError(t, err)
	require.Equal(t, pipeline.KindContinue, outcome.Kind)

	res := out.Records[0].Resource
	assert.Equal(t, "collector-1", res["service.instance.id"], "missing attribute added")
	assert.Equal(t, "flask-backend", res["service.name"], "existing attribute never overwritten")
}

func TestLabelPromote_CopiesNamedAttributes(t *testing.T) {
	stage := pipeline.NewLabelPromoteStage()

	batch := model.NewBatch(model.SignalLogs, []model.Record{
		{
			Signal: model.SignalLogs,
			Resource: map[string]any{
				pipeline.PromoteListAttribute: "service.name, level",
				"service.name":                "flask-backend",
			},
			Attributes: map[string]any{"level": "error"},
			Log:        &model.Log{Severity: 17, Body: "boom"},
		},
	}, 64)

	out, outcome, err := stage.Process(batch)
	require.NoError(t, err)
	require.Equal(t, pipeline.KindContinue, outcome.Kind)

	labels := out.Records[0].Labels
	require.NotNil(t, labels)
	assert.Equal(t, "flask-backend", labels["service.name"], "promoted from resource")
	assert.Equal(t, "error", labels["level"], "promoted from record attributes")
}

func TestLabelPromote_MissingAttributeIsANoOp(t *testing.T) {
	stage := pipeline.NewLabelPromoteStage()

	batch := model.NewBatch(model.SignalLogs, []model.Record{
		{
			Signal: model.SignalLogs,
			Resource: map[string]any{
				pipeline.PromoteListAttribute: "no.such.attribute",
			},
			Log: &model.Log{Severity: 9, Body: "fine"},
		},
	}, 32)

	out, outcome, err := stage.Process(batch)
	require.NoError(t, err, "a miss is counted, never an error")
	require.Equal(t, pipeline.KindContinue, outcome.Kind)
	assert.Nil(t, out.Records[0].Labels, "batch passes through unchanged")
}

func TestLabelPromote_NoPromoteListPassesThrough(t *testing.T) {
	stage := pipeline.NewLabelPromoteStage()

	batch := model.NewBatch(model.SignalLogs, []model.Record{
		{Signal: model.SignalLogs, Log: &model.Log{Body: "plain"}},
	}, 16)

	out, outcome, err := stage.Process(batch)
	require.NoError(t, err)
	require.Equal(t, pipeline.KindContinue, outcome.Kind)
	assert.Nil(t, out.Records[0].Labels)
}

func TestBatchStage_SizeThreshold(t *testing.T) {
	stage := pipeline.NewBatchStage(model.SignalLogs, 3, time.Hour)

	out, _, err := stage.Process(logBatch(2, 2))
	require.NoError(t, err)
	assert.Nil(t, out, "below threshold, absorbed")

	out, _, err = stage.Process(logBatch(2, 2))
	require.NoError(t, err)
	require.NotNil(t, out, "threshold reached")
	assert.Equal(t, 4, out.Len())
	assert.Equal(t, int64(4), out.Bytes)

	assert.Nil(t, stage.Flush(), "accumulator reset after flush")
}

func TestBatchStage_TimeThreshold(t *testing.T) {
	stage := pipeline.NewBatchStage(model.SignalLogs, 1000, 50*time.Millisecond)

	_, _, err := stage.Process(logBatch(2, 2))
	require.NoError(t, err)

	assert.Nil(t, stage.FlushStale(time.Now()), "not stale yet")

	stale := time.Now().Add(time.Second)
	out := stage.FlushStale(stale)
	require.NotNil(t, out, "stale accumulator flushed")
	assert.Equal(t, 2, out.Len())
}

func TestBatchStage_FlushEmptyReturnsNil(t *testing.T) {
	stage := pipeline.NewBatchStage(model.SignalLogs, 10, time.Second)
	assert.Nil(t, stage.Flush())
	assert.Nil(t, stage.FlushStale(time.Now()))
}
