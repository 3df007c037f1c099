package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/traceway-systems/traceway-edge/collector/internal/metrics"
	"github.com/traceway-systems/traceway-edge/collector/internal/model"
	"github.com/traceway-systems/traceway-edge/common/messaging/nats"
)

const (
	// StreamName is the JetStream stream holding dead-lettered batches.
	StreamName = "TRACEWAY_DLQ"

	subjectPrefix = "traceway.dlq."
)

// StreamSubjects captures every DLQ subject.
var StreamSubjects = []string{subjectPrefix + ">"}

// JetStreamQueue publishes dead-lettered batches to NATS JetStream, giving
// every collector replica a shared, durable DLQ.
type JetStreamQueue struct {
	js      *nats.JetStreamClient
	logger  *slog.Logger
	written atomic.Uint64
}

// NewJetStreamQueue ensures the DLQ stream exists and returns a queue
// publishing into it.
func NewJetStreamQueue(ctx context.Context, js *nats.JetStreamClient, logger *slog.Logger) (*JetStreamQueue, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream client is nil")
	}
	if _, err := js.CreateOrUpdateStream(ctx, nats.DefaultStreamConfig(StreamName, StreamSubjects)); err != nil {
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}
	return &JetStreamQueue{
		js:     js,
		logger: logger,
	}, nil
}

// Write publishes the batch under traceway.dlq.<reason>. Publish failures are
// logged and dropped; the batch is already lost to the export path.
func (q *JetStreamQueue) Write(ctx context.Context, batch *model.Batch, reason string, cause error) {
	if q == nil || batch.Len() == 0 {
		return
	}

	data, err := json.Marshal(newEntry(batch, reason, cause))
	if err != nil {
		q.logger.Error("failed to marshal dlq entry", slog.String("error", err.Error()))
		return
	}

	if _, err := q.js.PublishSync(ctx, subjectPrefix+reason, data); err != nil {
		q.logger.Error("failed to publish dlq entry",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return
	}

	q.written.Add(1)
	metrics.DLQWritten.WithLabelValues(reason).Inc()
	q.logger.Warn("batch dead lettered",
		slog.String("signal", string(batch.Signal)),
		slog.String("reason", reason),
		slog.Int("records", batch.Len()),
	)
}

// Written reports how many entries this instance has published.
func (q *JetStreamQueue) Written() uint64 {
	return q.written.Load()
}
