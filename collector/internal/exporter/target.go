package exporter

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/traceway-systems/traceway-edge/collector/internal/metrics"
	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

// target is one sink plus its bounded queue and dedicated sender worker.
// Network I/O happens only on the worker goroutine.
type target struct {
	sink   Sink
	cfg    TargetConfig
	dlq    DeadLetter
	logger *slog.Logger

	queue chan *model.Batch
	done  chan struct{}
}

func newTarget(sink Sink, cfg TargetConfig, dlq DeadLetter, logger *slog.Logger) *target {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &target{
		sink:   sink,
		cfg:    cfg,
		dlq:    dlq,
		logger: logger.With(slog.String("sink", sink.Name())),
		queue:  make(chan *model.Batch, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// enqueue adds the batch without ever blocking the pipeline worker. A full
// queue sheds its oldest batch first.
func (t *target) enqueue(batch *model.Batch) {
	for {
		select {
		case t.queue <- batch:
			metrics.SinkQueueDepth.WithLabelValues(t.sink.Name()).Set(float64(len(t.queue)))
			return
		default:
		}

		select {
		case oldest := <-t.queue:
			metrics.SinkQueueDropped.WithLabelValues(t.sink.Name()).Inc()
			t.deadLetter(oldest, "queue_overflow", nil)
			t.logger.Warn("sink queue full, dropped oldest batch",
				slog.Int("records", oldest.Len()),
			)
		default:
		}
	}
}

func (t *target) run() {
	defer close(t.done)
	for batch := range t.queue {
		metrics.SinkQueueDepth.WithLabelValues(t.sink.Name()).Set(float64(len(t.queue)))
		t.deliver(batch)
	}
}

// deliver pushes one batch, retrying with exponential backoff up to the
// policy's attempt budget. Exhaustion drops the batch; it never wedges the
// worker.
func (t *target) deliver(batch *model.Batch) {
	attempt := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.SendTimeout)
		defer cancel()

		start := time.Now()
		err := t.sink.Send(ctx, batch)
		metrics.SinkSendDuration.WithLabelValues(t.sink.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.SinkSendFailures.WithLabelValues(t.sink.Name()).Inc()
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.cfg.Retry.InitialInterval
	bo.MaxInterval = t.cfg.Retry.MaxInterval
	bo.MaxElapsedTime = 0

	err := backoff.Retry(attempt, backoff.WithMaxRetries(bo, t.cfg.Retry.MaxAttempts-1))
	if err != nil {
		t.deadLetter(batch, "retry_exhausted", err)
		t.logger.Error("delivery failed after retries, batch dropped",
			slog.Int("records", batch.Len()),
			slog.Uint64("attempts", t.cfg.Retry.MaxAttempts),
			slog.String("error", err.Error()),
		)
	}
}

func (t *target) deadLetter(batch *model.Batch, reason string, cause error) {
	if t.dlq == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	t.dlq.Write(ctx, batch, reason, cause)
}

// close stops intake and waits for the queue to empty, bounded by ctx.
func (t *target) close(ctx context.Context) error {
	close(t.queue)
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
