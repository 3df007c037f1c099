package exporter

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

// Router fans a finished batch out to the sink targets registered for its
// signal type. Fan-out is static configuration: trace batches never reach a
// log sink. Fan-out is independent, not transactional: one target's failure
// or full queue never affects delivery to the others.
type Router struct {
	targets map[model.Signal][]*target
	dlq     DeadLetter
	logger  *slog.Logger
	started atomic.Bool
	closed  atomic.Bool
}

// NewRouter creates an empty router. Sinks are registered before Start.
func NewRouter(dlq DeadLetter, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		targets: make(map[model.Signal][]*target),
		dlq:     dlq,
		logger:  logger,
	}
}

// AddSink registers a sink for one signal type.
func (r *Router) AddSink(signal model.Signal, sink Sink, cfg TargetConfig) {
	r.targets[signal] = append(r.targets[signal], newTarget(sink, cfg, r.dlq, r.logger))
}

// Start launches one sender worker per registered target.
func (r *Router) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	for _, targets := range r.targets {
		for _, t := range targets {
			go t.run()
		}
	}
}

// Export enqueues the batch for every target of its signal type, without
// blocking. Implements pipeline.Exporter.
func (r *Router) Export(ctx context.Context, batch *model.Batch) {
	if r.closed.Load() {
		r.logger.Warn("export after shutdown, batch discarded",
			slog.String("signal", string(batch.Signal)),
			slog.Int("records", batch.Len()),
		)
		return
	}
	for _, t := range r.targets[batch.Signal] {
		t.enqueue(batch)
	}
}

// SinkCount returns the number of targets registered for a signal.
func (r *Router) SinkCount(signal model.Signal) int {
	return len(r.targets[signal])
}

// Shutdown stops intake, then waits for each sink queue to drain or for ctx
// to expire, whichever first.
func (r *Router) Shutdown(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	var firstErr error
	for _, targets := range r.targets {
		for _, t := range targets {
			if err := t.close(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
