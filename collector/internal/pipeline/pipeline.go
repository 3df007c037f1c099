package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/traceway-systems/traceway-edge/collector/internal/metrics"
	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

// ErrPipelineFull is returned by Enqueue when the bounded input queue is
// full. It surfaces to the caller as a refusal, the same backpressure budget
// the memory-limit stage enforces.
var ErrPipelineFull = errors.New("pipeline queue full")

// Exporter receives finished batches from the stage chain. Implementations
// must not block the caller; queueing and retry live behind this interface.
type Exporter interface {
	Export(ctx context.Context, batch *model.Batch)
}

// Stats is a snapshot of pipeline accounting. For any closed window,
// Ingested == Exported + Dropped + Refused: no record silently disappears.
type Stats struct {
	Ingested uint64 `json:"ingested"`
	Exported uint64 `json:"exported"`
	Dropped  uint64 `json:"dropped"`
	Refused  uint64 `json:"refused"`
}

// Options configures a pipeline's runtime behavior.
type Options struct {
	// QueueSize bounds the input queue between the receiver and the worker.
	QueueSize int

	// FlushInterval drives the batching stage's time threshold.
	FlushInterval time.Duration

	Logger *slog.Logger
}

// Pipeline runs one signal type's ordered stage chain on its own worker, so
// a slow pipeline for one signal cannot starve another's.
type Pipeline struct {
	signal   model.Signal
	stages   []Stage
	batcher  *BatchStage
	mem      *MemoryController
	exporter Exporter
	logger   *slog.Logger

	input chan *model.Batch
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
	tick  time.Duration

	ingested atomic.Uint64
	exported atomic.Uint64
	dropped  atomic.Uint64
	refused  atomic.Uint64
}

// New validates the stage chain and builds a pipeline. Stage order is fixed
// at configuration time: the memory-limit stage must be first and the
// batching stage last. A violation is an unrecoverable configuration error,
// the only error class that may terminate the process (at startup).
func New(signal model.Signal, stages []Stage, exporter Exporter, mem *MemoryController, opts Options) (*Pipeline, error) {
	if len(stages) < 2 {
		return nil, fmt.Errorf("pipeline %s: at least memory-limit and batch stages are required", signal)
	}
	if _, ok := stages[0].(*memLimitStage); !ok {
		return nil, fmt.Errorf("pipeline %s: first stage must be memory_limit, got %s", signal, stages[0].Name())
	}
	batcher, ok := stages[len(stages)-1].(*BatchStage)
	if !ok {
		return nil, fmt.Errorf("pipeline %s: last stage must be batch, got %s", signal, stages[len(stages)-1].Name())
	}
	for _, s := range stages[1 : len(stages)-1] {
		switch s.(type) {
		case *memLimitStage, *BatchStage:
			return nil, fmt.Errorf("pipeline %s: stage %s registered in the wrong slot", signal, s.Name())
		}
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Pipeline{
		signal:   signal,
		stages:   stages,
		batcher:  batcher,
		mem:      mem,
		exporter: exporter,
		logger:   opts.Logger.With(slog.String("signal", string(signal))),
		input:    make(chan *model.Batch, opts.QueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		tick:     opts.FlushInterval,
	}, nil
}

// Signal returns the signal type this pipeline processes.
func (p *Pipeline) Signal() model.Signal { return p.signal }

// Start launches the worker goroutine.
func (p *Pipeline) Start() {
	go p.run()
}

// Enqueue hands a decoded batch to the pipeline without blocking. Every
// record is counted as ingested here; a full queue refuses the batch.
func (p *Pipeline) Enqueue(batch *model.Batch) error {
	n := batch.Len()
	p.ingested.Add(uint64(n))
	metrics.RecordsIngested.WithLabelValues(string(p.signal)).Add(float64(n))

	select {
	case p.input <- batch:
		return nil
	default:
		p.refused.Add(uint64(n))
		metrics.RecordsRefused.WithLabelValues(string(p.signal)).Add(float64(n))
		return ErrPipelineFull
	}
}

// Shutdown stops intake, drains buffered batches through the stage chain
// once, flushes the batching stage exactly once, and waits for the worker,
// bounded by ctx.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.once.Do(func() { close(p.quit) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline %s: shutdown: %w", p.signal, ctx.Err())
	}
}

// Stats returns a snapshot of the pipeline's accounting counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Ingested: p.ingested.Load(),
		Exported: p.exported.Load(),
		Dropped:  p.dropped.Load(),
		Refused:  p.refused.Load(),
	}
}

func (p *Pipeline) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case batch := <-p.input:
			p.process(batch)
		case now := <-ticker.C:
			if flushed := p.batcher.FlushStale(now); flushed != nil {
				p.export(flushed)
			}
		case <-p.quit:
			p.drain()
			return
		}
	}
}

// drain processes whatever is already queued, then flushes the final partial
// batch exactly once.
func (p *Pipeline) drain() {
	for {
		select {
		case batch := <-p.input:
			p.process(batch)
		default:
			if flushed := p.batcher.Flush(); flushed != nil {
				p.export(flushed)
			}
			return
		}
	}
}

// process runs one batch through the stage chain to completion. Batches are
// never partially abandoned: the chain has no cancellation points.
func (p *Pipeline) process(batch *model.Batch) {
	cur := batch
	var held int64

	for _, stage := range p.stages {
		out, outcome, err := stage.Process(cur)
		if err != nil {
			// Stage failure is isolated per batch: drop it, count it against
			// the failing stage, and keep the pipeline alive for the next one.
			n := cur.Len()
			p.dropped.Add(uint64(n))
			metrics.RecordsDropped.WithLabelValues(string(p.signal), stage.Name()).Add(float64(n))
			if held > 0 {
				p.mem.Release(held)
			}
			p.logger.Warn("stage failed, batch dropped",
				slog.String("stage", stage.Name()),
				slog.Int("records", n),
				slog.String("error", err.Error()),
			)
			return
		}

		switch outcome.Kind {
		case KindRefuse:
			p.refused.Add(uint64(outcome.Count))
			metrics.RecordsRefused.WithLabelValues(string(p.signal)).Add(float64(outcome.Count))
			return
		case KindDrop:
			p.dropped.Add(uint64(outcome.Count))
			metrics.RecordsDropped.WithLabelValues(string(p.signal), stage.Name()).Add(float64(outcome.Count))
			if held > 0 {
				p.mem.Release(held)
			}
			return
		}

		if _, ok := stage.(*memLimitStage); ok {
			held = cur.Bytes
		}
		if out == nil {
			// Absorbed by the batching stage; its bytes stay charged against
			// the memory budget until the merged batch is exported.
			return
		}
		cur = out
	}

	p.export(cur)
}

func (p *Pipeline) export(batch *model.Batch) {
	n := batch.Len()
	p.exported.Add(uint64(n))
	metrics.RecordsExported.WithLabelValues(string(p.signal)).Add(float64(n))
	p.exporter.Export(context.Background(), batch)
	p.mem.Release(batch.Bytes)
}
