// Package service assembles the collector: one pipeline per signal behind a
// shared memory controller, fanned out to the configured sinks.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/traceway-systems/traceway-edge/collector/internal/config"
	"github.com/traceway-systems/traceway-edge/collector/internal/dlq"
	"github.com/traceway-systems/traceway-edge/collector/internal/exporter"
	"github.com/traceway-systems/traceway-edge/collector/internal/model"
	"github.com/traceway-systems/traceway-edge/collector/internal/pipeline"
	"github.com/traceway-systems/traceway-edge/collector/internal/sink"
	"github.com/traceway-systems/traceway-edge/common/messaging/nats"
)

// Collector owns the full ingestion path from decoded records to sink
// delivery. It implements receiver.Acceptor.
type Collector struct {
	pipelines map[model.Signal]*pipeline.Pipeline
	router    *exporter.Router
	mem       *pipeline.MemoryController
	logger    *slog.Logger

	traceSink *sink.TraceSink
	natsConn  *nats.JetStreamClient
}

// New wires pipelines, sinks, and the DLQ from configuration. Stage order
// violations and unreachable backends surface here, before the collector
// accepts any traffic.
func New(cfg *config.Config, logger *slog.Logger) (*Collector, error) {
	c := &Collector{
		pipelines: make(map[model.Signal]*pipeline.Pipeline),
		mem:       pipeline.NewMemoryController(cfg.Pipeline.MemoryLimitBytes, cfg.Pipeline.SpikeMarginBytes),
		logger:    logger,
	}

	deadLetter, err := c.buildDLQ(cfg)
	if err != nil {
		return nil, err
	}

	c.router = exporter.NewRouter(deadLetter, logger)
	if err := c.addSinks(cfg); err != nil {
		return nil, err
	}

	// Every record gets a stable per-process instance id unless the
	// configuration already names one.
	enrichAttrs := map[string]any{
		"service.instance.id": uuid.NewString(),
	}
	for k, v := range cfg.Pipeline.ResourceAttributes {
		enrichAttrs[k] = v
	}

	for _, signal := range model.Signals() {
		stages := []pipeline.Stage{
			pipeline.NewMemoryLimitStage(c.mem),
			pipeline.NewResourceEnrichStage(enrichAttrs),
		}
		if signal == model.SignalLogs {
			stages = append(stages, pipeline.NewLabelPromoteStage())
		}
		stages = append(stages, pipeline.NewBatchStage(signal, cfg.Pipeline.FlushRecords, cfg.Pipeline.FlushAge))

		p, err := pipeline.New(signal, stages, c.router, c.mem, pipeline.Options{
			QueueSize:     cfg.Pipeline.QueueSize,
			FlushInterval: cfg.Pipeline.FlushInterval,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build %s pipeline: %w", signal, err)
		}
		c.pipelines[signal] = p
	}

	return c, nil
}

func (c *Collector) buildDLQ(cfg *config.Config) (exporter.DeadLetter, error) {
	switch cfg.DLQ.Backend {
	case "none":
		return nil, nil
	case "file":
		return dlq.NewFileQueue(cfg.DLQ.Path, c.logger)
	case "jetstream":
		natsCfg := nats.DefaultConfig()
		natsCfg.URL = cfg.DLQ.NATSURL
		natsCfg.Name = "traceway-collector"
		js, err := nats.NewJetStreamClient(natsCfg)
		if err != nil {
			return nil, fmt.Errorf("connect dlq jetstream: %w", err)
		}
		c.natsConn = js
		ctx, cancel := context.WithTimeout(context.Background(), natsCfg.Timeout)
		defer cancel()
		return dlq.NewJetStreamQueue(ctx, js, c.logger)
	default:
		return nil, fmt.Errorf("unknown dlq backend %q", cfg.DLQ.Backend)
	}
}

func (c *Collector) addSinks(cfg *config.Config) error {
	target := func(sc config.SinkConfig) exporter.TargetConfig {
		return exporter.TargetConfig{
			QueueSize:   sc.QueueSize,
			SendTimeout: sc.SendTimeout,
			Retry: exporter.RetryPolicy{
				InitialInterval: sc.RetryInitial,
				MaxInterval:     sc.RetryMax,
				MaxAttempts:     sc.RetryAttempts,
			},
		}
	}

	if ep := cfg.Sinks.Traces.Endpoint; ep != "" {
		ts, err := sink.NewTraceSink("otlp-traces", ep)
		if err != nil {
			return fmt.Errorf("build trace sink: %w", err)
		}
		c.traceSink = ts
		c.router.AddSink(model.SignalTraces, ts, target(cfg.Sinks.Traces))
	}
	if ep := cfg.Sinks.Logs.Endpoint; ep != "" {
		ls := sink.NewLogSink("loki", ep, cfg.Sinks.Logs.SendTimeout)
		c.router.AddSink(model.SignalLogs, ls, target(cfg.Sinks.Logs))
	}
	if ep := cfg.Sinks.Metrics.Endpoint; ep != "" {
		ms := sink.NewMetricSink("otlp-metrics", ep, cfg.Sinks.Metrics.SendTimeout)
		c.router.AddSink(model.SignalMetrics, ms, target(cfg.Sinks.Metrics))
	}
	return nil
}

// Start launches the sink workers and pipeline workers.
func (c *Collector) Start() {
	c.router.Start()
	for _, p := range c.pipelines {
		p.Start()
	}
	c.logger.Info("collector started",
		slog.Int64("memory_limit_bytes", c.mem.Limit()),
	)
}

// Accept admits decoded records into the signal's pipeline. It returns
// pipeline.ErrPipelineFull when the input queue is saturated; memory-ceiling
// refusals happen asynchronously inside the pipeline and are visible in
// Stats.
func (c *Collector) Accept(ctx context.Context, signal model.Signal, records []model.Record, bytes int64) error {
	p, ok := c.pipelines[signal]
	if !ok {
		return fmt.Errorf("no pipeline for signal %q", signal)
	}
	if len(records) == 0 {
		return nil
	}
	return p.Enqueue(model.NewBatch(signal, records, bytes))
}

// Stats returns per-signal pipeline accounting.
func (c *Collector) Stats() map[model.Signal]pipeline.Stats {
	out := make(map[model.Signal]pipeline.Stats, len(c.pipelines))
	for signal, p := range c.pipelines {
		out[signal] = p.Stats()
	}
	return out
}

// InFlightBytes reports current memory-controller usage.
func (c *Collector) InFlightBytes() int64 {
	return c.mem.InFlight()
}

// Shutdown drains pipelines first so their final flushes reach the router,
// then drains the sink queues, then releases external connections.
func (c *Collector) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, p := range c.pipelines {
		if err := p.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.router.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if c.traceSink != nil {
		if err := c.traceSink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.natsConn != nil {
		c.natsConn.Close()
	}
	return firstErr
}
