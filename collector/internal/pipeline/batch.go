package pipeline

import (
	"time"

	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

// BatchStage is the mandatory last stage: it accumulates records and releases
// a merged batch once the size threshold is reached. The time threshold is
// driven by the pipeline worker calling FlushStale between batches; on
// shutdown the worker calls Flush exactly once for the final partial batch.
type BatchStage struct {
	signal       model.Signal
	flushRecords int
	flushAge     time.Duration

	acc        *model.Batch
	oldestSeen time.Time
}

// NewBatchStage creates the batching stage for one signal.
func NewBatchStage(signal model.Signal, flushRecords int, flushAge time.Duration) *BatchStage {
	return &BatchStage{
		signal:       signal,
		flushRecords: flushRecords,
		flushAge:     flushAge,
	}
}

// Name implements Stage.
func (s *BatchStage) Name() string { return "batch" }

// Process absorbs the incoming batch into the accumulator. When the size
// threshold is reached the merged batch is passed forward and the
// accumulator resets; otherwise nil is returned and the records remain
// buffered (and remain charged against the memory budget).
func (s *BatchStage) Process(batch *model.Batch) (*model.Batch, Outcome, error) {
	if s.acc == nil {
		s.acc = model.NewBatch(s.signal, nil, 0)
		s.oldestSeen = time.Now()
	}
	s.acc.Append(batch)

	if s.acc.Len() >= s.flushRecords {
		return s.take(), Continue(), nil
	}
	return nil, Continue(), nil
}

// FlushStale returns the accumulated batch if it has been sitting longer
// than the flush age, nil otherwise.
func (s *BatchStage) FlushStale(now time.Time) *model.Batch {
	if s.acc == nil || s.acc.Len() == 0 {
		return nil
	}
	if now.Sub(s.oldestSeen) < s.flushAge {
		return nil
	}
	return s.take()
}

// Flush unconditionally returns the accumulated partial batch, nil if empty.
func (s *BatchStage) Flush() *model.Batch {
	if s.acc == nil || s.acc.Len() == 0 {
		return nil
	}
	return s.take()
}

func (s *BatchStage) take() *model.Batch {
	out := s.acc
	s.acc = nil
	return out
}
