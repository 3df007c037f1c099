package pipeline

import (
	"sync/atomic"

	"github.com/traceway-systems/traceway-edge/collector/internal/metrics"
	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

// MemoryController tracks approximate in-flight batch bytes across all
// pipelines against a hard ceiling. It is the sole backpressure mechanism:
// when the ceiling would be exceeded the incoming batch is refused, buffered
// data is untouched, and admission recovers on its own once in-flight bytes
// drain.
type MemoryController struct {
	limit    int64
	spike    int64
	inflight atomic.Int64
}

// NewMemoryController creates a controller with the given hard ceiling and
// spike margin. The margin is headroom kept free under the ceiling so a burst
// admitted just below the limit cannot push the process past it.
func NewMemoryController(limit, spike int64) *MemoryController {
	metrics.MemoryLimitBytes.Set(float64(limit))
	return &MemoryController{limit: limit, spike: spike}
}

// TryAcquire admits n bytes if they fit under the ceiling minus the spike
// margin. It never blocks.
func (c *MemoryController) TryAcquire(n int64) bool {
	for {
		cur := c.inflight.Load()
		if cur+n+c.spike > c.limit {
			return false
		}
		if c.inflight.CompareAndSwap(cur, cur+n) {
			metrics.MemoryInFlightBytes.Set(float64(cur + n))
			return true
		}
	}
}

// Release returns n bytes to the budget.
func (c *MemoryController) Release(n int64) {
	v := c.inflight.Add(-n)
	metrics.MemoryInFlightBytes.Set(float64(v))
}

// InFlight returns the current in-flight byte estimate.
func (c *MemoryController) InFlight() int64 {
	return c.inflight.Load()
}

// Limit returns the configured hard ceiling.
func (c *MemoryController) Limit() int64 {
	return c.limit
}

// memLimitStage is the mandatory first stage: it admits or refuses the
// incoming batch against the shared controller. It never fails.
type memLimitStage struct {
	controller *MemoryController
}

// NewMemoryLimitStage creates the memory-limit stage backed by the shared
// controller.
func NewMemoryLimitStage(controller *MemoryController) Stage {
	return &memLimitStage{controller: controller}
}

func (s *memLimitStage) Name() string { return "memory_limit" }

func (s *memLimitStage) Process(batch *model.Batch) (*model.Batch, Outcome, error) {
	if !s.controller.TryAcquire(batch.Bytes) {
		return nil, Refuse(batch.Len()), nil
	}
	return batch, Continue(), nil
}
