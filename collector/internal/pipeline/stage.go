// Package pipeline implements the per-signal processing stage chain:
// memory-limit, resource-enrich, label-promotion (logs), and batching.
package pipeline

import "github.com/traceway-systems/traceway-edge/collector/internal/model"

// OutcomeKind classifies the result of a stage run.
type OutcomeKind int

const (
	// KindContinue passes the batch to the next stage.
	KindContinue OutcomeKind = iota
	// KindDrop discards n records; the pipeline moves on to the next batch.
	KindDrop
	// KindRefuse rejects n incoming records under resource pressure. Refusal
	// is backpressure, not an error: the caller may retry later.
	KindRefuse
)

// Outcome is the per-batch result of a stage.
type Outcome struct {
	Kind   OutcomeKind
	Count  int
	Reason string
}

// Continue passes the batch through unchanged.
func Continue() Outcome { return Outcome{Kind: KindContinue} }

// Drop discards n records for the given reason.
func Drop(n int, reason string) Outcome {
	return Outcome{Kind: KindDrop, Count: n, Reason: reason}
}

// Refuse rejects n incoming records.
func Refuse(n int) Outcome { return Outcome{Kind: KindRefuse, Count: n} }

// Stage is one transform in the chain. A stage either passes an output batch
// forward (possibly nil when the batch was absorbed, as the batching stage
// does while accumulating), or reports a Drop/Refuse outcome.
//
// A returned error is a stage failure, distinct from Drop/Refuse outcomes:
// the pipeline drops that batch, counts it against the failing stage, and
// continues with the next batch. A single bad batch never halts the chain.
type Stage interface {
	Name() string
	Process(batch *model.Batch) (*model.Batch, Outcome, error)
}
