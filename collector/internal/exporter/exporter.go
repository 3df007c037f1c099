// Package exporter routes finished batches to their signal type's sinks,
// each behind an independent bounded queue with its own retry policy.
package exporter

import (
	"context"
	"time"

	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

// Sink pushes one batch to an external destination. Send must honor ctx and
// return an error for any failed delivery so the sender worker can retry.
type Sink interface {
	Name() string
	Send(ctx context.Context, batch *model.Batch) error
}

// RetryPolicy bounds a sink's exponential backoff.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// MaxAttempts is the total number of delivery attempts, first try
	// included. After the last failure the batch is dropped (and dead
	// lettered when a DLQ is configured).
	MaxAttempts uint64
}

// DefaultRetryPolicy returns the retry defaults used by push sinks.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		MaxAttempts:     5,
	}
}

// TargetConfig configures one sink target's queue and retry behavior.
type TargetConfig struct {
	// QueueSize bounds the outbound queue. On overflow the oldest queued
	// batch is dropped, preserving liveness over completeness.
	QueueSize int

	// SendTimeout bounds a single delivery attempt.
	SendTimeout time.Duration

	Retry RetryPolicy
}

// DeadLetter records batches that left the pipeline without being delivered:
// retry exhaustion and queue overflow.
type DeadLetter interface {
	Write(ctx context.Context, batch *model.Batch, reason string, cause error)
}
