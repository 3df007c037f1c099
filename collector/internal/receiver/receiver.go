// Package receiver terminates the collector's two ingestion protocols, gRPC
// and HTTP, decodes payloads into the normalized record model, and hands them
// to the pipeline layer. Both protocols share one Acceptor so backpressure
// behaves identically regardless of how a record arrived.
package receiver

import (
	"context"

	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

// Acceptor admits decoded records into a signal's pipeline. Implementations
// must return pipeline.ErrPipelineFull when the records cannot be admitted
// under memory pressure, so the receiver can translate it into per-protocol
// backpressure (HTTP 429, gRPC RESOURCE_EXHAUSTED).
type Acceptor interface {
	Accept(ctx context.Context, signal model.Signal, records []model.Record, bytes int64) error
}
