// Package sink implements the push clients that deliver finished batches to
// downstream telemetry backends. Each sink satisfies exporter.Sink and is
// driven by the exporter's per-target sender worker, which owns retries and
// queueing; sinks themselves only perform a single delivery attempt.
package sink

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/traceway-systems/traceway-edge/collector/internal/model"
	"github.com/traceway-systems/traceway-edge/collector/internal/otlp"
)

// TraceSink pushes trace batches to an upstream collector over gRPC.
type TraceSink struct {
	name   string
	addr   string
	conn   *grpc.ClientConn
	client collectortracepb.TraceServiceClient
}

// NewTraceSink creates a trace sink for the given gRPC endpoint. The
// connection is established lazily on first send.
func NewTraceSink(name, addr string) (*TraceSink, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial trace sink %s: %w", addr, err)
	}
	return &TraceSink{
		name:   name,
		addr:   addr,
		conn:   conn,
		client: collectortracepb.NewTraceServiceClient(conn),
	}, nil
}

func (s *TraceSink) Name() string { return s.name }

// Send exports one batch. Partial-success responses with rejected spans are
// treated as delivered; the upstream owns that accounting.
func (s *TraceSink) Send(ctx context.Context, batch *model.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if _, err := s.client.Export(ctx, otlp.EncodeTraces(batch)); err != nil {
		return fmt.Errorf("export %d spans to %s: %w", batch.Len(), s.addr, err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *TraceSink) Close() error {
	return s.conn.Close()
}
