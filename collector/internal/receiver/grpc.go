package receiver

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	collectorlogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	collectormetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/traceway-systems/traceway-edge/collector/internal/model"
	"github.com/traceway-systems/traceway-edge/collector/internal/otlp"
	"github.com/traceway-systems/traceway-edge/collector/internal/pipeline"
)

// GRPCServices bundles the three signal export services for registration on
// one gRPC server.
type GRPCServices struct {
	traces  *traceService
	logs    *logService
	metrics *metricService
}

// NewGRPCServices creates the export services backed by the given acceptor.
func NewGRPCServices(acceptor Acceptor, logger *slog.Logger) *GRPCServices {
	return &GRPCServices{
		traces:  &traceService{acceptor: acceptor, logger: logger},
		logs:    &logService{acceptor: acceptor, logger: logger},
		metrics: &metricService{acceptor: acceptor, logger: logger},
	}
}

// Register attaches all three services to the server.
func (s *GRPCServices) Register(srv *grpc.Server) {
	collectortracepb.RegisterTraceServiceServer(srv, s.traces)
	collectorlogspb.RegisterLogsServiceServer(srv, s.logs)
	collectormetricspb.RegisterMetricsServiceServer(srv, s.metrics)
}

// acceptErr maps pipeline admission failures onto gRPC status codes.
// Memory-pressure refusals are retryable, so they surface as
// RESOURCE_EXHAUSTED rather than a terminal error.
func acceptErr(err error, signal model.Signal, logger *slog.Logger) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pipeline.ErrPipelineFull) {
		return status.Error(codes.ResourceExhausted, "collector is over its memory ceiling, retry later")
	}
	logger.Error("failed to admit records",
		slog.String("signal", string(signal)),
		slog.String("error", err.Error()),
	)
	return status.Error(codes.Internal, "internal error")
}

type traceService struct {
	collectortracepb.UnimplementedTraceServiceServer
	acceptor Acceptor
	logger   *slog.Logger
}

func (s *traceService) Export(ctx context.Context, req *collectortracepb.ExportTraceServiceRequest) (*collectortracepb.ExportTraceServiceResponse, error) {
	records := otlp.DecodeTraces(req)
	if err := s.acceptor.Accept(ctx, model.SignalTraces, records, int64(proto.Size(req))); err != nil {
		return nil, acceptErr(err, model.SignalTraces, s.logger)
	}
	return &collectortracepb.ExportTraceServiceResponse{}, nil
}

type logService struct {
	collectorlogspb.UnimplementedLogsServiceServer
	acceptor Acceptor
	logger   *slog.Logger
}

func (s *logService) Export(ctx context.Context, req *collectorlogspb.ExportLogsServiceRequest) (*collectorlogspb.ExportLogsServiceResponse, error) {
	records := otlp.DecodeLogs(req)
	if err := s.acceptor.Accept(ctx, model.SignalLogs, records, int64(proto.Size(req))); err != nil {
		return nil, acceptErr(err, model.SignalLogs, s.logger)
	}
	return &collectorlogspb.ExportLogsServiceResponse{}, nil
}

type metricService struct {
	collectormetricspb.UnimplementedMetricsServiceServer
	acceptor Acceptor
	logger   *slog.Logger
}

func (s *metricService) Export(ctx context.Context, req *collectormetricspb.ExportMetricsServiceRequest) (*collectormetricspb.ExportMetricsServiceResponse, error) {
	records := otlp.DecodeMetrics(req)
	if err := s.acceptor.Accept(ctx, model.SignalMetrics, records, int64(proto.Size(req))); err != nil {
		return nil, acceptErr(err, model.SignalMetrics, s.logger)
	}
	return &collectormetricspb.ExportMetricsServiceResponse{}, nil
}
