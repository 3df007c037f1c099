package receiver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	collectorlogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	collectormetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/traceway-systems/traceway-edge/collector/internal/metrics"
	"github.com/traceway-systems/traceway-edge/collector/internal/model"
	"github.com/traceway-systems/traceway-edge/collector/internal/otlp"
	"github.com/traceway-systems/traceway-edge/collector/internal/pipeline"
)

const (
	contentTypeProtobuf = "application/x-protobuf"
	contentTypeJSON     = "application/json"

	defaultMaxBodyBytes = 8 << 20
)

// HTTPHandler serves the HTTP ingestion endpoints. A response is written only
// after the records were admitted to (or refused by) the pipeline, so a 2xx
// means the collector has taken responsibility for the payload.
type HTTPHandler struct {
	acceptor Acceptor
	logger   *slog.Logger
	maxBody  int64
}

// NewHTTPHandler creates the ingestion handler. maxBody bounds a single
// request payload; zero applies the default.
func NewHTTPHandler(acceptor Acceptor, logger *slog.Logger, maxBody int64) *HTTPHandler {
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &HTTPHandler{
		acceptor: acceptor,
		logger:   logger,
		maxBody:  maxBody,
	}
}

// Register mounts the three signal endpoints on the mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/traces", h.handleTraces)
	mux.HandleFunc("POST /v1/logs", h.handleLogs)
	mux.HandleFunc("POST /v1/metrics", h.handleMetrics)
}

func (h *HTTPHandler) handleTraces(w http.ResponseWriter, r *http.Request) {
	req := &collectortracepb.ExportTraceServiceRequest{}
	h.ingest(w, r, req, model.SignalTraces,
		func() []model.Record { return otlp.DecodeTraces(req) },
		&collectortracepb.ExportTraceServiceResponse{},
	)
}

func (h *HTTPHandler) handleLogs(w http.ResponseWriter, r *http.Request) {
	req := &collectorlogspb.ExportLogsServiceRequest{}
	h.ingest(w, r, req, model.SignalLogs,
		func() []model.Record { return otlp.DecodeLogs(req) },
		&collectorlogspb.ExportLogsServiceResponse{},
	)
}

func (h *HTTPHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	req := &collectormetricspb.ExportMetricsServiceRequest{}
	h.ingest(w, r, req, model.SignalMetrics,
		func() []model.Record { return otlp.DecodeMetrics(req) },
		&collectormetricspb.ExportMetricsServiceResponse{},
	)
}

// ingest is the shared request path: read, unmarshal per content type,
// decode, admit, respond in the caller's wire format.
func (h *HTTPHandler) ingest(w http.ResponseWriter, r *http.Request, req proto.Message, signal model.Signal, decode func() []model.Record, resp proto.Message) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("payload exceeds %d bytes", h.maxBody))
			return
		}
		h.writeError(w, r, http.StatusBadRequest, "failed to read request body")
		return
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case contentTypeProtobuf:
		err = proto.Unmarshal(body, req)
	case contentTypeJSON, "":
		err = protojson.Unmarshal(body, req)
	default:
		h.writeError(w, r, http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported content type %q", ct))
		return
	}
	if err != nil {
		metrics.DecodeErrors.WithLabelValues("http").Inc()
		h.writeError(w, r, http.StatusBadRequest, "malformed payload: "+err.Error())
		return
	}

	records := decode()
	if err := h.acceptor.Accept(r.Context(), signal, records, int64(proto.Size(req))); err != nil {
		if errors.Is(err, pipeline.ErrPipelineFull) {
			h.writeError(w, r, http.StatusTooManyRequests, "collector is over its memory ceiling, retry later")
			return
		}
		h.logger.Error("failed to admit records",
			slog.String("signal", string(signal)),
			slog.String("error", err.Error()),
		)
		h.writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeResponse(w, r, resp)
}

// writeResponse answers in the request's wire format with an empty export
// response, matching what OTLP clients expect on full success.
func (h *HTTPHandler) writeResponse(w http.ResponseWriter, r *http.Request, resp proto.Message) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		body []byte
		err  error
	)
	if ct == contentTypeProtobuf {
		body, err = proto.Marshal(resp)
	} else {
		ct = contentTypeJSON
		body, err = protojson.Marshal(resp)
	}
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error":  message,
		"status": status,
	})
}
