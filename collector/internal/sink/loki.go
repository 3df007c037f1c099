package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

const lokiPushPath = "/loki/api/v1/push"

// LogSink pushes log batches to a Loki-compatible endpoint. Records are
// grouped into streams by their promoted label set; records without labels
// share a single unlabeled stream.
type LogSink struct {
	name    string
	url     string
	client  *http.Client
	headers map[string]string
}

// LogSinkOption customizes a LogSink.
type LogSinkOption func(*LogSink)

// WithLogHeaders adds static headers to every push, e.g. a tenant ID.
func WithLogHeaders(headers map[string]string) LogSinkOption {
	return func(s *LogSink) {
		s.headers = headers
	}
}

// NewLogSink creates a log sink for the given Loki base URL.
func NewLogSink(name, baseURL string, timeout time.Duration, opts ...LogSinkOption) *LogSink {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &LogSink{
		name:   name,
		url:    strings.TrimRight(baseURL, "/") + lokiPushPath,
		client: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LogSink) Name() string { return s.name }

// lokiStream is one label set and its timestamped lines, in Loki's push
// wire format: values are [<unix nanos as string>, <line>] pairs.
type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

// Send groups the batch into streams and POSTs them as one push request.
// Any non-2xx response is an error so the sender worker retries.
func (s *LogSink) Send(ctx context.Context, batch *model.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	body, err := json.Marshal(buildPush(batch))
	if err != nil {
		return fmt.Errorf("marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push %d log records to %s: %w", batch.Len(), s.url, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push to %s: unexpected status %d", s.url, resp.StatusCode)
	}
	return nil
}

// buildPush groups records by label fingerprint, preserving record order
// within each stream.
func buildPush(batch *model.Batch) lokiPushRequest {
	streams := make(map[string]*lokiStream)
	var order []string

	for _, rec := range batch.Records {
		if rec.Log == nil {
			continue
		}
		fp := labelFingerprint(rec.Labels)
		st, ok := streams[fp]
		if !ok {
			st = &lokiStream{Stream: rec.Labels}
			if st.Stream == nil {
				st.Stream = map[string]string{}
			}
			streams[fp] = st
			order = append(order, fp)
		}
		ts := rec.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		st.Values = append(st.Values, [2]string{
			strconv.FormatInt(ts.UnixNano(), 10),
			rec.Log.Body,
		})
	}

	req := lokiPushRequest{Streams: make([]lokiStream, 0, len(order))}
	for _, fp := range order {
		req.Streams = append(req.Streams, *streams[fp])
	}
	return req
}

func labelFingerprint(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
		sb.WriteByte(',')
	}
	return sb.String()
}
