// Package health provides functional health probing and dependency-gated
// startup ordering shared by the traceway-edge services.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Prober performs a single functional probe against one endpoint.
// A nil error means the dependency answered and is functionally ready.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber probes a well-known HTTP path. Any non-2xx status, connection
// failure, or timeout counts as a probe failure. The probed path is expected
// to answer successfully only once the dependency's own hard requirements
// (e.g. its data layer) have initialized.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober for the given URL with a per-probe timeout.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Probe issues a GET against the configured URL.
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused between probes.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe %s: status %d", p.url, resp.StatusCode)
	}
	return nil
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) error

// Probe calls f.
func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }
