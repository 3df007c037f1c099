// Package proxy forwards API requests to the resolved upstream, mapping
// connectivity failures to gateway status codes distinguishable from the
// backend's own application errors.
package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/traceway-systems/traceway-edge/gateway/internal/resolver"
)

// Forwarder proxies requests to the logical upstream behind a Resolver.
type Forwarder struct {
	resolver *resolver.Resolver
	client   *http.Client
	logger   *slog.Logger
}

// Options configures the forwarding timeouts. ConnectTimeout fails fast on
// an unreachable address; ReadTimeout tolerates a slow-but-alive backend.
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// New creates a forwarder for the given resolver.
func New(res *resolver.Resolver, opts Options, logger *slog.Logger) *Forwarder {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: opts.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: opts.ReadTimeout,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Forwarder{
		resolver: res,
		client: &http.Client{
			Transport: transport,
			// Redirects pass through to the caller untouched.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// ServeHTTP resolves the upstream and forwards the request with path and
// query unchanged. The same request is never retried against a second
// address; the next request re-resolves instead.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ep, err := f.resolver.Resolve(r.Context())
	if err != nil {
		f.logger.Error("upstream resolution failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Bad gateway", http.StatusBadGateway)
		return
	}

	target := *r.URL
	target.Scheme = "http"
	target.Host = ep.Addr

	proxyReq, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		f.logger.Error("proxy request creation error", slog.String("error", err.Error()))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	for key, values := range r.Header {
		for _, value := range values {
			proxyReq.Header.Add(key, value)
		}
	}
	setForwardedHeaders(proxyReq, r)

	resp, err := f.client.Do(proxyReq)
	if err != nil {
		status := http.StatusBadGateway
		if isTimeout(err) {
			status = http.StatusGatewayTimeout
		}
		f.logger.Warn("upstream request failed",
			slog.String("upstream", ep.Addr),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		http.Error(w, http.StatusText(status), status)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// setForwardedHeaders records the caller's address and original scheme
// without removing anything the backend needs.
func setForwardedHeaders(proxyReq *http.Request, r *http.Request) {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
			host = prior + ", " + host
		}
		proxyReq.Header.Set("X-Forwarded-For", host)
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	proxyReq.Header.Set("X-Forwarded-Proto", scheme)
	proxyReq.Header.Set("X-Forwarded-Host", r.Host)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
