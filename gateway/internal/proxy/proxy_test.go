package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceway-systems/traceway-edge/gateway/internal/resolver"
)

func addrOf(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Host
}

func newForwarder(res *resolver.Resolver, opts Options) *Forwarder {
	return New(res, opts, slog.New(slog.DiscardHandler))
}

func TestForwarder_PreservesPathQueryAndBody(t *testing.T) {
	var gotPath, gotQuery, gotBody, gotProto string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotProto = r.Header.Get("X-Forwarded-Proto")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("X-Backend", "yes")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": 7}`)
	}))
	defer backend.Close()

	res := resolver.New("backend", time.Minute, resolver.StaticLookup(addrOf(t, backend)))
	f := newForwarder(res, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/tasks?sort=due&page=2", strings.NewReader(`{"title":"x"}`))
	req.RemoteAddr = "192.0.2.10:31337"
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `{"id": 7}`, rec.Body.String())
	assert.Equal(t, "yes", rec.Header().Get("X-Backend"))
	assert.Equal(t, "/api/tasks", gotPath)
	assert.Equal(t, "sort=due&page=2", gotQuery)
	assert.Equal(t, `{"title":"x"}`, gotBody)
	assert.Equal(t, "http", gotProto)
}

func TestForwarder_AppendsForwardedFor(t *testing.T) {
	var gotFor string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFor = r.Header.Get("X-Forwarded-For")
	}))
	defer backend.Close()

	res := resolver.New("backend", time.Minute, resolver.StaticLookup(addrOf(t, backend)))
	f := newForwarder(res, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.RemoteAddr = "192.0.2.10:31337"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	f.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.1, 192.0.2.10", gotFor)
}

func TestForwarder_BackendErrorsPassThrough(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "task not found", http.StatusNotFound)
	}))
	defer backend.Close()

	res := resolver.New("backend", time.Minute, resolver.StaticLookup(addrOf(t, backend)))
	f := newForwarder(res, Options{})

	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/9", nil))

	// An application-level error from the backend is not a gateway error.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForwarder_UnreachableUpstreamIsBadGateway(t *testing.T) {
	// A listener that was closed gives a connection refused, not a timeout.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead := addrOf(t, backend)
	backend.Close()

	res := resolver.New("backend", time.Minute, resolver.StaticLookup(dead))
	f := newForwarder(res, Options{ConnectTimeout: 500 * time.Millisecond})

	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestForwarder_SlowUpstreamIsGatewayTimeout(t *testing.T) {
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		backend.Close()
	}()

	res := resolver.New("backend", time.Minute, resolver.StaticLookup(addrOf(t, backend)))
	f := newForwarder(res, Options{ReadTimeout: 100 * time.Millisecond})

	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/slow", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestForwarder_ResolutionFailureIsBadGateway(t *testing.T) {
	res := resolver.New("backend", time.Minute, func(ctx context.Context, service string) (string, error) {
		return "", errors.New("no such host")
	})
	f := newForwarder(res, Options{})

	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// The address of the logical upstream changes; a request issued after the
// TTL window reaches the new address without the gateway restarting.
func TestForwarder_FollowsUpstreamMove(t *testing.T) {
	oldBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "old")
	}))
	defer oldBackend.Close()
	newBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "new")
	}))
	defer newBackend.Close()

	var mu sync.Mutex
	addr := addrOf(t, oldBackend)

	res := resolver.New("backend", 50*time.Millisecond, func(ctx context.Context, service string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return addr, nil
	})
	f := newForwarder(res, Options{})

	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	require.Equal(t, "old", rec.Body.String())

	mu.Lock()
	addr = addrOf(t, newBackend)
	mu.Unlock()

	time.Sleep(60 * time.Millisecond)

	rec = httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	assert.Equal(t, "new", rec.Body.String())
}
