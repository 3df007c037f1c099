package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceway-systems/traceway-edge/gateway/internal/proxy"
	"github.com/traceway-systems/traceway-edge/gateway/internal/resolver"
)

func newTestRouter(t *testing.T, backendURL, staticDir string) http.Handler {
	t.Helper()
	u, err := url.Parse(backendURL)
	require.NoError(t, err)

	res := resolver.New("backend", time.Minute, resolver.StaticLookup(u.Host))
	f := proxy.New(res, proxy.Options{}, slog.New(slog.DiscardHandler))
	return NewRouter(f, staticDir, "/api/", nil)
}

func TestRouter_APIPrefixIsForwardedWithPrefix(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, "ok")
	}))
	defer backend.Close()

	router := newTestRouter(t, backend.URL, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/tasks", gotPath)
}

func TestRouter_StaticAssetsServedAtRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>traceway</h1>"), 0o644))

	backend := httptest.NewServer(http.NewServeMux())
	defer backend.Close()

	router := newTestRouter(t, backend.URL, dir)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "traceway")
}

func TestRouter_ReadyzWithoutOrchestratorIsReady(t *testing.T) {
	backend := httptest.NewServer(http.NewServeMux())
	defer backend.Close()

	router := newTestRouter(t, backend.URL, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ready"])
}
