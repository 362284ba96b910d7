package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/fetch-manifest/internal/config"
	"github.com/JakeFAU/fetch-manifest/internal/manifest"
)

type fakeResolver struct {
	mu      sync.Mutex
	inputs  []string
	result  *manifest.Manifest
	err     error
	doPanic bool
}

func (f *fakeResolver) Resolve(_ context.Context, input, _ string) (*manifest.Manifest, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	if f.doPanic {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return manifest.Normalize(map[string]any{"name": "App"}, input, "")
}

func (f *fakeResolver) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inputs...)
}

type fakeIDGen struct{}

func (fakeIDGen) NewID() (string, error) { return "req-1", nil }

type failingIDGen struct{}

func (failingIDGen) NewID() (string, error) { return "", errors.New("entropy exhausted") }

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{CORS: true, RequestTimeoutSeconds: 5},
	}
}

func newTestServer(resolver ManifestResolver, cfg config.Config) *Server {
	return NewServer(resolver, fakeIDGen{}, cfg, zap.NewNop())
}

func doGet(t *testing.T, s *Server, target string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestServer_GetManifest_Succeeds(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	s := newTestServer(resolver, testConfig())

	rec := doGet(t, s, "/manifest?url=https://example.com/manifest.json")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeBody(t, rec)
	assert.Equal(t, "App", body["name"])
	assert.Equal(t, "https://example.com/manifest.json", body["processed_manifest_url"])
	assert.Equal(t, []string{"https://example.com/manifest.json"}, resolver.calls())
}

func TestServer_GetManifest_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		target string
		want   string
	}{
		{name: "missing url", target: "/manifest", want: `"url" is required`},
		{name: "empty url", target: "/manifest?url=", want: `"url" is required`},
		{name: "bare host", target: "/manifest?url=example.com", want: `"url" must be an http or https URL`},
		{name: "other scheme", target: "/manifest?url=ftp://example.com/", want: `"url" must be an http or https URL`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resolver := &fakeResolver{}
			rec := doGet(t, newTestServer(resolver, testConfig()), tc.target)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.want, decodeBody(t, rec)["error"])
			assert.Empty(t, resolver.calls())
		})
	}
}

func TestServer_GetManifest_SchemeIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	rec := doGet(t, newTestServer(resolver, testConfig()), "/manifest?url=HTTPS://example.com/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"HTTPS://example.com/"}, resolver.calls())
}

func TestServer_GetManifest_RawQueryURL(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	rec := doGet(t, newTestServer(resolver, testConfig()), "/manifest?https://example.com/app")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"https://example.com/app"}, resolver.calls())
}

func TestServer_GetManifest_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "upstream status",
			err:  &manifest.FetchError{URL: "http://example.com/", StatusCode: http.StatusNotFound},
			want: "404",
		},
		{
			name: "not found",
			err:  manifest.ErrManifestNotFound,
			want: "manifest not found",
		},
		{
			name: "transport",
			err:  &manifest.FetchError{URL: "https://example.com/", Err: errors.New("connection refused")},
			want: "fetch https://example.com/: connection refused",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(&fakeResolver{err: tc.err}, testConfig())
			rec := doGet(t, s, "/manifest?url=https://example.com/")
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.want, decodeBody(t, rec)["error"])
		})
	}
}

func TestServer_GetManifestByPath(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	s := newTestServer(resolver, testConfig())

	rec := doGet(t, s, "/manifest/example.com/app")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doGet(t, s, "/manifest/not-a-host")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid url", decodeBody(t, rec)["error"])

	assert.Equal(t, []string{"https://example.com/app"}, resolver.calls())
}

func TestServer_BareHostPath(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	s := newTestServer(resolver, testConfig())

	rec := doGet(t, s, "/example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"https://example.com/"}, resolver.calls())

	rec = doGet(t, s, "/favicon.ico")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decodeBody(t, rec)["error"])
}

func TestServer_PublicDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>home</h1>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "404.html"), []byte("<h1>missing</h1>"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "js"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "js", "app.js"), []byte("console.log(1)"), 0o600))

	cfg := testConfig()
	cfg.Server.PublicDir = dir
	resolver := &fakeResolver{}
	s := newTestServer(resolver, cfg)

	rec := doGet(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "home")

	rec = doGet(t, s, "/js/app.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = doGet(t, s, "/missing.txt")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing")

	assert.Empty(t, resolver.calls())
}

func TestServer_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeResolver{}, testConfig())

	rec := doGet(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = doGet(t, s, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	doGet(t, s, "/manifest?url=https://example.com/")
	rec = doGet(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_ReadyzWithoutResolver(t *testing.T) {
	t.Parallel()

	rec := doGet(t, newTestServer(nil, testConfig()), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	t.Parallel()

	rec := doGet(t, newTestServer(&fakeResolver{}, testConfig()), "/healthz", "Origin", "https://app.example")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	cfg := testConfig()
	cfg.Server.CORS = false
	rec = doGet(t, newTestServer(&fakeResolver{}, cfg), "/healthz", "Origin", "https://app.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RequestID(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeResolver{}, testConfig())
	rec := doGet(t, s, "/healthz")
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	rec = doGet(t, s, "/healthz", "X-Request-ID", "upstream-id")
	assert.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))

	failing := NewServer(&fakeResolver{}, failingIDGen{}, testConfig(), zap.NewNop())
	rec = doGet(t, failing, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeResolver{doPanic: true}, testConfig())
	rec := doGet(t, s, "/manifest?url=https://example.com/")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_RejectsOtherMethods(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeResolver{}, testConfig())
	req := httptest.NewRequest(http.MethodPost, "/example.com", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_TracingMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Telemetry = config.TelemetryConfig{TracingEnabled: true, ServiceName: "fetch-manifest-test"}
	s := newTestServer(&fakeResolver{}, cfg)

	rec := doGet(t, s, "/manifest?url=https://example.com/manifest.json",
		"traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "App", decodeBody(t, rec)["name"])
}

func TestServer_GetManifest_ETag(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeResolver{}, testConfig())
	rec := doGet(t, s, "/manifest?url=https://example.com/manifest.json")
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = doGet(t, s, "/manifest?url=https://example.com/manifest.json", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = doGet(t, s, "/manifest?url=https://example.com/manifest.json", "If-None-Match", `"stale"`)
	assert.Equal(t, http.StatusOK, rec.Code)
}
