package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/manifest", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/manifest/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	ok := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	bad := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "400"))
	missing := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))

	for _, target := range []string{"/manifest?url=https://example.com/", "/manifest/example.com", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")) - ok; got != 1 {
		t.Errorf("expected one 200, got %f", got)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "400")) - bad; got != 1 {
		t.Errorf("expected one 400, got %f", got)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")) - missing; got != 1 {
		t.Errorf("expected one 404, got %f", got)
	}

	if n := testutil.CollectAndCount(httpRequestDurationSeconds, "http_request_duration_seconds"); n < 3 {
		t.Errorf("expected a series per route pattern, got %d", n)
	}
}
