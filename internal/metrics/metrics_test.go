package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	if resolutionsTotal == nil || fetchesTotal == nil || protocolFallbacksTotal == nil ||
		wellKnownProbesTotal == nil || httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveResolverMetrics(t *testing.T) {
	Init()
	before := testutil.ToFloat64(resolutionsTotal.WithLabelValues(OutcomeSynthesized))
	ObserveResolution(OutcomeSynthesized)
	if got := testutil.ToFloat64(resolutionsTotal.WithLabelValues(OutcomeSynthesized)); got != before+1 {
		t.Errorf("expected synthesized resolutions %f, got %f", before+1, got)
	}

	fallbacks := testutil.ToFloat64(protocolFallbacksTotal)
	ObserveProtocolFallback()
	if got := testutil.ToFloat64(protocolFallbacksTotal); got != fallbacks+1 {
		t.Errorf("expected protocol fallbacks %f, got %f", fallbacks+1, got)
	}

	notFound := testutil.ToFloat64(fetchesTotal.WithLabelValues("404"))
	failed := testutil.ToFloat64(fetchesTotal.WithLabelValues("error"))
	fetched := testutil.ToFloat64(fetchBytesTotal)
	ObserveFetch(404, 12)
	ObserveFetch(0, 0)
	if got := testutil.ToFloat64(fetchesTotal.WithLabelValues("404")); got != notFound+1 {
		t.Errorf("expected one more 404 fetch, got %f", got)
	}
	if got := testutil.ToFloat64(fetchesTotal.WithLabelValues("error")); got != failed+1 {
		t.Errorf("expected one more failed fetch, got %f", got)
	}
	if got := testutil.ToFloat64(fetchBytesTotal); got != fetched+12 {
		t.Errorf("expected 12 more bytes, got %f", got)
	}
	if n := testutil.CollectAndCount(fetchesTotal); n > 8 {
		t.Errorf("fetch series should be bounded by status codes, got %d", n)
	}

	ObserveWellKnownProbe("miss")
	if got := testutil.ToFloat64(wellKnownProbesTotal.WithLabelValues("miss")); got < 1 {
		t.Errorf("expected a well-known miss, got %f", got)
	}

	ObserveFetchDuration("colly", 20*time.Millisecond)
	if n := testutil.CollectAndCount(fetchDurationSeconds); n == 0 {
		t.Error("expected fetch duration to be observed")
	}

	ObserveHeadlessPromotion("rendered")
	if got := testutil.ToFloat64(headlessPromotionsTotal.WithLabelValues("rendered")); got < 1 {
		t.Errorf("expected a headless promotion, got %f", got)
	}

	ObserveRateLimitDelay(150 * time.Millisecond)
	if n := testutil.CollectAndCount(rateLimitDelaySeconds, "manifest_rate_limit_delay_seconds"); n != 1 {
		t.Errorf("expected a single rate limit delay series, got %d", n)
	}

	IncHeadlessSessions()
	DecHeadlessSessions()
	if got := testutil.ToFloat64(headlessActiveSessions); got != 0 {
		t.Errorf("expected no active headless sessions, got %f", got)
	}
}
