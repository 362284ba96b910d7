package collyfetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/fetch-manifest/internal/manifest"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestContextTransportRejectsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	transport := &contextTransport{ctx: ctx, base: roundTripFunc(func(*http.Request) (*http.Response, error) {
		called = true
		return nil, nil
	})}

	_, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://example.com/", nil))
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestContextTransportPropagatesCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var seen context.Context
	transport := &contextTransport{ctx: ctx, base: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		seen = req.Context()
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok"))}, nil
	})}

	resp, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://example.com/", nil))
	require.NoError(t, err)
	require.NoError(t, seen.Err())

	cancel()
	<-seen.Done()
	assert.ErrorIs(t, seen.Err(), context.Canceled)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, resp.Body.Close())
}

func TestContextTransportNilRequest(t *testing.T) {
	t.Parallel()

	transport := &contextTransport{ctx: context.Background(), base: http.DefaultTransport}
	_, err := transport.RoundTrip(nil)
	require.Error(t, err)
}

func TestContextTransportCarriesCallerSpan(t *testing.T) {
	t.Parallel()

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var seen trace.SpanContext
	transport := &contextTransport{ctx: ctx, base: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		seen = trace.SpanContextFromContext(req.Context())
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(""))}, nil
	})}

	resp, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://example.com/", nil))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, sc.TraceID(), seen.TraceID())
}

func TestContextTransportRefusesDisallowedHost(t *testing.T) {
	t.Parallel()

	called := false
	transport := &contextTransport{
		ctx: context.Background(),
		base: roundTripFunc(func(*http.Request) (*http.Response, error) {
			called = true
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok"))}, nil
		}),
		allow: func(host string) bool { return host != "metadata.internal" },
	}

	_, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "http://metadata.internal/latest", nil))
	require.ErrorIs(t, err, manifest.ErrHostBlocked)
	assert.False(t, called)

	resp, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://example.com/", nil))
	require.NoError(t, err)
	assert.True(t, called)
	require.NoError(t, resp.Body.Close())
}
