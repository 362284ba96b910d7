package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/fetch-manifest/internal/manifest"
)

// contextTransport binds every outgoing request to the caller's context so
// that cancelling a resolution aborts the in-flight fetch. Colly builds its
// own requests and has no other hook for this. The request's own context
// (which carries the client timeout) stays in effect, and the caller's span
// becomes the parent of any client span created below. Colly's redirects
// come back through RoundTrip, so allow sees every hop.
type contextTransport struct {
	ctx   context.Context
	base  http.RoundTripper
	allow func(host string) bool
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("context transport received nil request")
	}
	if err := t.ctx.Err(); err != nil {
		return nil, fmt.Errorf("context transport: %w", err)
	}
	if t.allow != nil && req.URL != nil && !t.allow(req.URL.Hostname()) {
		return nil, fmt.Errorf("request to %s: %w", req.URL.Host, manifest.ErrHostBlocked)
	}
	merged, cancel := context.WithCancel(req.Context())
	if span := trace.SpanFromContext(t.ctx); span.SpanContext().IsValid() {
		merged = trace.ContextWithSpan(merged, span)
	}
	stop := context.AfterFunc(t.ctx, cancel)
	release := func() {
		stop()
		cancel()
	}

	resp, err := t.base.RoundTrip(req.WithContext(merged))
	if err != nil {
		release()
		return nil, fmt.Errorf("context transport roundtrip: %w", err)
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: release}
	return resp, nil
}

// releasingBody frees the merged context once the body is closed.
type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
