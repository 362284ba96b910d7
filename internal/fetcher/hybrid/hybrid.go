// Package hybrid combines a fast HTTP fetcher with a headless browser. Pages
// that look like client-rendered shells are fetched again in the browser so
// that manifest links injected by scripts become visible.
package hybrid

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/fetch-manifest/internal/manifest"
	"github.com/JakeFAU/fetch-manifest/internal/metrics"
)

// Detector decides whether a fast response should be re-rendered.
type Detector interface {
	ShouldPromote(resp manifest.FetchResponse) bool
}

// Fetcher tries Fast first and promotes to Headless when Detector asks for it.
type Fetcher struct {
	fast     manifest.Fetcher
	headless manifest.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New wires a hybrid fetcher. A nil detector uses NewHeuristic(0).
func New(fast, headless manifest.Fetcher, detector Detector, logger *zap.Logger) *Fetcher {
	if detector == nil {
		detector = NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{fast: fast, headless: headless, detector: detector, logger: logger}
}

// Fetch implements manifest.Fetcher. A failed headless render falls back to
// the fast response unless the context is done.
func (f *Fetcher) Fetch(ctx context.Context, request manifest.FetchRequest) (manifest.FetchResponse, error) {
	resp, err := f.fast.Fetch(ctx, request)
	if err != nil {
		return resp, err
	}
	if !f.detector.ShouldPromote(resp) {
		return resp, nil
	}

	f.logger.Debug("promoting to headless", zap.String("url", request.URL), zap.Int("bytes", len(resp.Body)))
	rendered, err := f.headless.Fetch(ctx, request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return manifest.FetchResponse{}, fmt.Errorf("headless fetch %s: %w", request.URL, ctxErr)
		}
		metrics.ObserveHeadlessPromotion("failed")
		f.logger.Warn("headless render failed, using fast response",
			zap.String("url", request.URL), zap.Error(err))
		return resp, nil
	}
	metrics.ObserveHeadlessPromotion("rendered")
	rendered.UsedHeadless = true
	return rendered, nil
}
