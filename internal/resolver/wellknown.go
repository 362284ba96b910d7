package resolver

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/fetch-manifest/internal/manifest"
	"github.com/JakeFAU/fetch-manifest/internal/metrics"
)

// DefaultWellKnownPaths are the conventional manifest filenames probed, in
// order, when a document declares no manifest.
var DefaultWellKnownPaths = []string{
	"manifest.webmanifest",
	"manifest.json",
	"manifest.webappmanifest",
	"manifest.webapp",
	"webapp.webmanifest",
	"webapp.json",
	"webapp.webappmanifest",
	"webapp.manifest",
}

// originOf returns scheme://host/ for an http(s) URL.
func originOf(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String(), true
}

// probeWellKnown tries each configured path against the document's origin.
// The first probe that fetches successfully and holds a JSON object wins.
func (r *run) probeWellKnown(ctx context.Context, doc docRef) (*manifest.Manifest, error) {
	origin, ok := originOf(doc.finalURL)
	if !ok {
		return nil, fmt.Errorf("probe well-known paths: %w", manifest.ErrManifestNotFound)
	}
	for _, path := range r.cfg.WellKnownPaths {
		target := manifest.ResolveURL(origin, path)
		resp, err := r.fetch(ctx, target)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("probe well-known paths: %w", ctxErr)
			}
			metrics.ObserveWellKnownProbe("miss")
			r.logger.Debug("well-known probe missed", zap.String("url", target), zap.Error(err))
			continue
		}
		cls := Classify(resp.Body, resp.ContentType())
		if cls.Kind != KindManifest {
			metrics.ObserveWellKnownProbe("miss")
			r.logger.Debug("well-known probe not a manifest",
				zap.String("url", target), zap.Stringer("kind", cls.Kind))
			continue
		}
		metrics.ObserveWellKnownProbe("hit")
		r.logger.Info("manifest found at well-known path", zap.String("url", target))
		r.outcome = metrics.OutcomeWellKnown
		return manifest.NormalizeAt(cls.Manifest, manifest.Locations{
			ManifestURL:      target,
			FinalManifestURL: resp.URL,
			DocumentURL:      doc.url,
			FinalDocumentURL: doc.finalURL,
		})
	}
	return nil, fmt.Errorf("probe well-known paths at %s: %w", origin, manifest.ErrManifestNotFound)
}
