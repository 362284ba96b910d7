// Package resolver classifies fetched or supplied content and drives the
// fetch chain that ends in a normalized manifest: manifest link discovery,
// the https to http retry, and then either well-known path probing or
// synthesis from document metadata.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/fetch-manifest/internal/manifest"
	"github.com/JakeFAU/fetch-manifest/internal/metrics"
	"github.com/JakeFAU/fetch-manifest/internal/synthetic"
)

const (
	defaultMaxHops = 5
	acceptHeader   = "application/manifest+json, application/json;q=0.9, text/html;q=0.8, */*;q=0.5"
	tracerName     = "github.com/JakeFAU/fetch-manifest/internal/resolver"
)

// Config controls the resolution chain.
type Config struct {
	// MaxHops bounds how many documents and manifests a single resolution
	// may chain through. Retries and well-known probes do not count.
	MaxHops int
	// ProbeWellKnown enables guessing conventional manifest filenames when a
	// document declares no manifest.
	ProbeWellKnown bool
	// Synthesize builds a manifest from document metadata when nothing else
	// was found.
	Synthesize     bool
	WellKnownPaths []string
}

// DefaultConfig returns the standard resolution settings.
func DefaultConfig() Config {
	return Config{
		MaxHops:        defaultMaxHops,
		Synthesize:     true,
		WellKnownPaths: append([]string(nil), DefaultWellKnownPaths...),
	}
}

// Resolver turns URLs or raw content into normalized manifests. It holds no
// per-request state and is safe for concurrent use.
type Resolver struct {
	fetcher manifest.Fetcher
	parser  manifest.DocumentParser
	cfg     Config
	logger  *zap.Logger
}

// New builds a Resolver. A nil logger disables logging.
func New(fetcher manifest.Fetcher, parser manifest.DocumentParser, cfg Config, logger *zap.Logger) *Resolver {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = defaultMaxHops
	}
	if cfg.WellKnownPaths == nil {
		cfg.WellKnownPaths = append([]string(nil), DefaultWellKnownPaths...)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		fetcher: fetcher,
		parser:  parser,
		cfg:     cfg,
		logger:  logger,
	}
}

// IsRemote reports whether input is an http or https URL.
func IsRemote(input string) bool {
	input = strings.ToLower(strings.TrimSpace(input))
	return strings.HasPrefix(input, "http:") || strings.HasPrefix(input, "https:")
}

// Resolve fetches input when it is an http(s) URL and otherwise treats it as
// raw content. docURL, when known, names the document that referenced the
// manifest.
func (r *Resolver) Resolve(ctx context.Context, input, docURL string) (*manifest.Manifest, error) {
	if !IsRemote(input) {
		return r.ResolveContent(ctx, input, docURL)
	}
	target := strings.TrimSpace(input)
	ctx, rn := r.newRun(ctx, "resolver.Resolve", attribute.String("manifest.input", target))
	m, err := rn.resolveRemote(ctx, target, docRef{url: docURL, finalURL: docURL})
	return rn.finish(m, err)
}

// ResolveContent classifies and resolves content that is already in hand:
// JSON or HTML text, or a decoded manifest object.
func (r *Resolver) ResolveContent(ctx context.Context, content any, docURL string) (*manifest.Manifest, error) {
	ctx, rn := r.newRun(ctx, "resolver.ResolveContent", attribute.String("manifest.content_type", fmt.Sprintf("%T", content)))
	doc := docRef{url: docURL, finalURL: docURL}
	var (
		m   *manifest.Manifest
		err error
	)
	switch v := content.(type) {
	case map[string]any:
		rn.outcome = metrics.OutcomeManifest
		m, err = manifest.NormalizeAt(v, manifest.Locations{DocumentURL: docURL})
	case string:
		m, err = rn.handle(ctx, []byte(v), "", source{}, doc)
	case []byte:
		m, err = rn.handle(ctx, v, "", source{}, doc)
	case json.RawMessage:
		m, err = rn.handle(ctx, v, "", source{}, doc)
	default:
		err = fmt.Errorf("%w: unsupported content %T", manifest.ErrMalformedManifest, content)
	}
	return rn.finish(m, err)
}

// docRef identifies the document a manifest is being resolved for.
type docRef struct {
	url      string
	finalURL string
	html     string
}

// source describes where a body came from; zero for supplied content.
type source struct {
	requestURL string
	finalURL   string
}

func (s source) remote() bool { return s.requestURL != "" }

// run carries the state of one resolution.
type run struct {
	*Resolver
	hops    int
	outcome string
	span    trace.Span
}

func (r *Resolver) newRun(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *run) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &run{Resolver: r, span: span}
}

func (r *run) finish(m *manifest.Manifest, err error) (*manifest.Manifest, error) {
	defer r.span.End()
	r.span.SetAttributes(attribute.Int("manifest.hops", r.hops))
	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
		metrics.ObserveResolution(metrics.OutcomeError)
		return nil, err
	}
	r.span.SetAttributes(attribute.String("manifest.outcome", r.outcome))
	metrics.ObserveResolution(r.outcome)
	return m, nil
}

func (r *run) resolveRemote(ctx context.Context, target string, doc docRef) (*manifest.Manifest, error) {
	if r.hops >= r.cfg.MaxHops {
		return nil, fmt.Errorf("resolve %s: hop limit %d reached: %w",
			target, r.cfg.MaxHops, manifest.ErrManifestNotFound)
	}
	r.hops++
	resp, requested, err := r.fetchWithFallback(ctx, target)
	if err != nil {
		return nil, err
	}
	return r.handle(ctx, resp.Body, resp.Headers.Get("Content-Type"), source{requestURL: requested, finalURL: resp.URL}, doc)
}

func (r *run) handle(ctx context.Context, body []byte, contentType string, src source, doc docRef) (*manifest.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	cls := Classify(body, contentType)
	r.logger.Debug("classified content",
		zap.String("url", src.requestURL),
		zap.Stringer("kind", cls.Kind),
		zap.Int("bytes", len(body)),
	)

	switch cls.Kind {
	case KindManifest:
		if r.outcome == "" {
			r.outcome = metrics.OutcomeManifest
		}
		return manifest.NormalizeAt(cls.Manifest, manifest.Locations{
			ManifestURL:      src.requestURL,
			FinalManifestURL: src.finalURL,
			DocumentURL:      doc.url,
			FinalDocumentURL: doc.finalURL,
		})
	case KindDocument:
		if src.remote() {
			doc = docRef{url: src.requestURL, finalURL: src.finalURL}
		}
		doc.html = string(body)
		return r.handleDocument(ctx, body, contentType, doc)
	default:
		r.outcome = metrics.OutcomeUnparsed
		docURL, finalDocURL := doc.url, doc.finalURL
		if src.remote() {
			docURL, finalDocURL = src.requestURL, src.finalURL
		}
		return manifest.Unparsed(string(body), doc.html, docURL, finalDocURL), nil
	}
}

func (r *run) handleDocument(ctx context.Context, body []byte, contentType string, doc docRef) (*manifest.Manifest, error) {
	parsed, err := r.parser.Parse(body, contentType)
	if err != nil {
		return nil, fmt.Errorf("parse document %s: %w", doc.finalURL, err)
	}

	if href := lastManifestLink(parsed); href != "" {
		target := manifest.ResolveURL(doc.finalURL, href)
		if IsRemote(target) {
			r.logger.Debug("following manifest link",
				zap.String("document", doc.finalURL), zap.String("manifest", target))
			r.outcome = metrics.OutcomeLinked
			return r.resolveRemote(ctx, target, doc)
		}
		r.logger.Debug("manifest link is not fetchable", zap.String("href", href))
	}

	// The probing variant ends here: no guessed path means no manifest.
	if r.cfg.ProbeWellKnown {
		m, err := r.probeWellKnown(ctx, doc)
		if err != nil {
			r.logger.Debug("well-known probing found nothing", zap.Error(err))
			return nil, err
		}
		return m, nil
	}

	if !r.cfg.Synthesize {
		return nil, fmt.Errorf("document %s declares no manifest: %w", doc.finalURL, manifest.ErrManifestNotFound)
	}
	r.logger.Debug("synthesizing manifest from document metadata", zap.String("document", doc.finalURL))
	r.outcome = metrics.OutcomeSynthesized
	raw := synthetic.Generate(parsed, doc.finalURL)
	return manifest.NormalizeSynthetic(raw, doc.url, doc.finalURL), nil
}

// lastManifestLink returns the href of the last manifest link with a
// non-blank href; later declarations override earlier ones.
func lastManifestLink(doc manifest.Document) string {
	links := doc.Query(`link[rel~="manifest"]`)
	for i := len(links) - 1; i >= 0; i-- {
		if href, ok := links[i].Attr("href"); ok && strings.TrimSpace(href) != "" {
			return strings.TrimSpace(href)
		}
	}
	return ""
}

// fetchWithFallback fetches target, retrying once over http when an https
// URL answers 404. It returns the URL that produced the response.
func (r *run) fetchWithFallback(ctx context.Context, target string) (manifest.FetchResponse, string, error) {
	resp, err := r.fetch(ctx, target)
	if err == nil {
		return resp, target, nil
	}
	if !manifest.IsNotFound(err) || !strings.HasPrefix(strings.ToLower(target), "https:") {
		return manifest.FetchResponse{}, "", err
	}
	fallback := "http:" + target[len("https:"):]
	r.logger.Info("retrying over http after 404",
		zap.String("url", target), zap.String("fallback", fallback))
	metrics.ObserveProtocolFallback()
	resp, err = r.fetch(ctx, fallback)
	if err != nil {
		return manifest.FetchResponse{}, "", err
	}
	return resp, fallback, nil
}

func (r *run) fetch(ctx context.Context, target string) (manifest.FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return manifest.FetchResponse{}, fmt.Errorf("fetch %s: %w", target, err)
	}
	r.logger.Debug("fetching", zap.String("url", target), zap.Int("hop", r.hops))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolver.fetch",
		trace.WithAttributes(attribute.String("url.full", target)))
	defer span.End()
	resp, err := r.fetcher.Fetch(ctx, manifest.FetchRequest{
		URL:     target,
		Headers: http.Header{"Accept": {acceptHeader}},
	})
	if err != nil {
		var fetchErr *manifest.FetchError
		if !errors.As(err, &fetchErr) {
			err = &manifest.FetchError{URL: target, Err: err}
		}
		metrics.ObserveFetch(manifest.StatusCode(err), 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return manifest.FetchResponse{}, err
	}
	metrics.ObserveFetch(resp.StatusCode, len(resp.Body))
	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.Bool("fetch.headless", resp.UsedHeadless),
	)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return manifest.FetchResponse{}, &manifest.FetchError{URL: target, StatusCode: resp.StatusCode}
	}
	if resp.URL == "" {
		resp.URL = target
	}
	return resp, nil
}
