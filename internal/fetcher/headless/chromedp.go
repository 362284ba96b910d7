// Package headless contains fetchers that render documents in a browser so
// manifest links injected by JavaScript are visible.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/fetch-manifest/internal/manifest"
	"github.com/JakeFAU/fetch-manifest/internal/metrics"
)

const (
	defaultNavTimeout  = 25 * time.Second
	defaultSettleDelay = 500 * time.Millisecond
	linkPollInterval   = 100 * time.Millisecond

	// manifestLinkProbe reports whether the live DOM declares a manifest.
	manifestLinkProbe = `!!document.querySelector('link[rel~="manifest" i][href]')`
	bodyTextProbe     = `document.body ? document.body.innerText : ""`
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay bounds how long to wait after the body is ready for
	// scripts to insert <link rel="manifest">. The wait ends early once the
	// link appears.
	SettleDelay time.Duration
	// MaxBodyBytes fails fetches whose serialized DOM is larger; 0 disables
	// the check.
	MaxBodyBytes int
}

// Fetcher implements manifest.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with a headless browser and returns the rendered DOM. The
// status and headers come from the main document response.
func (f *Fetcher) Fetch(ctx context.Context, request manifest.FetchRequest) (manifest.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return manifest.FetchResponse{}, err
	}
	defer f.release()
	metrics.IncHeadlessSessions()
	defer metrics.DecHeadlessSessions()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)
	var guard *hostGuard
	if request.AllowHost != nil {
		guard = &hostGuard{allow: request.AllowHost}
		chromedp.ListenTarget(taskCtx, guard.listen(taskCtx))
	}

	start := time.Now()
	snap, err := f.render(taskCtx, request, guard)
	metrics.ObserveFetchDuration("headless", time.Since(start))
	if guard != nil && guard.documentBlocked.Load() {
		return manifest.FetchResponse{}, &manifest.FetchError{URL: request.URL, Err: manifest.ErrHostBlocked}
	}
	if err != nil {
		return manifest.FetchResponse{}, &manifest.FetchError{URL: request.URL, Err: err}
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(request.URL, snap.finalURL)
	if headers == nil {
		headers = http.Header{}
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return manifest.FetchResponse{}, &manifest.FetchError{URL: request.URL, StatusCode: status}
	}

	body := []byte(snap.body)
	if f.cfg.MaxBodyBytes > 0 && len(body) > f.cfg.MaxBodyBytes {
		return manifest.FetchResponse{}, &manifest.FetchError{
			URL: request.URL,
			Err: fmt.Errorf("%w: rendered %d bytes, limit %d", manifest.ErrResponseTooLarge, len(body), f.cfg.MaxBodyBytes),
		}
	}
	if snap.html {
		// The DOM is re-serialized as UTF-8 regardless of the wire charset.
		headers.Set("Content-Type", "text/html; charset=utf-8")
	}

	return manifest.FetchResponse{
		URL:          responseURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         body,
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

// snapshot is what render reads back from the page.
type snapshot struct {
	body     string
	finalURL string
	html     bool
}

func (f *Fetcher) render(ctx context.Context, request manifest.FetchRequest, guard *hostGuard) (snapshot, error) {
	var snap snapshot
	actions := []chromedp.Action{
		f.networkSetupAction(request.Headers, guard != nil),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		f.readDocument(&snap),
		chromedp.Location(&snap.finalURL),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return snapshot{}, fmt.Errorf("chromedp run: %w", err)
	}
	return snap, nil
}

// readDocument serializes HTML documents once a manifest link appears (or
// the settle delay passes). Other documents, such as a manifest rendered by
// the browser's JSON viewer, yield their text content.
func (f *Fetcher) readDocument(snap *snapshot) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var contentType string
		if err := chromedp.Evaluate(`document.contentType`, &contentType).Do(ctx); err != nil {
			return fmt.Errorf("read content type: %w", err)
		}
		snap.html = strings.Contains(strings.ToLower(contentType), "html")
		if !snap.html {
			if err := chromedp.Evaluate(bodyTextProbe, &snap.body).Do(ctx); err != nil {
				return fmt.Errorf("read body text: %w", err)
			}
			return nil
		}
		if err := f.waitForManifestLink().Do(ctx); err != nil {
			return err
		}
		if err := chromedp.OuterHTML("html", &snap.body, chromedp.ByQuery).Do(ctx); err != nil {
			return fmt.Errorf("serialize document: %w", err)
		}
		return nil
	})
}

// waitForManifestLink polls the DOM until a manifest link shows up or the
// settle delay runs out. Pages that never declare one cost the full delay.
func (f *Fetcher) waitForManifestLink() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		deadline := time.Now().Add(f.settleDelay())
		for {
			var found bool
			if err := chromedp.Evaluate(manifestLinkProbe, &found).Do(ctx); err != nil {
				return fmt.Errorf("probe manifest link: %w", err)
			}
			if found || !time.Now().Before(deadline) {
				return nil
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("wait for manifest link: %w", ctx.Err())
			case <-time.After(linkPollInterval):
			}
		}
	})
}

func (f *Fetcher) networkSetupAction(headers http.Header, intercept bool) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if intercept {
			if err := fetch.Enable().Do(ctx); err != nil {
				return fmt.Errorf("enable request interception: %w", err)
			}
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

// hostGuard holds every browser request until its host is checked. Requests
// to disallowed hosts, redirect hops included, fail before they are sent.
type hostGuard struct {
	allow           func(host string) bool
	documentBlocked atomic.Bool
}

func (g *hostGuard) listen(ctx context.Context) func(any) {
	return func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		// Commands cannot be issued from the listener goroutine.
		go g.decide(ctx, paused)
	}
}

func (g *hostGuard) decide(ctx context.Context, ev *fetch.EventRequestPaused) {
	target := chromedp.FromContext(ctx).Target
	if target == nil {
		return
	}
	execCtx := cdp.WithExecutor(ctx, target)
	if ev.Request != nil && !g.permits(ev.Request.URL) {
		if ev.ResourceType == network.ResourceTypeDocument {
			g.documentBlocked.Store(true)
		}
		_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
		return
	}
	_ = fetch.ContinueRequest(ev.RequestID).Do(execCtx)
}

// permits allows URLs without a host, such as data: and about:blank.
func (g *hostGuard) permits(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "" || g.allow(host)
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.headers.Clone(), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, location := m.snapshot()
	switch {
	case location != "":
	case finalURL != "":
		location = finalURL
	default:
		location = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, location
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

func (f *Fetcher) settleDelay() time.Duration {
	if f.cfg.SettleDelay > 0 {
		return f.cfg.SettleDelay
	}
	return defaultSettleDelay
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
