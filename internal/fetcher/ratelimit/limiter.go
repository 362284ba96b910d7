// Package ratelimit implements per-host token bucket limits for upstream
// fetches, so that probing and link following stay polite toward a single
// origin.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/fetch-manifest/internal/manifest"
	"github.com/JakeFAU/fetch-manifest/internal/metrics"
)

const defaultMaxHosts = 1024

// Limiter manages per-host rate limits. Only the most recently used hosts
// keep a limiter; an evicted host starts again with a full bucket.
type Limiter struct {
	mu           sync.Mutex
	limiters     *lru.Cache[string, *rate.Limiter]
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration. A non-positive RPS disables
// limiting.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// MaxHosts bounds how many hosts are tracked at once. Defaults to 1024.
	MaxHosts int
}

// New creates a new Limiter.
func New(cfg Config) (*Limiter, error) {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	maxHosts := cfg.MaxHosts
	if maxHosts <= 0 {
		maxHosts = defaultMaxHosts
	}
	limiters, err := lru.New[string, *rate.Limiter](maxHosts)
	if err != nil {
		return nil, fmt.Errorf("rate limiter cache: %w", err)
	}
	return &Limiter{
		limiters:     limiters,
		defaultRate:  r,
		defaultBurst: burst,
	}, nil
}

// Tracked returns how many hosts currently hold a limiter.
func (l *Limiter) Tracked() int { return l.limiters.Len() }

// Wait blocks until a token is available for the URL's host, respecting the
// context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	l.mu.Lock()
	limiter, exists := l.limiters.Get(host)
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters.Add(host, limiter)
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not worth a histogram sample.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Fetcher delays each fetch until its host's limiter grants a token.
type Fetcher struct {
	next    manifest.Fetcher
	limiter *Limiter
}

// Wrap returns next unchanged when limiter is nil.
func Wrap(next manifest.Fetcher, limiter *Limiter) manifest.Fetcher {
	if limiter == nil {
		return next
	}
	return &Fetcher{next: next, limiter: limiter}
}

// Fetch waits for the rate limiter and then delegates.
func (f *Fetcher) Fetch(ctx context.Context, request manifest.FetchRequest) (manifest.FetchResponse, error) {
	if err := f.limiter.Wait(ctx, request.URL); err != nil {
		return manifest.FetchResponse{}, &manifest.FetchError{URL: request.URL, Err: err}
	}
	return f.next.Fetch(ctx, request)
}
