package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/fetch-manifest/internal/config"
	"github.com/JakeFAU/fetch-manifest/internal/manifest"
	"github.com/JakeFAU/fetch-manifest/internal/metrics"
)

// ManifestResolver resolves a URL or raw content into a normalized manifest.
type ManifestResolver interface {
	Resolve(ctx context.Context, input, docURL string) (*manifest.Manifest, error)
}

// IDGenerator issues request IDs.
type IDGenerator interface {
	NewID() (string, error)
}

const notFoundPage = "404.html"

// Server wires HTTP handlers to the resolver.
type Server struct {
	router    chi.Router
	manifests *ManifestHandler
	publicDir string
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	resolver ManifestResolver,
	idGen IDGenerator,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		manifests: NewManifestHandler(resolver, logger.Named("manifest")),
		publicDir: cfg.Server.PublicDir,
		logger:    logger,
	}
	r := chi.NewRouter()
	if cfg.Telemetry.TracingEnabled {
		r.Use(otelhttp.NewMiddleware(cfg.Telemetry.ServiceName))
	}
	r.Use(requestIDMiddleware(idGen, logger))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	if cfg.Server.CORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
	r.Use(timeoutMiddleware(cfg.RequestTimeout()))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/manifest", s.manifests.GetManifest)
	r.Get("/manifest/*", s.manifests.GetManifestByPath)
	r.NotFound(s.fallback)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.manifests.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "resolver unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// fallback serves public files first, then treats the path as a loosely
// written manifest URL ("/example.com"), and finally answers 404.
func (s *Server) fallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.serveStatic(w, r) {
		return
	}
	if target, ok := FixManifestURL(r.URL.Path, r.URL.RawQuery); ok {
		s.manifests.resolve(w, r, target)
		return
	}
	s.notFound(w)
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) bool {
	if s.publicDir == "" {
		return false
	}
	name := path.Clean("/" + r.URL.Path)
	full := filepath.Join(s.publicDir, filepath.FromSlash(name))
	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		full = filepath.Join(full, "index.html")
		info, err = os.Stat(full)
	}
	if err != nil || info.IsDir() {
		return false
	}
	http.ServeFile(w, r, full)
	return true
}

func (s *Server) notFound(w http.ResponseWriter) {
	if s.publicDir != "" {
		page := filepath.Join(s.publicDir, notFoundPage)
		if body, err := os.ReadFile(page); err == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			if _, err := w.Write(body); err != nil {
				s.logger.Warn("write 404 page failed", zap.Error(err))
			}
			return
		} else if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("read 404 page failed", zap.Error(err))
		}
	}
	writeError(w, http.StatusNotFound, "not found")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
