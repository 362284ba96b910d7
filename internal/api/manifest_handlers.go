package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/fetch-manifest/internal/hash/sha256"
	"github.com/JakeFAU/fetch-manifest/internal/manifest"
)

// Hasher digests response bodies for ETags.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// ManifestHandler exposes the manifest resolution endpoints.
type ManifestHandler struct {
	resolver ManifestResolver
	validate *validator.Validate
	hasher   Hasher
	logger   *zap.Logger
}

// NewManifestHandler wires the resolver and logger.
func NewManifestHandler(resolver ManifestResolver, logger *zap.Logger) *ManifestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManifestHandler{
		resolver: resolver,
		validate: newValidator(),
		hasher:   sha256.New(),
		logger:   logger,
	}
}

// GetManifest handles GET /manifest?url=. It returns the normalized manifest
// on success, 400 when url is missing or not http(s), and 400 with the
// upstream status code (or the error text) when resolution fails.
// "/manifest?https://example.com" is accepted as shorthand for url=.
func (h *ManifestHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	q := manifestQuery{URL: r.URL.Query().Get("url")}
	if q.URL == "" && r.URL.RawQuery != "" {
		if fixed, ok := FixManifestURL("", r.URL.RawQuery); ok {
			q.URL = fixed
		}
	}
	if err := h.validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	h.resolve(w, r, q.URL)
}

// GetManifestByPath handles GET /manifest/<url>, where <url> may omit its
// scheme. It returns 400 when no URL can be recovered from the path.
func (h *ManifestHandler) GetManifestByPath(w http.ResponseWriter, r *http.Request) {
	target, ok := FixManifestURL(r.URL.Path, r.URL.RawQuery)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}
	h.resolve(w, r, target)
}

func (h *ManifestHandler) resolve(w http.ResponseWriter, r *http.Request, target string) {
	if h.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "resolver unavailable")
		return
	}
	m, err := h.resolver.Resolve(r.Context(), target, "")
	if err != nil {
		h.logger.Warn("manifest resolution failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("url", target),
			zap.Error(err),
		)
		writeError(w, http.StatusBadRequest, errorMessage(err))
		return
	}
	h.logger.Debug("manifest resolved",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("url", target),
		zap.Bool("unparsed", m.Unparsed()),
	)
	h.writeManifest(w, r, m)
}

// writeManifest sends m with a strong ETag and answers a matching
// If-None-Match with 304.
func (h *ManifestHandler) writeManifest(w http.ResponseWriter, r *http.Request, m *manifest.Manifest) {
	body, err := json.Marshal(m)
	if err != nil {
		h.logger.Error("encode manifest failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode manifest")
		return
	}
	if digest, err := h.hasher.Hash(body); err == nil {
		etag := `"` + digest + `"`
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append(body, '\n')); err != nil {
		h.logger.Debug("write manifest failed", zap.Error(err))
	}
}

// errorMessage reports upstream HTTP failures by status code alone.
func errorMessage(err error) string {
	if code := manifest.StatusCode(err); code > 0 {
		return strconv.Itoa(code)
	}
	return err.Error()
}
