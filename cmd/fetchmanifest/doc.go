// Package main hosts the fetchmanifest service and CLI entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes GET /manifest?url=, the loose
//     /manifest/<url> and /<host> forms, health probes and /metrics. The url
//     parameter is validated before the resolver runs.
//   - Resolution: internal/resolver classifies each fetched body as a manifest,
//     an HTML document or neither. Documents are searched for the last
//     <link rel="manifest">. Without one, either well-known manifest filenames
//     are probed at the origin (when enabled) or a manifest is synthesized
//     from the document's metadata. An https URL answering 404 is retried
//     once over http.
//   - Fetch pipeline: the Colly-based fetcher is the default; the chromedp
//     fetcher renders documents whose manifest link is injected by scripts,
//     and the "auto" backend only re-renders pages that look like script
//     shells. Optional decorators apply per-host rate limits and a host
//     blocklist. All bind the caller's context so aborted requests stop
//     fetching.
//   - Normalization: internal/manifest resolves URLs against the final
//     manifest URL, applies member defaults and ranks icons by declared area.
//   - Configuration & plumbing: Viper populates config from env/files; zap
//     provides structured logging; Prometheus metrics are exported via the
//     metrics middleware and /metrics handler; OpenTelemetry spans cover
//     API requests, resolutions and upstream fetches when tracing is on.
//
// Quick checklist:
//   - Configure env vars: FETCH_MANIFEST_SERVER_PORT or PORT, HOST,
//     FETCH_MANIFEST_SERVER_CORS, FETCH_MANIFEST_HTTP_TIMEOUT_SECONDS,
//     FETCH_MANIFEST_FETCHER_BACKEND=colly|headless|auto,
//     FETCH_MANIFEST_RESOLVER_PROBE_WELL_KNOWN,
//     FETCH_MANIFEST_HTTP_RATE_LIMIT_RPS,
//     FETCH_MANIFEST_TELEMETRY_TRACING_ENABLED and
//     FETCH_MANIFEST_TELEMETRY_GCP_PROJECT_ID.
//   - Run locally: go run ./cmd/fetchmanifest serve --config config.yaml
//   - One-off: go run ./cmd/fetchmanifest resolve https://example.com/
package main
