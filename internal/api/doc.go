// Package api hosts the HTTP server, middleware, and handlers that front the
// manifest resolver. Notable routes:
//   - GET /manifest?url=<http(s) URL> resolves and returns a normalized
//     manifest, or 400 {"error": ...} when resolution fails.
//   - GET /manifest/<url> and GET /<host>[/path] accept loosely written URLs
//     (missing scheme, bare hosts) and resolve them the same way.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//
// Any other path is served from the configured public directory, if any.
package api
