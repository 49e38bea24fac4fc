// Package api hosts the monitor HTTP server, middleware, and read-only
// handlers. Notable routes:
//   - GET /healthz / readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the latest sample of the current run, projected
//     onto the fields the device page displays.
//   - GET /v1/runs/{run_id}/samples and /v1/runs/{run_id}/latest for sample
//     history via the SampleRepository interface.
//
// Browser dashboards on other origins can be allowed with WithCORS.
package api
