// Package api hosts the ops HTTP server for the importer. Routes:
//   - GET /healthz and /readyz for probes; /readyz runs the configured checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress and /v1/progress/{run_id} for the live run snapshot.
//   - GET /v1/runs, /v1/runs/{run_id} and /v1/runs/{run_id}/sources for the
//     persisted run ledger via store.RunRepository.
//   - POST /v1/runs to start an import in the background; GET /v1/sources.
package api
