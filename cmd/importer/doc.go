// Package main hosts the importer entrypoint.
//
// Architecture overview:
//   - Commands: `import` runs the enabled sources (or those named with --source) once and exits non-zero when a
//     source fails; `list` prints the configured sources; `serve` starts the ops API, which can also trigger runs.
//   - Pipeline: each source importer downloads its payloads through internal/download (retries with backoff,
//     size and checksum checks, temp files removed on every exit path), decodes them, and hands row chunks to
//     internal/batch. A chunk is one Postgres transaction; when it fails the records are retried one by one and
//     permanent failures go to the dead-letter log.
//   - Progress: importer lifecycle callbacks become progress events. The hub batches them for the sinks: logs,
//     Prometheus, the import_runs ledger, Redis, Pub/Sub and Telegram, each enabled by configuration.
//   - Configuration: Viper reads an optional file and IMPORTER_* environment variables (IMPORTER_DB_DSN,
//     IMPORTER_SOURCES_QURAN_URL, ...). zap provides structured logging.
//
// Operational notes:
//   - Runs are sequential and one at a time; the API answers 409 while a run is active.
//   - SIGINT/SIGTERM stop a run between chunks. A chunk that has started always commits or rolls back.
//   - runtime.max_execution_seconds bounds the whole run; runtime.memory_limit_bytes sets the soft memory limit.
package main
