// Package sinks implements concrete progress consumers: structured logs,
// Prometheus collectors, the Postgres run ledger, Redis run snapshots, Pub/Sub
// run notifications and a Telegram run report. Each satisfies progress.Sink.
package sinks
