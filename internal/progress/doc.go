// Package progress carries import run milestones from importers to pluggable
// sinks. Importers report through an Observer adapter that turns lifecycle
// callbacks into Events; a non-blocking Hub batches them on a background
// goroutine and fans them out to sinks such as logs, Prometheus, Postgres,
// Redis, Pub/Sub or a Telegram chat.
package progress
