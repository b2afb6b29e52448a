// Package metrics exposes Prometheus collectors for the importer.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	downloadAttemptsTotal      *prometheus.CounterVec
	downloadBytesTotal         *prometheus.CounterVec
	downloadDurationSeconds    *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	chunksTotal                *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		downloadAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_download_attempts_total",
				Help: "Download attempts, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)

		downloadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_download_bytes_total",
				Help: "Bytes written to temp files by successful downloads, labeled by host.",
			},
			[]string{"host"},
		)

		downloadDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "importer_download_duration_seconds",
				Help:    "Duration of single download attempts, labeled by host.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"host"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "importer_rate_limit_delay_seconds",
				Help:    "Time downloads waited for a per-host rate limit token.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		chunksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_chunks_total",
				Help: "Chunk transactions, labeled by chunk label and outcome.",
			},
			[]string{"label", "outcome"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_records_total",
				Help: "Records processed, labeled by chunk label and outcome.",
			},
			[]string{"label", "outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDownloadAttempt records one download attempt.
func ObserveDownloadAttempt(rawURL, outcome string, bytesWritten int64, duration time.Duration) {
	Init()
	host := SanitizeHost(rawURL)
	downloadAttemptsTotal.WithLabelValues(host, outcome).Inc()
	downloadDurationSeconds.WithLabelValues(host).Observe(duration.Seconds())
	if outcome == "success" && bytesWritten > 0 {
		downloadBytesTotal.WithLabelValues(host).Add(float64(bytesWritten))
	}
}

// ObserveRateLimitDelay records time spent waiting on the per-host limiter.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveChunk records one chunk transaction outcome.
func ObserveChunk(label, outcome string) {
	Init()
	chunksTotal.WithLabelValues(label, outcome).Inc()
}

// ObserveRecords adds n records with the given outcome.
func ObserveRecords(label, outcome string, n int) {
	if n <= 0 {
		return
	}
	Init()
	recordsTotal.WithLabelValues(label, outcome).Add(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
