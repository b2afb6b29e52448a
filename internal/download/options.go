package download

import (
	"net/http"
	"time"
)

// Defaults applied by DefaultOptions.
const (
	DefaultMaxRetries       = 3
	DefaultTimeout          = 300 * time.Second
	DefaultConnectTimeout   = 30 * time.Second
	DefaultMinFileSizeBytes = 1024
	DefaultRetryDelay       = time.Second
)

// Options tunes a single Fetch.
type Options struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Timeout bounds each attempt, including reading the body.
	Timeout time.Duration
	// MinFileSizeBytes rejects shorter files.
	MinFileSizeBytes int64
	// RetryDelay is the base of the exponential backoff.
	RetryDelay time.Duration
	// Headers are added to every request.
	Headers http.Header
	// ExpectedSHA256 optionally pins the payload digest (hex).
	ExpectedSHA256 string
	// Label names the temp file prefix, e.g. "quran" yields quran_data_*.
	Label string
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries:       DefaultMaxRetries,
		Timeout:          DefaultTimeout,
		MinFileSizeBytes: DefaultMinFileSizeBytes,
		RetryDelay:       DefaultRetryDelay,
	}
}

func (o Options) normalized() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MinFileSizeBytes < 0 {
		o.MinFileSizeBytes = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.Label == "" {
		o.Label = "download"
	}
	return o
}
