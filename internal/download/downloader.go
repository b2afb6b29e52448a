package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/hash/sha256"
	"github.com/JakeFAU/dataset-importer/internal/metrics"
)

const maxRedirects = 5

// Config configures a Downloader.
type Config struct {
	// ConnectTimeout bounds TCP dial; zero uses DefaultConnectTimeout.
	ConnectTimeout time.Duration
	UserAgent      string
	// TempDir is where temp files are created; empty uses os.TempDir.
	TempDir string
	Logger  *zap.Logger
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
	// Limiter throttles attempts per host; nil disables throttling.
	Limiter Limiter
}

// Limiter blocks until a request to rawURL may be sent.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Downloader fetches URLs into temp files with retries.
type Downloader struct {
	client    *http.Client
	userAgent string
	tempDir   string
	logger    *zap.Logger
	hasher    *sha256.Hasher
	limiter   Limiter

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(time.Duration) time.Duration
}

// New constructs a Downloader.
func New(cfg Config) *Downloader {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.Client
	if client == nil {
		client = newHTTPClient(cfg.ConnectTimeout)
	}
	return &Downloader{
		client:    client,
		userAgent: cfg.UserAgent,
		tempDir:   cfg.TempDir,
		logger:    logger.Named("download"),
		hasher:    sha256.New(),
		limiter:   cfg.Limiter,
		sleep:     sleepContext,
		jitter:    randomJitter,
	}
}

func newHTTPClient(connectTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	return &http.Client{
		Transport:     transport,
		CheckRedirect: checkRedirect,
	}
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > maxRedirects {
		return ErrTooManyRedirects
	}
	switch req.URL.Scheme {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
	}
}

// Fetch downloads rawURL into a temp file, retrying up to opts.MaxRetries times.
// On success the caller owns the returned Artifact and must Remove it.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, opts Options) (*Artifact, error) {
	opts = opts.normalized()
	attempts := opts.MaxRetries + 1
	logger := d.logger.With(zap.String("url", rawURL), zap.String("label", opts.Label))

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := backoff(opts.RetryDelay, attempt-1, d.jitter)
			logger.Warn("retrying download",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Duration("backoff", wait),
				zap.Error(lastErr),
			)
			if err := d.sleep(ctx, wait); err != nil {
				return nil, &Error{URL: rawURL, Attempts: attempt - 1, Err: errors.Join(lastErr, err)}
			}
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx, rawURL); err != nil {
				return nil, &Error{URL: rawURL, Attempts: attempt - 1, Err: errors.Join(lastErr, err)}
			}
		}

		start := time.Now()
		artifact, err := d.attempt(ctx, rawURL, opts)
		if err == nil {
			artifact.Attempts = attempt
			metrics.ObserveDownloadAttempt(rawURL, "success", artifact.Size, time.Since(start))
			logger.Info("download complete",
				zap.Int("attempt", attempt),
				zap.Int64("bytes", artifact.Size),
				zap.String("sha256", artifact.SHA256),
				zap.Duration("duration", time.Since(start)),
			)
			return artifact, nil
		}
		metrics.ObserveDownloadAttempt(rawURL, outcomeFor(err), 0, time.Since(start))
		lastErr = err
		if ctx.Err() != nil {
			return nil, &Error{URL: rawURL, Attempts: attempt, Err: err}
		}
	}
	logger.Error("download failed", zap.Int("attempts", attempts), zap.Error(lastErr))
	return nil, &Error{URL: rawURL, Attempts: attempts, Err: lastErr}
}

func (d *Downloader) attempt(ctx context.Context, rawURL string, opts Options) (artifact *Artifact, err error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range opts.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if d.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully consumed or abandoned
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	f, err := os.CreateTemp(d.tempDir, opts.Label+"_data_*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	digest := d.hasher.NewStream()
	size, copyErr := io.Copy(io.MultiWriter(f, digest), resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("write body: %w", copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close temp file: %w", closeErr)
	}
	if size < opts.MinFileSizeBytes {
		return nil, &SizeError{Size: size, Min: opts.MinFileSizeBytes}
	}
	sum := digest.Sum()
	if opts.ExpectedSHA256 != "" && !sha256.Equal(opts.ExpectedSHA256, sum) {
		return nil, &ChecksumError{Want: opts.ExpectedSHA256, Got: sum}
	}

	return &Artifact{URL: rawURL, Path: path, Size: size, SHA256: sum}, nil
}

func outcomeFor(err error) string {
	var statusErr *StatusError
	var sizeErr *SizeError
	var sumErr *ChecksumError
	switch {
	case errors.As(err, &statusErr):
		return "status"
	case errors.As(err, &sizeErr):
		return "too_small"
	case errors.As(err, &sumErr):
		return "checksum"
	default:
		return "error"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
