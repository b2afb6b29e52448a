package download

import (
	"errors"
	"fmt"
)

// ErrTooManyRedirects is returned when a response redirects more than maxRedirects times.
var ErrTooManyRedirects = errors.New("stopped after 5 redirects")

// Error reports that every attempt to download URL failed.
type Error struct {
	URL      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("download %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %s", e.Status)
}

// SizeError reports a downloaded file smaller than the configured minimum.
type SizeError struct {
	Size int64
	Min  int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("downloaded file is too small: %d bytes, want at least %d", e.Size, e.Min)
}

// ChecksumError reports a digest mismatch against the expected SHA-256.
type ChecksumError struct {
	Want string
	Got  string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("sha256 mismatch: want %s, got %s", e.Want, e.Got)
}
