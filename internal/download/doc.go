// Package download fetches remote datasets into temporary files. Each attempt
// streams the response body to disk, validates its size (and optionally its
// SHA-256 digest) and retries with jittered exponential backoff. A successful
// Fetch hands ownership of exactly one temp file to the returned Artifact; a
// failed Fetch leaves nothing on disk.
package download
