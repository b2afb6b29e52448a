// Package storage archives downloaded payloads in a blob store so a run can be
// audited or replayed later.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// BlobStore persists an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Payload is a downloaded file to archive.
type Payload interface {
	Open() (io.ReadCloser, error)
	Digest() string
}

// Archiver stores payloads under <prefix>/<source>/<run_id>/<sha256>.json.
type Archiver struct {
	blobs  BlobStore
	prefix string
	runID  string
}

// NewArchiver binds a blob store to one run.
func NewArchiver(blobs BlobStore, prefix, runID string) (*Archiver, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	return &Archiver{blobs: blobs, prefix: strings.Trim(prefix, "/"), runID: runID}, nil
}

// Key returns the object path for a payload of source with the given digest.
func (a *Archiver) Key(source, digest string) string {
	return path.Join(a.prefix, source, a.runID, digest+".json")
}

// Archive copies payload into the blob store and returns its URI.
func (a *Archiver) Archive(ctx context.Context, source string, payload Payload) (string, error) {
	if payload.Digest() == "" {
		return "", fmt.Errorf("archive %s: payload has no digest", source)
	}
	r, err := payload.Open()
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", source, err)
	}
	defer r.Close() //nolint:errcheck // read-only handle

	uri, err := a.blobs.PutObject(ctx, a.Key(source, payload.Digest()), "application/json", r)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", source, err)
	}
	return uri, nil
}
