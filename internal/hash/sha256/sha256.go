// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// Hasher produces hex-encoded SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// NewStream returns a writer that hashes everything written to it.
func (h *Hasher) NewStream() *Stream {
	return &Stream{h: sha256.New()}
}

// HashFile streams the file at path through SHA-256.
func (h *Hasher) HashFile(path string) (string, error) {
	// #nosec G304 -- path comes from the importer's own temp files.
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle
	s := h.NewStream()
	if _, err := io.Copy(s, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return s.Sum(), nil
}

// Stream accumulates a digest incrementally.
type Stream struct {
	h hash.Hash
}

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	return s.h.Write(p)
}

// Sum returns the hex digest of everything written so far.
func (s *Stream) Sum() string {
	return hex.EncodeToString(s.h.Sum(nil))
}

// Equal compares two hex digests case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
