package download

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// Artifact owns one downloaded temp file until Remove is called.
type Artifact struct {
	URL      string
	Path     string
	Size     int64
	SHA256   string
	Attempts int

	removeOnce sync.Once
	removeErr  error
}

// Open opens the temp file for reading.
func (a *Artifact) Open() (io.ReadCloser, error) {
	// #nosec G304 -- path was created by os.CreateTemp.
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

// Digest returns the hex SHA-256 of the payload.
func (a *Artifact) Digest() string {
	return a.SHA256
}

// Remove deletes the temp file. It is safe to call more than once.
func (a *Artifact) Remove() error {
	if a == nil {
		return nil
	}
	a.removeOnce.Do(func() {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.removeErr = fmt.Errorf("remove artifact: %w", err)
		}
	})
	return a.removeErr
}
