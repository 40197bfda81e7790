// Package tempdir provides a scratch directory that is removed when the
// session using it ends.
package tempdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Dir is a temporary directory owned by one encode or decode session
type Dir struct {
	path   string
	closed bool
}

// New creates a directory under the system temp directory whose name starts
// with prefix. The caller must Close it.
func New(prefix string) (*Dir, error) {
	path, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// Join returns name inside the directory.
func (d *Dir) Join(name string) string {
	return filepath.Join(d.path, name)
}

// Close removes the directory and everything in it. Calling Close again is a
// no-op.
func (d *Dir) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := os.RemoveAll(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithFields(logrus.Fields{
			"function": "Dir.Close",
			"path":     d.path,
			"error":    err.Error(),
		}).Warn("Failed to remove temp directory")
		return fmt.Errorf("failed to remove temp directory: %w", err)
	}
	return nil
}
