//go:build !windows

package trust

import (
	"errors"
	"io"
	"os"
)

var errNoResources = errors.New("resource tables are only readable on windows")

// FileInspector treats every local file as fixed and has no resource reader.
type FileInspector struct{}

// NewInspector returns the host Inspector.
func NewInspector() Inspector {
	return FileInspector{}
}

// IsLocalFixed implements Inspector.
func (FileInspector) IsLocalFixed(path string) (bool, error) {
	_, err := os.Stat(path)

	return err == nil, err
}

// OpenNoWrite implements Inspector. Advisory locks are not enforced here, so
// the file is only held open.
func (FileInspector) OpenNoWrite(path string) (io.Closer, error) {
	return os.Open(path)
}

// ReadIdentity implements Inspector.
func (FileInspector) ReadIdentity(string) ([]byte, error) {
	return nil, errNoResources
}
