//go:build !windows

package lifecycle

import (
	"errors"

	"github.com/oshokin/update-service/internal/domain/service"
)

var errNoVersionResource = errors.New("file version resources are only available on windows")

type unsupportedVersionReader struct{}

// NewVersionReader returns a reader that always fails outside windows.
func NewVersionReader() VersionReader {
	return unsupportedVersionReader{}
}

// FileVersion implements VersionReader.
func (unsupportedVersionReader) FileVersion(string) (service.FileVersion, error) {
	return service.FileVersion{}, errNoVersionResource
}
