//go:build windows

package lifecycle

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/oshokin/update-service/internal/domain/service"
)

var errNoFixedInfo = errors.New("binary has no fixed file version")

// fileVersionReader reads VS_FIXEDFILEINFO from a binary's version resource.
type fileVersionReader struct{}

// NewVersionReader returns the version resource reader.
func NewVersionReader() VersionReader {
	return fileVersionReader{}
}

// FileVersion implements VersionReader.
func (fileVersionReader) FileVersion(path string) (service.FileVersion, error) {
	size, err := windows.GetFileVersionInfoSize(path, nil)
	if err != nil {
		return service.FileVersion{}, fmt.Errorf("version info size of %s: %w", path, err)
	}

	info := make([]byte, size)
	if err = windows.GetFileVersionInfo(path, 0, size, unsafe.Pointer(&info[0])); err != nil {
		return service.FileVersion{}, fmt.Errorf("version info of %s: %w", path, err)
	}

	var (
		fixed    *windows.VS_FIXEDFILEINFO
		fixedLen uint32
	)

	err = windows.VerQueryValue(unsafe.Pointer(&info[0]), `\`, unsafe.Pointer(&fixed), &fixedLen)
	if err != nil {
		return service.FileVersion{}, fmt.Errorf("query version of %s: %w", path, err)
	}

	if fixed == nil || fixedLen < uint32(unsafe.Sizeof(*fixed)) {
		return service.FileVersion{}, fmt.Errorf("%s: %w", path, errNoFixedInfo)
	}

	return service.FileVersionFromMSLS(fixed.FileVersionMS, fixed.FileVersionLS), nil
}
