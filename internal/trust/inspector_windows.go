//go:build windows

package trust

import (
	"fmt"
	"io"
	"path/filepath"

	"golang.org/x/sys/windows"

	"github.com/oshokin/update-service/internal/domain/update"
	"github.com/oshokin/update-service/internal/scoped"
)

// FileInspector reads candidate files through the Win32 API.
type FileInspector struct{}

// NewInspector returns the host Inspector.
func NewInspector() Inspector {
	return FileInspector{}
}

// IsLocalFixed implements Inspector.
func (FileInspector) IsLocalFixed(path string) (bool, error) {
	volume := filepath.VolumeName(path)
	if volume == "" {
		return false, nil
	}

	root, err := windows.UTF16PtrFromString(volume + `\`)
	if err != nil {
		return false, err
	}

	return windows.GetDriveType(root) == windows.DRIVE_FIXED, nil
}

// OpenNoWrite implements Inspector.
func (FileInspector) OpenNoWrite(path string) (io.Closer, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}

	handle, err := windows.CreateFile(
		name,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("CreateFile: %w", err)
	}

	return scoped.New(handle, windows.CloseHandle), nil
}

// ReadIdentity implements Inspector.
func (FileInspector) ReadIdentity(path string) ([]byte, error) {
	module, err := windows.LoadLibraryEx(path, 0, windows.LOAD_LIBRARY_AS_DATAFILE)
	if err != nil {
		return nil, fmt.Errorf("LoadLibraryEx: %w", err)
	}

	library := scoped.New(module, windows.FreeLibrary)
	defer library.Close()

	id := windows.ResourceID(update.IdentityResourceID)

	info, err := windows.FindResource(library.Get(), id, id)
	if err != nil {
		return nil, fmt.Errorf("FindResource: %w", err)
	}

	data, err := windows.LoadResourceData(library.Get(), info)
	if err != nil {
		return nil, fmt.Errorf("LoadResourceData: %w", err)
	}

	// The view dies with the module.
	return append([]byte(nil), data...), nil
}
