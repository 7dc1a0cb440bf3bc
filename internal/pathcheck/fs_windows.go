//go:build windows

package pathcheck

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"

	"github.com/oshokin/update-service/internal/scoped"
)

type osFS struct{}

func (osFS) IsReparsePoint(path string) (bool, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false, err
	}

	attrs, err := windows.GetFileAttributes(name)
	if err != nil {
		if errors.Is(err, windows.ERROR_FILE_NOT_FOUND) || errors.Is(err, windows.ERROR_PATH_NOT_FOUND) {
			return false, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
		}

		return false, err
	}

	return attrs&windows.FILE_ATTRIBUTE_REPARSE_POINT != 0, nil
}

func (osFS) ReadReparseData(path string) ([]byte, error) {
	// OpenForBackup adds FILE_FLAG_OPEN_REPARSE_POINT, so the link itself is opened.
	file, err := winio.OpenForBackup(
		path,
		windows.FILE_READ_ATTRIBUTES,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		windows.OPEN_EXISTING,
	)
	if err != nil {
		return nil, err
	}

	handle := scoped.New(file, (*os.File).Close)
	defer handle.Close()

	buf := make([]byte, windows.MAXIMUM_REPARSE_DATA_BUFFER_SIZE)

	var returned uint32

	err = windows.DeviceIoControl(
		windows.Handle(handle.Get().Fd()),
		windows.FSCTL_GET_REPARSE_POINT,
		nil,
		0,
		&buf[0],
		uint32(len(buf)),
		&returned,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("FSCTL_GET_REPARSE_POINT: %w", err)
	}

	return buf[:returned:returned], nil
}

func (osFS) FullPath(path string) (string, error) {
	return windows.FullPath(path)
}
