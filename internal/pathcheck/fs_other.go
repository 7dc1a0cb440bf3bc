//go:build !windows

package pathcheck

import (
	"io/fs"
	"os"
)

// osFS maps symbolic links onto symlink reparse buffers so the walk behaves
// the same way off Windows. Paths are returned as-is by FullPath since the
// host has no Win32 canonical form.
type osFS struct{}

func (osFS) IsReparsePoint(path string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, err
	}

	return info.Mode()&fs.ModeSymlink != 0, nil
}

func (osFS) ReadReparseData(path string) ([]byte, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return nil, err
	}

	return encodeReparse(KindSymlink, target), nil
}

func (osFS) FullPath(path string) (string, error) {
	return path, nil
}
