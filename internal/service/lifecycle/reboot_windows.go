//go:build windows

package lifecycle

import "golang.org/x/sys/windows"

// deleteOnReboot registers path with the session manager for deletion at boot.
func deleteOnReboot(path string) error {
	from, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}

	return windows.MoveFileEx(from, nil, windows.MOVEFILE_DELAY_UNTIL_REBOOT)
}
