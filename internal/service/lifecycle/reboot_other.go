//go:build !windows

package lifecycle

import "os"

// deleteOnReboot removes path right away; there is no boot-time queue here.
func deleteOnReboot(path string) error {
	return os.Remove(path)
}
