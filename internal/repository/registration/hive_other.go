//go:build !windows

package registration

// NewLocalMachine returns an empty in-memory hive; there is no registry on
// this platform.
func NewLocalMachine() Hive {
	return NewMemoryHive()
}
