//go:build windows

package registration

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"

	"github.com/oshokin/update-service/internal/scoped"
)

// LocalMachine reads the 64-bit view of HKEY_LOCAL_MACHINE.
type LocalMachine struct{}

// NewLocalMachine returns the host hive.
func NewLocalMachine() Hive {
	return LocalMachine{}
}

func (LocalMachine) open(path string, access uint32) (*scoped.Resource[registry.Key], error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, path, access|registry.WOW64_64KEY)
	if errors.Is(err, registry.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrKeyNotFound)
	}

	if err != nil {
		return nil, err
	}

	return scoped.New(key, registry.Key.Close), nil
}

// KeyExists implements Hive.
func (lm LocalMachine) KeyExists(path string) (bool, error) {
	key, err := lm.open(path, registry.READ)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, key.Close()
}

// StringValue implements Hive.
func (lm LocalMachine) StringValue(path, name string) (string, error) {
	key, err := lm.open(path, registry.QUERY_VALUE)
	if err != nil {
		return "", err
	}
	defer key.Close()

	value, _, err := key.Get().GetStringValue(name)
	if errors.Is(err, registry.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", name, ErrKeyNotFound)
	}

	return value, err
}

// SubKeyNames implements Hive.
func (lm LocalMachine) SubKeyNames(path string) ([]string, error) {
	key, err := lm.open(path, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	return key.Get().ReadSubKeyNames(-1)
}
