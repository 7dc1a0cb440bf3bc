//go:build !windows

package worker

import (
	"context"
	"errors"
)

var errNoServiceManager = errors.New("service mode is only available on windows")

// IsService always reports false outside windows.
func IsService() bool {
	return false
}

// RunService is unavailable outside windows.
func RunService(context.Context, *Worker) error {
	return errNoServiceManager
}
