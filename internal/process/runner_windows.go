//go:build windows

package process

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/oshokin/update-service/internal/domain/update"
	"github.com/oshokin/update-service/internal/logger"
	"github.com/oshokin/update-service/internal/scoped"
)

// HiddenRunner starts children on a blank desktop with a hidden window, so
// nothing they show can be reached from an interactive session.
type HiddenRunner struct{}

// NewRunner returns the host Runner.
func NewRunner() Runner {
	return HiddenRunner{}
}

// Run implements Runner.
func (HiddenRunner) Run(ctx context.Context, path, commandLine string, timeout time.Duration) (update.Outcome, error) {
	app, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return update.Outcome{}, err
	}

	// CreateProcessW may write into the command line buffer.
	cmd, err := windows.UTF16FromString(commandLine)
	if err != nil {
		return update.Outcome{}, err
	}

	desktop, err := windows.UTF16PtrFromString("")
	if err != nil {
		return update.Outcome{}, err
	}

	startup := &windows.StartupInfo{
		Cb:         uint32(unsafe.Sizeof(windows.StartupInfo{})),
		Desktop:    desktop,
		Flags:      windows.STARTF_USESHOWWINDOW,
		ShowWindow: windows.SW_HIDE,
	}

	var info windows.ProcessInformation

	logger.InfoKV(ctx, "Starting process", "path", path, "command_line", commandLine)

	err = windows.CreateProcess(app, &cmd[0], nil, nil, false,
		windows.CREATE_DEFAULT_ERROR_MODE, nil, nil, startup, &info)
	if err != nil {
		return update.Outcome{}, fmt.Errorf("CreateProcess: %w", err)
	}

	thread := scoped.New(info.Thread, windows.CloseHandle)
	defer thread.Close()

	proc := scoped.New(info.Process, windows.CloseHandle)
	defer proc.Close()

	logger.DebugKV(ctx, "Process started, waiting", "pid", info.ProcessId, "timeout", timeout)

	event, err := windows.WaitForSingleObject(proc.Get(), uint32(timeout.Milliseconds()))
	if err != nil {
		return update.Outcome{}, fmt.Errorf("WaitForSingleObject: %w", err)
	}

	if event == uint32(windows.WAIT_TIMEOUT) {
		logger.WarnKV(ctx, "Process timed out, terminating", "pid", info.ProcessId)

		if termErr := windows.TerminateProcess(proc.Get(), TerminatedExitCode); termErr != nil {
			logger.ErrorKV(ctx, "Unable to terminate process", "pid", info.ProcessId, "error", termErr)
		}

		return outcomeOf(TerminatedExitCode), ErrTimeout
	}

	var exitCode uint32
	if err = windows.GetExitCodeProcess(proc.Get(), &exitCode); err != nil {
		return update.Outcome{}, fmt.Errorf("GetExitCodeProcess: %w", err)
	}

	logger.InfoKV(ctx, "Process finished", "pid", info.ProcessId, "exit_code", exitCode)

	return outcomeOf(exitCode), nil
}
