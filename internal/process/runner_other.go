//go:build !windows

package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/oshokin/update-service/internal/cmdline"
	"github.com/oshokin/update-service/internal/domain/update"
	"github.com/oshokin/update-service/internal/logger"
)

// ExecRunner runs children with os/exec; there is no desktop to hide from.
type ExecRunner struct{}

// NewRunner returns the host Runner.
func NewRunner() Runner {
	return ExecRunner{}
}

// Run implements Runner. The command line is split with Windows rules and
// its first element replaced by path.
func (ExecRunner) Run(ctx context.Context, path, commandLine string, timeout time.Duration) (update.Outcome, error) {
	args := cmdline.Split(commandLine)
	if len(args) > 0 {
		args = args[1:]
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.InfoKV(ctx, "Starting process", "path", path, "command_line", commandLine)

	cmd := exec.CommandContext(runCtx, path, args...)

	err := cmd.Run()
	if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		logger.WarnKV(ctx, "Process timed out, terminated", "path", path)

		return outcomeOf(TerminatedExitCode), ErrTimeout
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := uint32(exitErr.ExitCode())

		logger.InfoKV(ctx, "Process finished", "path", path, "exit_code", code)

		return outcomeOf(code), nil
	}

	if err != nil {
		return update.Outcome{}, fmt.Errorf("start %s: %w", path, err)
	}

	logger.InfoKV(ctx, "Process finished", "path", path, "exit_code", 0)

	return outcomeOf(0), nil
}
