package process

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/update-service/internal/domain/update"
)

// TerminatedExitCode is reported for a child killed after its timeout.
const TerminatedExitCode = 1

// ErrTimeout is returned when a child outlives its timeout and is terminated.
var ErrTimeout = errors.New("process timed out and was terminated")

// Runner runs one program to completion.
type Runner interface {
	// Run starts path with the full commandLine (program name included),
	// waits at most timeout and reports its exit code.
	Run(ctx context.Context, path, commandLine string, timeout time.Duration) (update.Outcome, error)
}

// outcomeOf converts an exit code into an Outcome.
func outcomeOf(exitCode uint32) update.Outcome {
	return update.Outcome{
		Success:  exitCode == 0,
		ExitCode: exitCode,
	}
}
