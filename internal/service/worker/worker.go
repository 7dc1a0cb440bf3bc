package worker

import (
	"context"
	"errors"

	"github.com/oshokin/update-service/internal/domain/update"
	"github.com/oshokin/update-service/internal/logger"
)

// Service-specific exit codes reported to the SCM when the worker stops.
const (
	ExitSuccess uint32 = iota
	ExitArgument
	ExitPath
	ExitConfiguration
	ExitTrust
	ExitStaging
	ExitExecution
	ExitInternal
)

// Executor runs one update request.
type Executor interface {
	Execute(ctx context.Context, req *update.Request) (update.Outcome, error)
}

// Worker handles the single command a service launch carries.
type Worker struct {
	executor Executor
}

// New creates a Worker.
func New(executor Executor) *Worker {
	return &Worker{executor: executor}
}

// Handle runs the command in args, the service start arguments without the
// service name, and returns the exit code to report.
func (w *Worker) Handle(ctx context.Context, args []string) uint32 {
	if len(args) == 0 {
		logger.Info(ctx, "Started without a command, nothing to do")

		return ExitSuccess
	}

	req := update.ParseRequest(args)

	outcome, err := w.executor.Execute(ctx, req)
	if err != nil {
		logger.ErrorKV(ctx, "Command failed", "command", req.Command, "error", err)

		return ExitCode(err)
	}

	logger.InfoKV(ctx, "Command finished", "command", req.Command, "exit_code", outcome.ExitCode)

	return ExitSuccess
}

// ExitCode maps an error to the exit code of its kind.
func ExitCode(err error) uint32 {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, update.ErrArgument):
		return ExitArgument
	case errors.Is(err, update.ErrPath):
		return ExitPath
	case errors.Is(err, update.ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, update.ErrTrust):
		return ExitTrust
	case errors.Is(err, update.ErrStaging):
		return ExitStaging
	case errors.Is(err, update.ErrExecution):
		return ExitExecution
	default:
		return ExitInternal
	}
}
