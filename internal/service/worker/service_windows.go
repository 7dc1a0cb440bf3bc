//go:build windows

package worker

import (
	"context"

	"golang.org/x/sys/windows/svc"

	"github.com/oshokin/update-service/internal/domain/service"
	"github.com/oshokin/update-service/internal/logger"
)

// IsService reports whether the process was started by the SCM.
func IsService() bool {
	ok, err := svc.IsWindowsService()

	return err == nil && ok
}

// RunService runs w under the SCM until its command finishes or a stop
// request arrives.
func RunService(ctx context.Context, w *Worker) error {
	return svc.Run(service.Name, &handler{ctx: ctx, worker: w})
}

type handler struct {
	ctx    context.Context //nolint:containedctx // svc.Handler has no context parameter.
	worker *Worker
}

// Execute implements svc.Handler. A stop request ends the service without
// waiting for the command, so a child the command spawned keeps running.
func (h *handler) Execute(args []string, requests <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown

	changes <- svc.Status{State: svc.StartPending}

	// The first argument is the service name.
	if len(args) > 0 {
		args = args[1:]
	}

	done := make(chan uint32, 1)

	go func() {
		done <- h.worker.Handle(h.ctx, args)
	}()

	changes <- svc.Status{State: svc.Running, Accepts: accepted}

	for {
		select {
		case code := <-done:
			changes <- svc.Status{State: svc.StopPending}

			return code != ExitSuccess, code
		case request := <-requests:
			switch request.Cmd {
			case svc.Interrogate:
				changes <- request.CurrentStatus
			case svc.Stop, svc.Shutdown:
				logger.Info(h.ctx, "Stop requested")

				changes <- svc.Status{State: svc.StopPending}

				return false, 0
			default:
				logger.WarnKV(h.ctx, "Unexpected control request", "cmd", request.Cmd)
			}
		}
	}
}
