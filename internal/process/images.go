package process

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/update-service/internal/logger"
)

// imagePollInterval is how often the process table is rescanned.
const imagePollInterval = 250 * time.Millisecond

// ImageWaiter waits for every process with a given image name to exit.
type ImageWaiter struct {
	list  func() ([]ps.Process, error)
	sleep func(time.Duration)
	self  int
}

// NewImageWaiter scans the live process table with go-ps.
func NewImageWaiter() *ImageWaiter {
	return &ImageWaiter{
		list:  ps.Processes,
		sleep: time.Sleep,
		self:  os.Getpid(),
	}
}

// Running reports whether a process other than the caller runs image.
func (w *ImageWaiter) Running(image string) (bool, error) {
	processes, err := w.list()
	if err != nil {
		return false, err
	}

	for _, process := range processes {
		if process.Pid() == w.self {
			continue
		}

		if strings.EqualFold(process.Executable(), image) {
			return true, nil
		}
	}

	return false, nil
}

// WaitForExit polls until no process runs image or timeout elapses and
// reports whether the image is gone. Listing failures end the wait early.
func (w *ImageWaiter) WaitForExit(ctx context.Context, image string, timeout time.Duration) bool {
	for waited := time.Duration(0); ; waited += imagePollInterval {
		running, err := w.Running(image)
		if err != nil {
			logger.WarnKV(ctx, "Unable to list processes", "error", err)

			return false
		}

		if !running {
			return true
		}

		if waited >= timeout {
			logger.WarnKV(ctx, "Process image still running", "image", image, "timeout", timeout)

			return false
		}

		w.sleep(imagePollInterval)
	}
}
