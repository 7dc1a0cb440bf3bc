package trigger

import (
	"context"
	"time"

	"github.com/oshokin/update-service/internal/domain/service"
	"github.com/oshokin/update-service/internal/domain/update"
	"github.com/oshokin/update-service/internal/logger"
	"github.com/oshokin/update-service/internal/pathcheck"
	"github.com/oshokin/update-service/internal/repository/registration"
	"github.com/oshokin/update-service/internal/scm"
)

// Exit codes of the trigger.
const (
	ExitSuccess            = 0
	ExitNotEnoughArgs      = -1
	ExitInvalidUpdaterPath = -2
	ExitInvalidRegistryKey = -3
	ExitInvalidInstallPath = -4
	ExitAlreadyRunning     = -5
)

const (
	// startRetryInterval is the pause between start attempts.
	startRetryInterval = 100 * time.Millisecond
	// startRetryWindow bounds the start attempts.
	startRetryWindow = 5 * time.Second
	// exitUnknownSystemFailure is returned when a failure carries no status code.
	exitUnknownSystemFailure = 1
)

// PathValidator validates caller-supplied paths.
type PathValidator interface {
	Validate(ctx context.Context, path string) (pathcheck.ValidatedPath, error)
}

// InstallPathReader resolves the default value of an HKLM key.
type InstallPathReader interface {
	ReadInstallPath(ctx context.Context, key string) (string, error)
}

// Deps are the collaborators of a Trigger.
type Deps struct {
	Paths     PathValidator
	Registry  InstallPathReader
	Connector scm.Connector
	// Sleep pauses between start attempts.
	Sleep func(time.Duration)
}

// Trigger starts the worker on behalf of an unprivileged caller.
type Trigger struct {
	deps Deps
}

// New creates a Trigger.
func New(deps Deps) *Trigger {
	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}

	return &Trigger{deps: deps}
}

// Run handles args, "<updaterPath> <registryKey>", and returns the process
// exit code. The registry is read before the SCM is contacted.
func (t *Trigger) Run(ctx context.Context, args []string) int {
	if len(args) < 2 {
		logger.Error(ctx, "Not enough arguments")

		return ExitNotEnoughArgs
	}

	updaterPath, registryKey := args[0], args[1]

	if _, err := t.deps.Paths.Validate(ctx, updaterPath); err != nil {
		logger.ErrorKV(ctx, "Updater path is not a valid full path", "path", updaterPath, "error", err)

		return ExitInvalidUpdaterPath
	}

	logger.InfoKV(ctx, "Update requested", "updater", updaterPath, "registry_key", registryKey)

	installPath, err := t.deps.Registry.ReadInstallPath(ctx, registryKey)
	if err != nil {
		logger.ErrorKV(ctx, "Could not read the install path from the registry", "key", registryKey, "error", err)

		return ExitInvalidRegistryKey
	}

	if _, err = t.deps.Paths.Validate(ctx, installPath); err != nil {
		logger.ErrorKV(ctx, "Install path is not a valid full path", "path", installPath, "error", err)

		return ExitInvalidInstallPath
	}

	return t.start(ctx, updaterPath, installPath)
}

func (t *Trigger) start(ctx context.Context, updaterPath, installPath string) int {
	manager, err := t.deps.Connector.Connect(scm.ScopeTrigger)
	if err != nil {
		return failure(ctx, "Could not open the service manager", err)
	}

	defer func() { _ = manager.Close() }()

	svc, err := manager.OpenService(service.Name)
	if err != nil {
		return failure(ctx, "Could not open the update service", err)
	}

	defer func() { _ = svc.Close() }()

	status, err := svc.Query()
	if err != nil {
		return failure(ctx, "Could not query the service status", err)
	}

	if status.State != service.StateStopped && status.State != service.StateStopPending {
		logger.ErrorKV(ctx, "The update service is already started", "state", status.State.String())

		return ExitAlreadyRunning
	}

	args := []string{update.CommandSoftwareUpdate, updaterPath, installPath}

	// The database may be locked or the previous run still stopping.
	for waited := time.Duration(0); waited < startRetryWindow; waited += startRetryInterval {
		err = svc.Start(args...)
		if err == nil {
			logger.Info(ctx, "Service start pending")

			return ExitSuccess
		}

		logger.DebugKV(ctx, "Start attempt failed", "error", err, "code", scm.CodeOf(err))
		t.deps.Sleep(startRetryInterval)
	}

	return failure(ctx, "Start service failed", err)
}

// failure logs err and returns its status code.
func failure(ctx context.Context, message string, err error) int {
	code := scm.CodeOf(err)

	logger.ErrorKV(ctx, message, "error", err, "code", code)

	if code == 0 {
		return exitUnknownSystemFailure
	}

	return int(code)
}

// NewHost creates a Trigger on the local registry and service manager.
func NewHost() *Trigger {
	return New(Deps{
		Paths:     pathcheck.NewOSValidator(),
		Registry:  registration.NewStore(registration.NewLocalMachine(), ""),
		Connector: scm.NewConnector(),
	})
}
