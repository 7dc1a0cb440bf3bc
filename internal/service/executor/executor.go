package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/update-service/internal/cmdline"
	"github.com/oshokin/update-service/internal/config"
	"github.com/oshokin/update-service/internal/domain/update"
	"github.com/oshokin/update-service/internal/logger"
	"github.com/oshokin/update-service/internal/pathcheck"
	"github.com/oshokin/update-service/internal/process"
)

// silentInstallSwitches precede the install directory on the updater's
// command line.
const silentInstallSwitches = " /S /D="

var (
	errUnknownCommand     = errors.New("unsupported command")
	errMissingUpdaterPath = errors.New("updater path is required")
	errMissingInstallDir  = errors.New("install directory is required")
	errNotRegistered      = errors.New("install directory is not registered")
	errNonZeroExit        = errors.New("updater exited with an error")
)

// PathValidator validates caller-supplied paths.
type PathValidator interface {
	Validate(ctx context.Context, path string) (pathcheck.ValidatedPath, error)
}

// Registrations answers the registration gate.
type Registrations interface {
	RecordExists(ctx context.Context, installDir string) (bool, error)
	FallbackExists(ctx context.Context) (bool, error)
}

// TrustGate vets an updater. It runs on the caller's file and again on the
// staged copy.
type TrustGate interface {
	Evaluate(ctx context.Context, candidate *update.Candidate, installDir string) error
}

// Stager makes and removes the private copy that gets executed.
type Stager interface {
	Stage(ctx context.Context, candidatePath string) (string, error)
	Cleanup(ctx context.Context)
}

// SelfUpgrader upgrades the worker from an installed product.
type SelfUpgrader interface {
	SelfUpgrade(ctx context.Context, installDir string) (bool, error)
}

// Deps are the pipeline stages of an Executor.
type Deps struct {
	Paths         PathValidator
	Registrations Registrations
	Gate          TrustGate
	Stager        Stager
	Runner        process.Runner
	Upgrader      SelfUpgrader
	// NewID returns the invocation ID written to every log line.
	NewID func() string
}

// Executor runs update requests. It is used for exactly one request per
// worker launch.
type Executor struct {
	deps    Deps
	timeout time.Duration
}

// New creates an Executor. cfg supplies the updater timeout; nil means defaults.
func New(cfg *config.Config, deps Deps) *Executor {
	if cfg == nil {
		cfg = config.Default()
	}

	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	return &Executor{
		deps:    deps,
		timeout: cfg.UpdaterTimeout,
	}
}

// Execute runs req. Errors wrap one of the update error kinds. A nonzero
// exit code is reported both in the Outcome and as update.ErrExecution.
func (e *Executor) Execute(ctx context.Context, req *update.Request) (update.Outcome, error) {
	ctx = logger.WithKV(ctx, "invocation_id", e.deps.NewID())

	if !req.IsSoftwareUpdate() {
		logger.WarnKV(ctx, "Unknown command", "command", req.Command)

		return update.Outcome{}, fmt.Errorf("%w: %q: %w", update.ErrArgument, req.Command, errUnknownCommand)
	}

	logger.InfoKV(ctx, "Software update requested",
		"updater", req.UpdaterPath,
		"install_dir", req.InstallDir,
		"extra_args", len(req.ExtraArgs),
	)

	installDir, err := e.checkPreconditions(ctx, req)
	if err != nil {
		return update.Outcome{}, err
	}

	candidate := &update.Candidate{SourcePath: req.UpdaterPath}

	if err = e.deps.Gate.Evaluate(ctx, candidate, installDir); err != nil {
		return update.Outcome{}, err
	}

	// A failed stage leaves its artifacts for the next run's cleanup.
	candidate.StagedPath, err = e.deps.Stager.Stage(ctx, candidate.SourcePath)
	if err != nil {
		return update.Outcome{}, err
	}

	// The source may change once the gate lets go of it, so the private
	// copy is what gets vetted for execution.
	if err = e.deps.Gate.Evaluate(ctx, &update.Candidate{SourcePath: candidate.StagedPath}, installDir); err != nil {
		logger.ErrorKV(ctx, "Staged updater failed verification", "staged", candidate.StagedPath)
		e.deps.Stager.Cleanup(ctx)

		return update.Outcome{}, err
	}

	outcome, err := e.run(ctx, candidate.StagedPath, installDir, req.ExtraArgs)

	// The self-upgrade below may stop this process, so clean up first.
	e.deps.Stager.Cleanup(ctx)

	if err != nil {
		return outcome, err
	}

	upgraded, err := e.deps.Upgrader.SelfUpgrade(ctx, installDir)
	if err != nil {
		logger.ErrorKV(ctx, "Worker self-upgrade failed", "error", err)
	} else if upgraded {
		logger.Info(ctx, "Worker self-upgrade finished")
	}

	return outcome, nil
}

// checkPreconditions validates the request and returns the install
// directory without a trailing separator.
func (e *Executor) checkPreconditions(ctx context.Context, req *update.Request) (string, error) {
	if req.UpdaterPath == "" {
		return "", fmt.Errorf("%w: %w", update.ErrArgument, errMissingUpdaterPath)
	}

	if req.InstallDir == "" {
		return "", fmt.Errorf("%w: %w", update.ErrArgument, errMissingInstallDir)
	}

	validated, err := e.deps.Paths.Validate(ctx, req.InstallDir)
	if err != nil {
		return "", err
	}

	installDir := trimSeparator(validated)

	fallback, err := e.deps.Registrations.FallbackExists(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", update.ErrConfiguration, err)
	}

	if fallback {
		logger.Warn(ctx, "Fallback marker present, skipping registration check")

		return installDir, nil
	}

	registered, err := e.deps.Registrations.RecordExists(ctx, installDir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", update.ErrConfiguration, err)
	}

	if !registered {
		logger.WarnKV(ctx, "Install directory is not registered", "install_dir", installDir)

		return "", fmt.Errorf("%w: %s: %w", update.ErrConfiguration, installDir, errNotRegistered)
	}

	return installDir, nil
}

func (e *Executor) run(ctx context.Context, staged, installDir string, extras []string) (update.Outcome, error) {
	commandLine := CommandLine(staged, installDir, extras)

	outcome, err := e.deps.Runner.Run(ctx, staged, commandLine, e.timeout)
	if err != nil {
		logger.ErrorKV(ctx, "Updater did not complete", "error", err)

		return outcome, fmt.Errorf("%w: %w", update.ErrExecution, err)
	}

	if !outcome.Success {
		logger.WarnKV(ctx, "Updater failed", "exit_code", outcome.ExitCode)

		return outcome, fmt.Errorf("%w: exit code %d: %w", update.ErrExecution, outcome.ExitCode, errNonZeroExit)
	}

	logger.Info(ctx, "Updater succeeded")

	return outcome, nil
}

// CommandLine builds the updater's command line: the quoted staged path,
// the silent-install switches, the quoted install directory and extras.
func CommandLine(staged, installDir string, extras []string) string {
	args := append([]string{installDir}, extras...)

	return cmdline.Quote(staged) + silentInstallSwitches + cmdline.Join(args...)
}

// trimSeparator drops a trailing separator unless the path is a volume root.
func trimSeparator(validated pathcheck.ValidatedPath) string {
	path := validated.Path
	if strings.EqualFold(path, validated.Root) {
		return path
	}

	return strings.TrimRight(path, `\`)
}
