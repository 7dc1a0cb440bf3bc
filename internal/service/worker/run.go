package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/update-service/internal/config"
	"github.com/oshokin/update-service/internal/domain/service"
	"github.com/oshokin/update-service/internal/logger"
	"github.com/oshokin/update-service/internal/version"
)

// Command is an administrative action of the worker binary.
type Command string

// Administrative commands.
const (
	CommandInstall      Command = "install"
	CommandUpgrade      Command = "upgrade"
	CommandForceInstall Command = "forceinstall"
	CommandUninstall    Command = "uninstall"
	CommandStop         Command = "stop"
	CommandStatus       Command = "status"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errNotStopped     = errors.New("worker did not stop")
)

// Options are inputs accepted by the worker entry points.
type Options struct {
	// ConfigPath is the settings file; empty means beside the binary.
	ConfigPath string
	// Host overrides the operating system ports.
	Host Host
	// Executable overrides the path of the running binary.
	Executable string
}

// session is the configuration and logger shared by the entry points.
type session struct {
	cfg        *config.Config
	executable string
	ctx        context.Context //nolint:containedctx // Carries the session logger.
	closeLog   func()
}

func openSession(ctx context.Context, opts *Options, logName string, console bool) (*session, error) {
	executable := opts.Executable
	if executable == "" {
		var err error

		executable, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
	}

	var (
		cfg *config.Config
		err error
	)

	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadBeside(executable)
	}

	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	level, _ := logger.ParseLogLevel(cfg.LogLevel)

	logPath := cfg.LogPath(executable)
	if logName != "" {
		logPath = filepath.Join(filepath.Dir(logPath), logName)
	}

	file, err := logger.OpenFile(logPath, level, cfg.MaxLogBackups)
	if err != nil {
		return nil, err
	}

	core := file.Logger().Desugar().Core()
	if console {
		core = zapcore.NewTee(core, logger.New(level, os.Stderr, false).Desugar().Core())
	}

	log := zap.New(core).Sugar().Named("update-service")

	return &session{
		cfg:        cfg,
		executable: executable,
		ctx:        logger.ToContext(ctx, log),
		closeLog:   func() { _ = file.Close() },
	}, nil
}

// Serve runs the worker under the SCM for one command.
func Serve(ctx context.Context, opts *Options) error {
	s, err := openSession(ctx, opts, "", false)
	if err != nil {
		return err
	}

	defer s.closeLog()

	ctx = s.ctx

	logger.InfoKV(ctx, "Worker starting", "version", version.Full(), "executable", s.executable)

	components := Wire(s.cfg, s.executable, opts.Host)

	err = RunService(ctx, New(components.Executor))
	if err != nil {
		logger.ErrorKV(ctx, "Service dispatcher failed", "error", err)

		return err
	}

	logger.Info(ctx, "Worker stopped")

	return nil
}

// Manage runs an administrative command and returns a line to print.
func Manage(ctx context.Context, opts *Options, command Command) (string, error) {
	s, err := openSession(ctx, opts, "updateservice-"+string(command)+".log", true)
	if err != nil {
		return "", err
	}

	defer s.closeLog()

	ctx = logger.WithKV(s.ctx, "command", string(command))

	manager := Wire(s.cfg, s.executable, opts.Host).Lifecycle

	switch command {
	case CommandInstall, CommandUpgrade, CommandForceInstall:
		action := map[Command]service.InstallAction{
			CommandInstall:      service.ActionInstall,
			CommandUpgrade:      service.ActionUpgrade,
			CommandForceInstall: service.ActionForceInstall,
		}[command]

		if err = manager.Install(ctx, action); err != nil {
			return "", err
		}

		return string(command) + " completed", nil
	case CommandUninstall:
		if err = manager.Uninstall(ctx); err != nil {
			return "", err
		}

		return "uninstalled", nil
	case CommandStop:
		stopped, stopErr := manager.Stop(ctx)
		if stopErr != nil {
			return "", stopErr
		}

		if !stopped {
			return "", errNotStopped
		}

		return "stopped", nil
	case CommandStatus:
		record, queryErr := manager.Query(ctx)
		if queryErr != nil {
			return "", queryErr
		}

		return formatRecord(record), nil
	default:
		return "", fmt.Errorf("%q: %w", command, errUnknownCommand)
	}
}

func formatRecord(record service.Record) string {
	if record.State == service.StateNotInstalled {
		return service.Name + ": " + record.State.String()
	}

	return strings.Join([]string{
		service.Name + ": " + record.State.String(),
		"path: " + record.BinaryPath,
		"version: " + record.Version.String(),
	}, "\n")
}
