package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/update-service/internal/cmdline"
	"github.com/oshokin/update-service/internal/config"
	"github.com/oshokin/update-service/internal/domain/service"
	"github.com/oshokin/update-service/internal/domain/update"
	"github.com/oshokin/update-service/internal/logger"
	"github.com/oshokin/update-service/internal/process"
	"github.com/oshokin/update-service/internal/scm"
)

const (
	// stopPollInterval is the pause between status queries while stopping.
	stopPollInterval = time.Second
	// minUninstallPoll bounds how fast uninstall polls when the wait hint is tiny.
	minUninstallPoll = 100 * time.Millisecond
	// uninstallPollSlack is added per poll to the uninstall wait accounting.
	uninstallPollSlack = 10 * time.Millisecond
	// upgradeCommand is the worker subcommand the self-upgrade runs.
	upgradeCommand = "upgrade"
)

var (
	errNotStopped       = errors.New("worker did not stop")
	errAccessReset      = errors.New("unable to apply the hardened access descriptor")
	errShortBinaryPath  = errors.New("binary path is too short to derive an aside name")
	errUpgradeRejected  = errors.New("new worker binary is not signed by an allowed signer")
	errUpgradeFailed    = errors.New("worker upgrade exited with an error")
	errCallerVersion    = errors.New("unable to read the calling binary version")
	errServiceNotFound  = errors.New("worker service is not installed")
	errExecutableLookup = errors.New("unable to resolve the calling binary")
)

// VersionReader reads the four-part file version of a binary.
type VersionReader interface {
	FileVersion(path string) (service.FileVersion, error)
}

// ImageWaiter waits for processes running an image to exit.
type ImageWaiter interface {
	WaitForExit(ctx context.Context, image string, timeout time.Duration) bool
}

// AllowList answers whether a binary's signer is registered for installDir.
type AllowList interface {
	IsAllowed(ctx context.Context, installDir, path string) bool
}

// Deps are the collaborators of a Manager. Nil fields take host defaults.
type Deps struct {
	Connector scm.Connector
	Versions  VersionReader
	Images    ImageWaiter
	Runner    process.Runner
	AllowList AllowList

	// Executable returns the path of the calling binary.
	Executable func() (string, error)
	// CopyFile overwrites dst with the contents of src.
	CopyFile func(src, dst string) error
	// ApplyAside moves dst to aside and puts src in its place.
	ApplyAside func(src, dst, aside string) error
	// Remove deletes a file.
	Remove func(path string) error
	// DeleteOnReboot schedules a file for deletion at the next boot.
	DeleteOnReboot func(path string) error
	// Sleep pauses between polls.
	Sleep func(time.Duration)
}

// Manager drives the worker's SCM record.
type Manager struct {
	deps Deps
	cfg  *config.Config
}

// New creates a Manager. cfg supplies the timeouts; nil means defaults.
func New(cfg *config.Config, deps Deps) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}

	if deps.Connector == nil {
		deps.Connector = scm.NewConnector()
	}

	if deps.Versions == nil {
		deps.Versions = NewVersionReader()
	}

	if deps.Images == nil {
		deps.Images = process.NewImageWaiter()
	}

	if deps.Runner == nil {
		deps.Runner = process.NewRunner()
	}

	if deps.Executable == nil {
		deps.Executable = os.Executable
	}

	if deps.CopyFile == nil {
		deps.CopyFile = copyFile
	}

	if deps.ApplyAside == nil {
		deps.ApplyAside = applyAside
	}

	if deps.Remove == nil {
		deps.Remove = os.Remove
	}

	if deps.DeleteOnReboot == nil {
		deps.DeleteOnReboot = deleteOnReboot
	}

	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}

	return &Manager{deps: deps, cfg: cfg}
}

// session is an open SCM connection with the worker opened on it, if present.
type session struct {
	manager scm.Manager
	service scm.Service
}

func (s *session) Close() {
	if s.service != nil {
		_ = s.service.Close()
	}

	_ = s.manager.Close()
}

// open connects with full access and opens the worker. A missing worker
// leaves service nil without an error.
func (m *Manager) open() (*session, error) {
	manager, err := m.deps.Connector.Connect(scm.ScopeFull)
	if err != nil {
		return nil, err
	}

	s := &session{manager: manager}

	s.service, err = manager.OpenService(service.Name)
	if err != nil && !scm.IsNotExist(err) {
		s.Close()

		return nil, err
	}

	return s, nil
}

// Install creates or upgrades the worker according to action.
func (m *Manager) Install(ctx context.Context, action service.InstallAction) error {
	ctx = logger.WithKV(ctx, "action", action.String())

	exe, err := m.deps.Executable()
	if err != nil {
		return fmt.Errorf("%w: %w", errExecutableLookup, err)
	}

	s, err := m.open()
	if err != nil {
		return fmt.Errorf("open worker: %w", err)
	}
	defer s.Close()

	if s.service == nil {
		return m.create(ctx, s, action, exe)
	}

	return m.upgrade(ctx, s, action, exe)
}

func (m *Manager) create(ctx context.Context, s *session, action service.InstallAction, exe string) error {
	if action == service.ActionUpgrade {
		logger.Info(ctx, "Worker is not installed, nothing to upgrade")

		return nil
	}

	created, err := s.manager.CreateService(service.Name, scm.Config{
		BinaryPath:  exe,
		DisplayName: service.DisplayName,
		Description: service.Description,
	})
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	s.service = created

	if err = created.ResetAccess(); err != nil {
		logger.ErrorKV(ctx, "Unable to harden new worker, removing it", "error", err, "code", scm.CodeOf(err))

		if deleteErr := created.Delete(); deleteErr != nil {
			logger.ErrorKV(ctx, "Unable to remove unhardened worker", "error", deleteErr)
		}

		return fmt.Errorf("%w: %w", errAccessReset, err)
	}

	logger.InfoKV(ctx, "Worker installed", "path", exe)

	return nil
}

func (m *Manager) upgrade(ctx context.Context, s *session, action service.InstallAction, exe string) error {
	// ACLs may have drifted since the last install.
	if err := s.service.ResetAccess(); err != nil {
		logger.ErrorKV(ctx, "Unable to reset worker access", "error", err, "code", scm.CodeOf(err))

		return fmt.Errorf("%w: %w", errAccessReset, err)
	}

	cfg, err := s.service.Config()
	if err != nil {
		return fmt.Errorf("query worker config: %w", err)
	}

	installed := cfg.BinaryPath

	newVersion, err := m.deps.Versions.FileVersion(exe)
	if err != nil {
		return fmt.Errorf("%w: %w", errCallerVersion, err)
	}

	oldVersion, oldErr := m.deps.Versions.FileVersion(installed)
	if oldErr != nil {
		logger.WarnKV(ctx, "Unable to read installed worker version, replacing it", "path", installed, "error", oldErr)
	}

	logger.InfoKV(ctx, "Comparing worker versions",
		"installed_path", installed,
		"installed_version", oldVersion.String(),
		"new_path", exe,
		"new_version", newVersion.String(),
	)

	if action != service.ActionForceInstall && oldErr == nil && !oldVersion.Less(newVersion) {
		logger.Info(ctx, "Installed worker is up to date, nothing to do")
		m.scheduleSelfDelete(ctx, exe, installed)

		return nil
	}

	_ = s.service.Close()
	s.service = nil

	stopped, err := m.Stop(ctx)
	if err != nil {
		return err
	}

	if !stopped {
		return errNotStopped
	}

	if samePath(exe, installed) {
		logger.InfoKV(ctx, "Binary is already in place", "path", exe)

		return nil
	}

	err = m.replace(ctx, exe, installed)
	m.scheduleSelfDelete(ctx, exe, installed)

	return err
}

// replace puts src at dst: a direct overwrite first, then moving dst aside.
func (m *Manager) replace(ctx context.Context, src, dst string) error {
	err := m.deps.CopyFile(src, dst)
	if err == nil {
		logger.InfoKV(ctx, "Worker binary overwritten", "path", dst)

		return nil
	}

	logger.WarnKV(ctx, "Unable to overwrite worker binary, moving it aside", "path", dst, "error", err)

	aside, err := AsidePath(dst)
	if err != nil {
		return err
	}

	if err = m.deps.ApplyAside(src, dst, aside); err != nil {
		logger.ErrorKV(ctx, "Worker binary not replaced", "path", dst, "error", err)

		return fmt.Errorf("replace %s: %w", dst, err)
	}

	logger.InfoKV(ctx, "Worker binary replaced after moving the old one aside", "path", dst, "aside", aside)

	if err = m.deps.Remove(aside); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Old worker binary left behind", "path", aside, "error", err)
	}

	return nil
}

// scheduleSelfDelete removes the calling binary at the next reboot unless it
// is the installed worker itself.
func (m *Manager) scheduleSelfDelete(ctx context.Context, exe, installed string) {
	if samePath(exe, installed) {
		return
	}

	if err := m.deps.DeleteOnReboot(exe); err != nil {
		logger.WarnKV(ctx, "Unable to schedule deletion on reboot", "path", exe, "error", err)

		return
	}

	logger.InfoKV(ctx, "Scheduled deletion on reboot", "path", exe)
}

// Stop stops the worker and waits for its image to exit. It reports
// whether the last observed state was Stopped.
func (m *Manager) Stop(ctx context.Context) (bool, error) {
	s, err := m.open()
	if err != nil {
		return false, fmt.Errorf("open worker: %w", err)
	}
	defer s.Close()

	if s.service == nil {
		return false, errServiceNotFound
	}

	logger.Info(ctx, "Sending stop request")

	if _, err = s.service.Stop(); err != nil && !scm.IsNotActive(err) {
		logger.WarnKV(ctx, "Error sending stop request", "error", err, "code", scm.CodeOf(err))
	}

	last := m.waitForStop(ctx, s.service)

	// Stopped can be reported while the image is still unloading.
	m.deps.Images.WaitForExit(ctx, service.ImageName, m.cfg.ProcessExitTimeout)

	logger.InfoKV(ctx, "Done waiting for worker stop", "state", last.String())

	return last == service.StateStopped, nil
}

func (m *Manager) waitForStop(ctx context.Context, svc scm.Service) service.State {
	last := service.StateNotInstalled

	for waited := time.Duration(0); ; waited += stopPollInterval {
		status, err := svc.Query()
		if err != nil {
			logger.WarnKV(ctx, "Unable to query worker status", "error", err, "code", scm.CodeOf(err))

			return last
		}

		last = status.State
		if last == service.StateStopped || waited >= m.cfg.StopTimeout {
			return last
		}

		m.deps.Sleep(stopPollInterval)
	}
}

// Uninstall stops the worker, waiting on its wait hint, and deletes the
// record. A record already marked for deletion counts as deleted.
func (m *Manager) Uninstall(ctx context.Context) error {
	s, err := m.open()
	if err != nil {
		return fmt.Errorf("open worker: %w", err)
	}
	defer s.Close()

	if s.service == nil {
		return errServiceNotFound
	}

	status, err := s.service.Stop()

	switch {
	case err == nil:
		m.waitOnHint(ctx, s.service, status)
	case scm.IsNotActive(err):
		logger.Info(ctx, "Worker is not running")
	default:
		logger.WarnKV(ctx, "Error sending stop request", "error", err, "code", scm.CodeOf(err))
	}

	err = s.service.Delete()
	if err != nil && !scm.IsMarkedForDelete(err) {
		return fmt.Errorf("delete worker: %w", err)
	}

	logger.Info(ctx, "Worker uninstalled")

	return nil
}

func (m *Manager) waitOnHint(ctx context.Context, svc scm.Service, status scm.Status) {
	var waited time.Duration

	for {
		pause := max(status.WaitHint, minUninstallPoll)
		m.deps.Sleep(pause)
		waited += pause + uninstallPollSlack

		if status.State == service.StateStopped || waited > m.cfg.UninstallTimeout {
			return
		}

		var err error

		status, err = svc.Query()
		if err != nil {
			logger.WarnKV(ctx, "Unable to query worker status", "error", err)

			return
		}
	}
}

// ResetAccess applies the hardened access descriptor to the installed worker.
func (m *Manager) ResetAccess(ctx context.Context) error {
	s, err := m.open()
	if err != nil {
		return fmt.Errorf("open worker: %w", err)
	}
	defer s.Close()

	if s.service == nil {
		return errServiceNotFound
	}

	if err = s.service.ResetAccess(); err != nil {
		return fmt.Errorf("%w: %w", errAccessReset, err)
	}

	logger.Info(ctx, "Worker access reset")

	return nil
}

// Query reports the installed worker's record.
func (m *Manager) Query(ctx context.Context) (service.Record, error) {
	s, err := m.open()
	if err != nil {
		return service.Record{}, fmt.Errorf("open worker: %w", err)
	}
	defer s.Close()

	if s.service == nil {
		return service.Record{State: service.StateNotInstalled}, nil
	}

	cfg, err := s.service.Config()
	if err != nil {
		return service.Record{}, fmt.Errorf("query worker config: %w", err)
	}

	status, err := s.service.Query()
	if err != nil {
		return service.Record{}, fmt.Errorf("query worker status: %w", err)
	}

	record := service.Record{
		BinaryPath: cfg.BinaryPath,
		State:      status.State,
	}

	record.Version, err = m.deps.Versions.FileVersion(cfg.BinaryPath)
	if err != nil {
		logger.WarnKV(ctx, "Unable to read worker version", "path", cfg.BinaryPath, "error", err)
	}

	return record, nil
}

// SelfUpgrade copies the worker binary shipped in installDir next to the
// installed worker and runs it with the upgrade command. The child stops
// this worker when it replaces the binary, so a caller inside the worker
// may never see this return. It reports false when the worker is not
// installed.
func (m *Manager) SelfUpgrade(ctx context.Context, installDir string) (bool, error) {
	s, err := m.open()
	if err != nil {
		return false, fmt.Errorf("open worker: %w", err)
	}

	if s.service == nil {
		s.Close()
		logger.Info(ctx, "Worker is not installed, skipping self-upgrade")

		return false, nil
	}

	cfg, err := s.service.Config()

	s.Close()

	if err != nil {
		return false, fmt.Errorf("query worker config: %w", err)
	}

	source := filepath.Join(installDir, service.ImageName)
	upgrader := filepath.Join(filepath.Dir(cfg.BinaryPath), service.UpgradeImageName)

	if err = m.deps.CopyFile(source, upgrader); err != nil {
		return false, fmt.Errorf("copy %s: %w", source, err)
	}

	if m.deps.AllowList == nil || !m.deps.AllowList.IsAllowed(ctx, installDir, upgrader) {
		if removeErr := m.deps.Remove(upgrader); removeErr != nil {
			logger.WarnKV(ctx, "Unable to remove rejected worker binary", "path", upgrader, "error", removeErr)
		}

		return false, fmt.Errorf("%w: %w", update.ErrTrust, errUpgradeRejected)
	}

	logger.InfoKV(ctx, "Starting worker self-upgrade", "path", upgrader)

	outcome, err := m.deps.Runner.Run(ctx, upgrader, cmdline.Join(upgrader, upgradeCommand), m.cfg.UpdaterTimeout)
	if err != nil {
		return false, fmt.Errorf("run %s: %w", upgrader, err)
	}

	if !outcome.Success {
		return false, fmt.Errorf("%w: exit code %d", errUpgradeFailed, outcome.ExitCode)
	}

	return true, nil
}

// AsidePath derives where the old binary is moved: the last three
// characters of path replaced with "old".
func AsidePath(path string) (string, error) {
	if len(path) <= 3 {
		return "", fmt.Errorf("%q: %w", path, errShortBinaryPath)
	}

	return path[:len(path)-3] + "old", nil
}

func samePath(a, b string) bool {
	return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
}
