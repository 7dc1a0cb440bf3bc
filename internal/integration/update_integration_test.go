//go:build !windows

package integration

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/update-service/internal/config"
	"github.com/oshokin/update-service/internal/domain/service"
	"github.com/oshokin/update-service/internal/domain/update"
	"github.com/oshokin/update-service/internal/pathcheck"
	"github.com/oshokin/update-service/internal/process"
	"github.com/oshokin/update-service/internal/repository/registration"
	"github.com/oshokin/update-service/internal/scm"
	"github.com/oshokin/update-service/internal/service/lifecycle"
	"github.com/oshokin/update-service/internal/service/trigger"
	"github.com/oshokin/update-service/internal/service/worker"
	"github.com/oshokin/update-service/internal/staging"
)

const (
	installDir   = `C:\Program Files\Mira Connect`
	productKey   = `SOFTWARE\AveoSystems\Mira Connect`
	signerName   = "Aveo Systems, Inc."
	signerIssuer = "DigiCert Trusted G4 Code Signing RSA4096 SHA384 2021 CA1"
)

// hostPaths accepts absolute host paths, which only the updater uses here,
// and checks Windows paths with the real validator.
type hostPaths struct {
	windows *pathcheck.Validator
}

func (p hostPaths) Validate(ctx context.Context, path string) (pathcheck.ValidatedPath, error) {
	if strings.HasPrefix(path, "/") {
		return pathcheck.ValidatedPath{Path: path, Root: "/", Kind: pathcheck.RootLocal}, nil
	}

	return p.windows.Validate(ctx, path)
}

// fileTrust treats every existing file as a local updater carrying identity.
type fileTrust struct {
	identity string
}

func (fileTrust) IsLocalFixed(string) (bool, error) {
	return true, nil
}

func (fileTrust) OpenNoWrite(path string) (io.Closer, error) {
	return os.Open(filepath.Clean(path))
}

func (f fileTrust) ReadIdentity(string) ([]byte, error) {
	return append([]byte(f.identity), 0), nil
}

// fixedSigner reports the same signing certificate for every file.
type fixedSigner struct{}

func (fixedSigner) Signer(string) (*x509.Certificate, error) {
	return &x509.Certificate{
		Subject: pkix.Name{CommonName: signerName},
		Issuer:  pkix.Name{CommonName: signerIssuer},
	}, nil
}

// env is a worker installed in a temporary directory behind an in-memory
// service manager and registry.
type env struct {
	dir        string
	workerExe  string
	shipped    string
	argsFile   string
	markerFile string
	hive       *registration.MemoryHive
	memory     *scm.Memory
	trigger    *trigger.Trigger

	mu        sync.Mutex
	exitCodes []uint32
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700))
}

func newEnv(t *testing.T, identity string) *env {
	t.Helper()

	dir := t.TempDir()
	e := &env{
		dir:        dir,
		workerExe:  filepath.Join(dir, "svc", service.ImageName),
		shipped:    filepath.Join(dir, "shipped-worker"),
		argsFile:   filepath.Join(dir, "updater-args.txt"),
		markerFile: filepath.Join(dir, "upgrade-args.txt"),
		hive:       registration.NewMemoryHive(),
		memory:     scm.NewMemory(),
	}

	writeScript(t, e.workerExe, "exit 0")
	writeScript(t, e.shipped, `printf '%s\n' "$@" > `+e.markerFile)

	cfg := config.Default()
	store := registration.NewStore(e.hive, cfg.RegistrationRoot)

	e.hive.SetString(productKey, "", installDir)
	e.hive.SetKey(store.KeyFor(installDir))
	e.hive.SetString(store.KeyFor(installDir)+`\0`, "name", signerName)
	e.hive.SetString(store.KeyFor(installDir)+`\0`, "issuer", signerIssuer)

	e.memory.Install(service.Name, scm.Config{BinaryPath: e.workerExe}, service.StateStopped)

	paths := hostPaths{windows: pathcheck.NewOSValidator()}

	components := worker.Wire(cfg, e.workerExe, worker.Host{
		Hive:      e.hive,
		Connector: e.memory,
		Paths:     paths,
		Trust:     fileTrust{identity: identity},
		Signers:   fixedSigner{},
		Runner:    process.NewRunner(),
		Lifecycle: lifecycle.Deps{
			// The shipped worker stands in for <installDir>\updateservice.exe.
			CopyFile: func(_, dst string) error {
				data, err := os.ReadFile(e.shipped)
				if err != nil {
					return err
				}

				return os.WriteFile(dst, data, 0o700)
			},
		},
	})

	w := worker.New(components.Executor)

	e.memory.OnStart = func(_ string, args []string) {
		code := w.Handle(context.Background(), args)

		e.mu.Lock()
		e.exitCodes = append(e.exitCodes, code)
		e.mu.Unlock()
	}

	e.trigger = trigger.New(trigger.Deps{
		Paths:     paths,
		Registry:  store,
		Connector: e.memory,
	})

	return e
}

func (e *env) codes() []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]uint32(nil), e.exitCodes...)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// TestUpdate_EndToEnd runs a trusted updater through trigger, worker,
// staging and self-upgrade.
func TestUpdate_EndToEnd(t *testing.T) {
	t.Parallel()

	e := newEnv(t, update.UpdaterIdentity)

	updater := filepath.Join(e.dir, "downloads", "MiraSetup.exe")
	writeScript(t, updater, `printf '%s\n' "$@" > `+e.argsFile)

	require.Equal(t, trigger.ExitSuccess, e.trigger.Run(context.Background(), []string{updater, productKey}))
	require.Equal(t, []uint32{worker.ExitSuccess}, e.codes())

	require.Equal(t, []string{"/S", "/D=" + installDir}, readLines(t, e.argsFile))
	require.Equal(t, []string{"upgrade"}, readLines(t, e.markerFile))

	stager := staging.NewStager(e.workerExe)
	require.NoFileExists(t, stager.Path())
	require.NoFileExists(t, stager.SidecarPath())

	record, found := e.memory.Record(service.Name)
	require.True(t, found)
	require.Equal(t, service.StateStopped, record.State)
}

// TestUpdate_UntrustedUpdaterNeverRuns stops at the identity check.
func TestUpdate_UntrustedUpdaterNeverRuns(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "some-other-product")

	updater := filepath.Join(e.dir, "downloads", "MiraSetup.exe")
	writeScript(t, updater, `printf '%s\n' "$@" > `+e.argsFile)

	require.Equal(t, trigger.ExitSuccess, e.trigger.Run(context.Background(), []string{updater, productKey}))
	require.Equal(t, []uint32{worker.ExitTrust}, e.codes())
	require.NoFileExists(t, e.argsFile)
	require.NoFileExists(t, e.markerFile)
	require.NoFileExists(t, staging.NewStager(e.workerExe).Path())
}

// TestUpdate_UnregisteredInstallDir stops before the updater is inspected.
func TestUpdate_UnregisteredInstallDir(t *testing.T) {
	t.Parallel()

	e := newEnv(t, update.UpdaterIdentity)

	otherKey := `SOFTWARE\Somebody\Else`
	e.hive.SetString(otherKey, "", `C:\Program Files\Somebody Else`)

	updater := filepath.Join(e.dir, "downloads", "MiraSetup.exe")
	writeScript(t, updater, `printf '%s\n' "$@" > `+e.argsFile)

	require.Equal(t, trigger.ExitSuccess, e.trigger.Run(context.Background(), []string{updater, otherKey}))
	require.Equal(t, []uint32{worker.ExitConfiguration}, e.codes())
	require.NoFileExists(t, e.argsFile)
}

// TestUpdate_FailingUpdaterSkipsSelfUpgrade reports the failure and keeps
// the worker as it is.
func TestUpdate_FailingUpdaterSkipsSelfUpgrade(t *testing.T) {
	t.Parallel()

	e := newEnv(t, update.UpdaterIdentity)

	updater := filepath.Join(e.dir, "downloads", "MiraSetup.exe")
	writeScript(t, updater, "exit 4")

	require.Equal(t, trigger.ExitSuccess, e.trigger.Run(context.Background(), []string{updater, productKey}))
	require.Equal(t, []uint32{worker.ExitExecution}, e.codes())
	require.NoFileExists(t, e.markerFile)
	require.NoFileExists(t, staging.NewStager(e.workerExe).Path())
}

// TestUpdate_TriggerRejectsRunningWorker never queues a second command.
func TestUpdate_TriggerRejectsRunningWorker(t *testing.T) {
	t.Parallel()

	e := newEnv(t, update.UpdaterIdentity)
	e.memory.SetState(service.Name, service.StateRunning)

	updater := filepath.Join(e.dir, "downloads", "MiraSetup.exe")
	writeScript(t, updater, "exit 0")

	require.Equal(t, trigger.ExitAlreadyRunning, e.trigger.Run(context.Background(), []string{updater, productKey}))
	require.Empty(t, e.codes())
}
