package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/update-service/internal/domain/service"
	"github.com/oshokin/update-service/internal/domain/update"
	"github.com/oshokin/update-service/internal/pathcheck"
	"github.com/oshokin/update-service/internal/repository/registration"
	"github.com/oshokin/update-service/internal/scm"
)

const (
	updaterPath = `C:\ProgramData\Mira\Downloads\MiraSetup.exe`
	installPath = `C:\Program Files\Mira Connect`
	productKey  = `SOFTWARE\AveoSystems\Mira Connect`
)

type harness struct {
	hive    *registration.MemoryHive
	memory  *scm.Memory
	sleeps  int
	trigger *Trigger
}

func newHarness() *harness {
	h := &harness{
		hive:   registration.NewMemoryHive(),
		memory: scm.NewMemory(),
	}

	h.hive.SetString(productKey, "", installPath)
	h.memory.Install(service.Name, scm.Config{BinaryPath: `C:\Program Files\Aveo Systems\updateservice.exe`}, service.StateStopped)

	h.trigger = New(Deps{
		Paths:     pathcheck.NewOSValidator(),
		Registry:  registration.NewStore(h.hive, ""),
		Connector: h.memory,
		Sleep:     func(time.Duration) { h.sleeps++ },
	})

	return h
}

// TestRun_StartsWorker passes exactly three arguments with the limited scope.
func TestRun_StartsWorker(t *testing.T) {
	t.Parallel()

	h := newHarness()

	require.Equal(t, ExitSuccess, h.trigger.Run(context.Background(), []string{updaterPath, productKey}))
	require.Equal(t, [][]string{{update.CommandSoftwareUpdate, updaterPath, installPath}}, h.memory.Starts())
	require.Equal(t, []scm.Scope{scm.ScopeTrigger}, h.memory.Scopes())
	require.Zero(t, h.sleeps)
}

// TestRun_ExitCodes covers every early exit of the trigger.
func TestRun_ExitCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		args  []string
		setup func(h *harness)
		want  int
	}{
		{
			name: "no arguments",
			want: ExitNotEnoughArgs,
		},
		{
			name: "one argument",
			args: []string{updaterPath},
			want: ExitNotEnoughArgs,
		},
		{
			name: "relative updater",
			args: []string{`Downloads\MiraSetup.exe`, productKey},
			want: ExitInvalidUpdaterPath,
		},
		{
			name: "traversing updater",
			args: []string{`C:\ProgramData\..\Windows\MiraSetup.exe`, productKey},
			want: ExitInvalidUpdaterPath,
		},
		{
			name: "missing key",
			args: []string{updaterPath, `SOFTWARE\Nobody`},
			want: ExitInvalidRegistryKey,
		},
		{
			name:  "empty value",
			args:  []string{updaterPath, productKey},
			setup: func(h *harness) { h.hive.SetString(productKey, "", "") },
			want:  ExitInvalidRegistryKey,
		},
		{
			name:  "bad install path",
			args:  []string{updaterPath, productKey},
			setup: func(h *harness) { h.hive.SetString(productKey, "", `\\?\C:\Program Files\Mira Connect`) },
			want:  ExitInvalidInstallPath,
		},
		{
			name:  "running",
			args:  []string{updaterPath, productKey},
			setup: func(h *harness) { h.memory.SetState(service.Name, service.StateRunning) },
			want:  ExitAlreadyRunning,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness()
			if tc.setup != nil {
				tc.setup(h)
			}

			require.Equal(t, tc.want, h.trigger.Run(context.Background(), tc.args))
			require.Empty(t, h.memory.Starts())
		})
	}
}

// TestRun_RegistryBeforeServiceManager never contacts the SCM for a bad key.
func TestRun_RegistryBeforeServiceManager(t *testing.T) {
	t.Parallel()

	h := newHarness()

	require.Equal(t, ExitInvalidRegistryKey, h.trigger.Run(context.Background(), []string{updaterPath, `SOFTWARE\Nobody`}))
	require.Empty(t, h.memory.Scopes())
}

// TestRun_StopPendingIsAccepted retries while the previous run is stopping.
func TestRun_StopPendingIsAccepted(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.memory.StopPolls = 10
	h.memory.SetState(service.Name, service.StateStopPending)

	h.trigger.deps.Sleep = func(time.Duration) {
		h.sleeps++
		if h.sleeps == 3 {
			h.memory.SetState(service.Name, service.StateStopped)
		}
	}

	require.Equal(t, ExitSuccess, h.trigger.Run(context.Background(), []string{updaterPath, productKey}))
	require.Equal(t, 3, h.sleeps)
	require.Len(t, h.memory.Starts(), 1)
}

// TestRun_StartFailureReturnsStatusCode gives up after the retry window.
func TestRun_StartFailureReturnsStatusCode(t *testing.T) {
	t.Parallel()

	h := newHarness()

	const databaseLocked = 1055
	for range int(startRetryWindow / startRetryInterval) {
		h.memory.Fail("Start", databaseLocked)
	}

	require.Equal(t, databaseLocked, h.trigger.Run(context.Background(), []string{updaterPath, productKey}))
	require.Equal(t, 50, h.sleeps)
	require.Empty(t, h.memory.Starts())
}

// TestRun_MissingService returns the SCM status code.
func TestRun_MissingService(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.memory = scm.NewMemory()
	h.trigger.deps.Connector = h.memory

	require.Equal(t, int(scm.CodeServiceDoesNotExist), h.trigger.Run(context.Background(), []string{updaterPath, productKey}))
}
