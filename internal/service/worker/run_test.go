package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/update-service/internal/domain/service"
	"github.com/oshokin/update-service/internal/repository/registration"
	"github.com/oshokin/update-service/internal/scm"
)

// TestManage_InstallStatusUninstall drives the administrative commands
// against an in-memory service manager.
func TestManage_InstallStatusUninstall(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	executable := filepath.Join(t.TempDir(), "svc", service.ImageName)
	memory := scm.NewMemory()

	opts := &Options{
		Executable: executable,
		Host: Host{
			Hive:      registration.NewMemoryHive(),
			Connector: memory,
		},
	}

	result, err := Manage(ctx, opts, CommandStatus)
	require.NoError(t, err)
	require.Equal(t, service.Name+": not-installed", result)

	result, err = Manage(ctx, opts, CommandInstall)
	require.NoError(t, err)
	require.Equal(t, "install completed", result)

	record, found := memory.Record(service.Name)
	require.True(t, found)
	require.Equal(t, executable, record.BinaryPath)
	require.True(t, record.Access.IsHardened())

	result, err = Manage(ctx, opts, CommandStatus)
	require.NoError(t, err)
	require.Contains(t, result, service.Name+": stopped")
	require.Contains(t, result, "path: "+executable)

	_, err = Manage(ctx, opts, CommandUninstall)
	require.NoError(t, err)

	_, found = memory.Record(service.Name)
	require.False(t, found)

	logFile := filepath.Join(filepath.Dir(executable), "logs", "updateservice-install.log")
	info, err := os.Stat(logFile)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

// TestManage_UnknownCommand rejects anything outside the command set.
func TestManage_UnknownCommand(t *testing.T) {
	t.Parallel()

	opts := &Options{
		Executable: filepath.Join(t.TempDir(), service.ImageName),
		Host:       Host{Hive: registration.NewMemoryHive(), Connector: scm.NewMemory()},
	}

	_, err := Manage(context.Background(), opts, Command("reboot"))
	require.ErrorIs(t, err, errUnknownCommand)
}
