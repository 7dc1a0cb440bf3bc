package scm

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/update-service/internal/domain/service"
)

// TestCodeOf reads codes from tagged errors and raw errnos.
func TestCodeOf(t *testing.T) {
	t.Parallel()

	tagged := fmt.Errorf("stop worker: %w", &Error{Op: "ControlService", Code: CodeServiceNotActive})
	require.True(t, IsNotActive(tagged))
	require.ErrorIs(t, tagged, ErrServiceManager)

	wrapped := Wrap("DeleteService", syscall.Errno(CodeServiceMarkedForDelete))
	require.True(t, IsMarkedForDelete(wrapped))
	require.ErrorIs(t, wrapped, syscall.Errno(CodeServiceMarkedForDelete))

	require.True(t, IsNotExist(syscall.Errno(CodeServiceDoesNotExist)))
	require.Zero(t, CodeOf(errors.New("plain")))
	require.NoError(t, Wrap("StartService", nil))
}

// TestBinaryPathOf strips quotes and arguments.
func TestBinaryPathOf(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`"C:\Program Files\Svc\updateservice.exe" --flag`: `C:\Program Files\Svc\updateservice.exe`,
		`C:\Svc\updateservice.exe`:                         `C:\Svc\updateservice.exe`,
		`C:\Program Files\Svc\updateservice.EXE arg`:       `C:\Program Files\Svc\updateservice.EXE`,
		`  "C:\a b\x.exe"  `:                               `C:\a b\x.exe`,
	}

	for in, want := range cases {
		require.Equal(t, want, BinaryPathOf(in), in)
	}
}

// TestMemory_StopAndDelete follows the real transition and error codes.
func TestMemory_StopAndDelete(t *testing.T) {
	t.Parallel()

	memory := NewMemory()
	memory.StopPolls = 2
	memory.Install(service.Name, Config{BinaryPath: `C:\svc\updateservice.exe`}, service.StateRunning)

	m, err := memory.Connect(ScopeFull)
	require.NoError(t, err)

	s, err := m.OpenService(service.Name)
	require.NoError(t, err)

	status, err := s.Stop()
	require.NoError(t, err)
	require.Equal(t, service.StateStopPending, status.State)

	for range 2 {
		status, err = s.Query()
		require.NoError(t, err)
		require.Equal(t, service.StateStopPending, status.State)
	}

	status, err = s.Query()
	require.NoError(t, err)
	require.Equal(t, service.StateStopped, status.State)

	_, err = s.Stop()
	require.True(t, IsNotActive(err))

	require.NoError(t, s.Delete())
	require.True(t, IsMarkedForDelete(s.Delete()))

	_, err = m.OpenService(service.Name)
	require.True(t, IsNotExist(err))
}

// TestMemory_TriggerScopeIsLimited refuses administrative calls.
func TestMemory_TriggerScopeIsLimited(t *testing.T) {
	t.Parallel()

	memory := NewMemory()
	memory.Install(service.Name, Config{}, service.StateStopped)

	m, err := memory.Connect(ScopeTrigger)
	require.NoError(t, err)

	_, err = m.CreateService("Other", Config{})
	require.Equal(t, CodeAccessDenied, CodeOf(err))

	s, err := m.OpenService(service.Name)
	require.NoError(t, err)
	require.Equal(t, CodeAccessDenied, CodeOf(s.Delete()))
	require.Equal(t, CodeAccessDenied, CodeOf(s.ResetAccess()))

	require.NoError(t, s.Start("a", "b"))
	require.Equal(t, [][]string{{"a", "b"}}, memory.Starts())
	require.True(t, IsAlreadyRunning(s.Start()))

	memory.Fail("Start", CodeAccessDenied)
	memory.SetState(service.Name, service.StateStopped)
	require.Equal(t, CodeAccessDenied, CodeOf(s.Start()))
}
