package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/update-service/internal/domain/update"
)

type fakeExecutor struct {
	requests []*update.Request
	err      error
}

func (f *fakeExecutor) Execute(_ context.Context, req *update.Request) (update.Outcome, error) {
	f.requests = append(f.requests, req)

	if f.err != nil {
		return update.Outcome{}, f.err
	}

	return update.Outcome{Success: true}, nil
}

// TestHandle passes the start arguments through as a request.
func TestHandle(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{}
	w := New(executor)

	code := w.Handle(context.Background(), []string{"software-update", `C:\u.exe`, `C:\App`, "x"})
	require.Equal(t, ExitSuccess, code)
	require.Len(t, executor.requests, 1)
	require.Equal(t, `C:\App`, executor.requests[0].InstallDir)
	require.Equal(t, []string{"x"}, executor.requests[0].ExtraArgs)
}

// TestHandle_NoCommand is a quiet no-op.
func TestHandle_NoCommand(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{}

	require.Equal(t, ExitSuccess, New(executor).Handle(context.Background(), nil))
	require.Empty(t, executor.requests)
}

// TestHandle_Failure reports the error kind.
func TestHandle_Failure(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{err: fmt.Errorf("%w: bad signer", update.ErrTrust)}

	require.Equal(t, ExitTrust, New(executor).Handle(context.Background(), []string{"software-update"}))
}

// TestExitCode maps each kind to a distinct code.
func TestExitCode(t *testing.T) {
	t.Parallel()

	cases := map[error]uint32{
		nil:                     ExitSuccess,
		update.ErrArgument:      ExitArgument,
		update.ErrPath:          ExitPath,
		update.ErrConfiguration: ExitConfiguration,
		update.ErrTrust:         ExitTrust,
		update.ErrStaging:       ExitStaging,
		update.ErrExecution:     ExitExecution,
		errors.New("other"):     ExitInternal,
	}

	for err, want := range cases {
		require.Equal(t, want, ExitCode(err), "%v", err)
	}
}
