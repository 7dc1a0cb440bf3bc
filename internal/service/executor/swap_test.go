package executor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/update-service/internal/config"
	"github.com/oshokin/update-service/internal/domain/update"
	"github.com/oshokin/update-service/internal/staging"
	"github.com/oshokin/update-service/internal/trust"
)

// contentInspector reads the identity straight from the file content.
type contentInspector struct{}

func (contentInspector) IsLocalFixed(string) (bool, error) {
	return true, nil
}

func (contentInspector) OpenNoWrite(path string) (io.Closer, error) {
	return os.Open(filepath.Clean(path))
}

func (contentInspector) ReadIdentity(path string) ([]byte, error) {
	return os.ReadFile(filepath.Clean(path))
}

type allowAll struct{}

func (allowAll) IsAllowed(context.Context, string, string) bool {
	return true
}

// swappingGate replaces the source file once the first evaluation passes.
type swappingGate struct {
	*trust.Gate
	source  string
	payload []byte
	swapped bool
}

func (g *swappingGate) Evaluate(ctx context.Context, candidate *update.Candidate, installDir string) error {
	err := g.Gate.Evaluate(ctx, candidate, installDir)
	if err == nil && !g.swapped {
		g.swapped = true
		err = os.WriteFile(g.source, g.payload, 0o600)
	}

	return err
}

// TestExecute_SourceSwappedAfterGate never runs bytes the gate did not see.
func TestExecute_SourceSwappedAfterGate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	source := filepath.Join(dir, "MiraSetup.exe")
	require.NoError(t, os.WriteFile(source, []byte(update.UpdaterIdentity), 0o600))

	stager := staging.NewStager(filepath.Join(dir, "service", "updateservice.exe"))
	gate := &swappingGate{
		Gate:    trust.NewGate(contentInspector{}, allowAll{}),
		source:  source,
		payload: []byte(update.UpdaterIdentity + "EVIL!!!"),
	}

	p := newPipeline()
	executor := New(config.Default(), Deps{
		Paths:         p,
		Registrations: p,
		Gate:          gate,
		Stager:        stager,
		Runner:        p,
		Upgrader:      p,
		NewID:         func() string { return "test-invocation" },
	})

	_, err := executor.Execute(context.Background(), request(source, installDir))
	require.ErrorIs(t, err, update.ErrTrust)
	require.True(t, gate.swapped)
	require.NotContains(t, p.calls, "run")
	require.NoFileExists(t, stager.Path())
}

// TestExecute_StagedCopyRuns passes the real gate and stager end to end.
func TestExecute_StagedCopyRuns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	source := filepath.Join(dir, "MiraSetup.exe")
	require.NoError(t, os.WriteFile(source, []byte(update.UpdaterIdentity), 0o600))

	stager := staging.NewStager(filepath.Join(dir, "service", "updateservice.exe"))

	p := newPipeline()
	executor := New(config.Default(), Deps{
		Paths:         p,
		Registrations: p,
		Gate:          trust.NewGate(contentInspector{}, allowAll{}),
		Stager:        stager,
		Runner:        p,
		Upgrader:      p,
		NewID:         func() string { return "test-invocation" },
	})

	outcome, err := executor.Execute(context.Background(), request(source, installDir))
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Contains(t, p.commandLine, stager.Path())
	require.NoFileExists(t, stager.Path())
}
