package staging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/update-service/internal/domain/update"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func newTestStager(t *testing.T) (*Stager, string) {
	t.Helper()

	root := t.TempDir()
	svcDir := filepath.Join(root, "svc")
	require.NoError(t, os.MkdirAll(svcDir, 0o700))

	return NewStager(filepath.Join(svcDir, "updateservice.exe")), root
}

// TestStage_CopiesAndVerifies stages an unmodified candidate.
func TestStage_CopiesAndVerifies(t *testing.T) {
	t.Parallel()

	stager, root := newTestStager(t)
	source := filepath.Join(root, "updater.exe")
	payload := bytes.Repeat([]byte("MZ payload "), 10000)
	writeFile(t, source, payload)

	staged, err := stager.Stage(context.Background(), source)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "svc", DirName, UpdaterName), staged)

	contents, err := os.ReadFile(staged)
	require.NoError(t, err)
	require.Equal(t, payload, contents)

	same, err := SameFiles(source, staged)
	require.NoError(t, err)
	require.True(t, same)
}

// TestStage_DetectsSourceSwap aborts when the source changes after the copy.
func TestStage_DetectsSourceSwap(t *testing.T) {
	t.Parallel()

	for name, replacement := range map[string][]byte{
		"same size":      []byte("evil-bytes!"),
		"different size": []byte("evil"),
	} {
		stager, root := newTestStager(t)
		source := filepath.Join(root, "updater.exe")
		writeFile(t, source, []byte("good-bytes!"))

		swap := func(string) { writeFile(t, source, replacement) }

		_, err := stager.stage(context.Background(), source, swap)
		require.ErrorIs(t, err, update.ErrStaging, name)
		require.ErrorIs(t, err, errContentMismatch, name)
	}
}

// TestStage_RemovesPreviousArtifacts clears an old updater and sidecar first.
func TestStage_RemovesPreviousArtifacts(t *testing.T) {
	t.Parallel()

	stager, root := newTestStager(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(stager.Path()), 0o700))
	writeFile(t, stager.Path(), bytes.Repeat([]byte("stale"), 1000))
	writeFile(t, stager.SidecarPath(), []byte("[Settings]"))

	source := filepath.Join(root, "updater.exe")
	writeFile(t, source, []byte("fresh"))

	staged, err := stager.Stage(context.Background(), source)
	require.NoError(t, err)

	contents, err := os.ReadFile(staged)
	require.NoError(t, err)
	require.Equal(t, []byte("fresh"), contents)
	require.NoFileExists(t, stager.SidecarPath())

	stager.Cleanup(context.Background())
	require.NoFileExists(t, stager.Path())

	// Cleanup of absent files is quiet.
	stager.Cleanup(context.Background())
}

// TestStage_MissingSource wraps the copy failure.
func TestStage_MissingSource(t *testing.T) {
	t.Parallel()

	stager, root := newTestStager(t)

	_, err := stager.Stage(context.Background(), filepath.Join(root, "missing.exe"))
	require.ErrorIs(t, err, update.ErrStaging)
}

// TestSameFiles compares across chunk boundaries.
func TestSameFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")

	data := bytes.Repeat([]byte{0xAB}, 3*chunkSize+17)
	writeFile(t, a, data)
	writeFile(t, b, data)

	same, err := SameFiles(a, b)
	require.NoError(t, err)
	require.True(t, same)

	changed := append([]byte(nil), data...)
	changed[2*chunkSize+5] = 0
	writeFile(t, b, changed)

	same, err = SameFiles(a, b)
	require.NoError(t, err)
	require.False(t, same)

	writeFile(t, b, data[:len(data)-1])

	same, err = SameFiles(a, b)
	require.NoError(t, err)
	require.False(t, same)

	_, err = SameFiles(a, filepath.Join(dir, "missing"))
	require.Error(t, err)

	empty := filepath.Join(dir, "empty")
	writeFile(t, empty, nil)

	same, err = SameFiles(empty, empty)
	require.NoError(t, err)
	require.True(t, same)
}
