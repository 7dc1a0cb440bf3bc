package logger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		" WARN": zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestFromContext_FallsBackToNop ensures logging without a configured logger is harmless.
func TestFromContext_FallsBackToNop(t *testing.T) {
	t.Parallel()

	//nolint:staticcheck // A nil context must not panic.
	require.NotNil(t, FromContext(nil))
	require.NotNil(t, FromContext(context.Background()))

	Info(context.Background(), "dropped")
}

// TestContextHelpers checks that names and fields reach the written entries.
func TestContextHelpers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ctx := ToContext(context.Background(), New(zapcore.DebugLevel, &buf, false))
	ctx = WithName(ctx, "worker")
	ctx = WithKV(ctx, "invocation", "abc")

	InfoKV(ctx, "Service command", "command", "software-update")
	Sync(ctx)

	out := buf.String()
	require.Contains(t, out, "worker")
	require.Contains(t, out, "Service command")
	require.Contains(t, out, "abc")
	require.Contains(t, out, "software-update")
}

// TestOpenFile_RotatesBackups verifies old logs are shifted and the oldest dropped.
func TestOpenFile_RotatesBackups(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "updateservice.log")

	for i := range 4 {
		f, err := OpenFile(path, zapcore.InfoLevel, 2)
		require.NoError(t, err)

		f.Logger().Infof("run %d", i)
		require.NoError(t, f.Close())
		require.NoError(t, f.Close())
	}

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(current), "run 3")

	first, err := os.ReadFile(BackupPath(path, 1))
	require.NoError(t, err)
	require.Contains(t, string(first), "run 2")

	second, err := os.ReadFile(BackupPath(path, 2))
	require.NoError(t, err)
	require.Contains(t, string(second), "run 1")

	_, err = os.Stat(BackupPath(path, 3))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFile_LogAfterClose drops entries written by a goroutine that outlives
// the file's owner.
func TestFile_LogAfterClose(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "updateservice.log")

	f, err := OpenFile(path, zapcore.InfoLevel, 0)
	require.NoError(t, err)

	log := f.Logger()
	log.Info("before close")

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		for i := range 100 {
			log.Infof("child still running %d", i)
		}
	}()

	require.NoError(t, f.Close())
	wg.Wait()

	log.Info("after close")
	require.NoError(t, f.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "before close")
	require.NotContains(t, string(contents), "after close")
}

// TestBackupPath keeps the extension after the backup number.
func TestBackupPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, filepath.Join("logs", "updateservice-3.log"),
		BackupPath(filepath.Join("logs", "updateservice.log"), 3))
}
