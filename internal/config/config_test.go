package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks defaults and bound validations for Config.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Defaults.
	settings := new(Config)
	require.NoError(t, Validate(settings))
	require.Equal(t, "info", settings.LogLevel)
	require.Equal(t, DefaultUpdaterTimeout, settings.UpdaterTimeout)
	require.Equal(t, DefaultStopTimeout, settings.StopTimeout)
	require.Equal(t, DefaultProcessExitTimeout, settings.ProcessExitTimeout)
	require.Equal(t, DefaultUninstallTimeout, settings.UninstallTimeout)
	require.Equal(t, DefaultRegistrationRoot, settings.RegistrationRoot)
	require.Equal(t, DefaultMaxLogBackups, settings.MaxLogBackups)

	// Bad level.
	require.Error(t, Validate(&Config{LogLevel: "loud"}))

	// Too long.
	require.Error(t, Validate(&Config{UpdaterTimeout: 2 * time.Hour}))

	// Negative backups.
	require.Error(t, Validate(&Config{MaxLogBackups: -1}))

	// Registry root must not look like a path.
	require.Error(t, Validate(&Config{RegistrationRoot: `C:\Windows`}))

	// Surrounding separators are trimmed.
	settings = &Config{RegistrationRoot: `\SOFTWARE\Vendor\`}
	require.NoError(t, Validate(settings))
	require.Equal(t, `SOFTWARE\Vendor`, settings.RegistrationRoot)

	require.Error(t, Validate(nil))
}

// TestLoad_MissingFileUsesDefaults ensures the settings file is optional.
func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFilename)

	settings := &Config{
		LogLevel:       "debug",
		UpdaterTimeout: 5 * time.Minute,
	}

	require.NoError(t, Save(path, settings))

	loaded, err := LoadBeside(filepath.Join(dir, "updateservice.exe"))
	require.NoError(t, err)
	require.Equal(t, "debug", loaded.LogLevel)
	require.Equal(t, 5*time.Minute, loaded.UpdaterTimeout)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoad_RejectsMalformedYAML surfaces decode errors.
func TestLoad_RejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [unterminated"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

// TestLogPath resolves relative log directories against the binary directory.
func TestLogPath(t *testing.T) {
	t.Parallel()

	cfg := Default()
	exe := filepath.Join("svc", "updateservice.exe")
	require.Equal(t, filepath.Join("svc", DefaultLogDir, DefaultLogFilename), cfg.LogPath(exe))

	abs := t.TempDir()
	cfg.LogDir = abs
	require.Equal(t, filepath.Join(abs, DefaultLogFilename), cfg.LogPath(exe))
}
