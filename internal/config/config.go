package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/update-service/internal/logger"
)

// Config holds the worker's tunables. Every field has a default, so a
// missing file yields a working configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LogDir is where the worker log lives; relative paths are resolved
	// against the worker binary's directory.
	LogDir string `yaml:"log_dir"`
	// MaxLogBackups is how many rotated logs are kept.
	MaxLogBackups int `yaml:"max_log_backups"`
	// RegistrationRoot is the HKLM subkey holding per-install registration records.
	RegistrationRoot string `yaml:"registration_root"`
	// UpdaterTimeout bounds a single updater run.
	UpdaterTimeout time.Duration `yaml:"updater_timeout"`
	// StopTimeout bounds the wait for the worker to report Stopped.
	StopTimeout time.Duration `yaml:"stop_timeout"`
	// ProcessExitTimeout bounds the wait for the worker image to exit after Stopped.
	ProcessExitTimeout time.Duration `yaml:"process_exit_timeout"`
	// UninstallTimeout bounds the stop phase of an uninstall.
	UninstallTimeout time.Duration `yaml:"uninstall_timeout"`
}

const (
	// DefaultConfigFilename is the settings file looked up beside the worker binary.
	DefaultConfigFilename = "update-service.yaml"

	// DefaultLogDir is relative to the worker binary's directory.
	DefaultLogDir = "logs"

	// DefaultLogFilename is the worker log file name.
	DefaultLogFilename = "updateservice.log"

	// DefaultMaxLogBackups is how many older logs are kept.
	DefaultMaxLogBackups = 5

	// DefaultRegistrationRoot is the HKLM subkey holding registration records.
	DefaultRegistrationRoot = `SOFTWARE\AveoSystems\UpdateService`

	// DefaultUpdaterTimeout is the longest an updater may run before it is killed.
	DefaultUpdaterTimeout = 15 * time.Minute

	// DefaultStopTimeout is the longest Stop polls for the Stopped state.
	DefaultStopTimeout = 30 * time.Second

	// DefaultProcessExitTimeout is the longest Stop waits for the image to exit.
	DefaultProcessExitTimeout = 30 * time.Second

	// DefaultUninstallTimeout is the longest Uninstall waits for the stop.
	DefaultUninstallTimeout = time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// maxTimeout caps every configurable wait.
	maxTimeout = time.Hour
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidLogLevel is returned for an unknown log level.
	errInvalidLogLevel = errors.New("unknown log level")
	// errTimeoutTooLong is returned when a timeout exceeds maxTimeout.
	errTimeoutTooLong = errors.New("timeout exceeds one hour")
	// errNegativeBackups is returned for a negative backup count.
	errNegativeBackups = errors.New("max_log_backups must not be negative")
	// errRegistrationRoot is returned for an absolute or empty-after-trim root.
	errRegistrationRoot = errors.New("registration_root must be a relative HKLM subkey")
)

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := new(Config)

	// Validate only fills defaults on an empty config.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from path. A missing file is not an error and
// yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadBeside loads DefaultConfigFilename from the directory of executable.
func LoadBeside(executable string) (*Config, error) {
	return Load(filepath.Join(filepath.Dir(executable), DefaultConfigFilename))
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults and checks bounds.
//
//nolint:cyclop // A flat list of field checks reads better than helpers.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.LogLevel == "" {
		settings.LogLevel = "info"
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("%q: %w", settings.LogLevel, errInvalidLogLevel)
	}

	if settings.LogDir == "" {
		settings.LogDir = DefaultLogDir
	}

	if settings.MaxLogBackups < 0 {
		return errNegativeBackups
	}

	if settings.MaxLogBackups == 0 {
		settings.MaxLogBackups = DefaultMaxLogBackups
	}

	settings.RegistrationRoot = strings.Trim(settings.RegistrationRoot, `\`)
	if settings.RegistrationRoot == "" {
		settings.RegistrationRoot = DefaultRegistrationRoot
	}

	if strings.Contains(settings.RegistrationRoot, ":") {
		return errRegistrationRoot
	}

	timeouts := []struct {
		value *time.Duration
		def   time.Duration
		name  string
	}{
		{&settings.UpdaterTimeout, DefaultUpdaterTimeout, "updater_timeout"},
		{&settings.StopTimeout, DefaultStopTimeout, "stop_timeout"},
		{&settings.ProcessExitTimeout, DefaultProcessExitTimeout, "process_exit_timeout"},
		{&settings.UninstallTimeout, DefaultUninstallTimeout, "uninstall_timeout"},
	}

	for _, timeout := range timeouts {
		if *timeout.value <= 0 {
			*timeout.value = timeout.def
		}

		if *timeout.value > maxTimeout {
			return fmt.Errorf("%s: %w", timeout.name, errTimeoutTooLong)
		}
	}

	return nil
}

// LogPath returns the absolute log file path for a worker binary at executable.
func (c *Config) LogPath(executable string) string {
	dir := c.LogDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(executable), dir)
	}

	return filepath.Join(dir, DefaultLogFilename)
}
