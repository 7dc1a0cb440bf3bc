package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// logDirPermissions restricts the log directory to its owner.
	logDirPermissions = 0o700
	// logFilePermissions restricts the log file to its owner.
	logFilePermissions = 0o600
)

// File is a logger writing to a file it owns. Close must be called on every
// exit path; it flushes pending entries and releases the handle. Entries
// logged after Close are dropped.
type File struct {
	// logger writes to sink.
	logger *zap.SugaredLogger
	// sink guards the open log file.
	sink *fileSink
}

// fileSink serializes access to the log file so a goroutine still logging
// while the owner closes it never writes to a released handle.
type fileSink struct {
	mu   sync.Mutex
	file *os.File
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return len(p), nil
	}

	return s.file.Write(p)
}

func (s *fileSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	return s.file.Sync()
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil

	return err
}

// OpenFile rotates existing backups of path, keeping at most maxBackups,
// and opens a fresh log file at path.
func OpenFile(path string, level zapcore.Level, maxBackups int) (*File, error) {
	path = filepath.Clean(path)

	if err := os.MkdirAll(filepath.Dir(path), logDirPermissions); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	if err := rotateBackups(path, maxBackups); err != nil {
		return nil, fmt.Errorf("rotate log backups: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, logFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	sink := &fileSink{file: file}

	return &File{
		logger: New(level, sink, false),
		sink:   sink,
	}, nil
}

// Logger returns the logger bound to the file.
func (f *File) Logger() *zap.SugaredLogger {
	return f.logger
}

// Close flushes and closes the file. It is safe to call more than once.
func (f *File) Close() error {
	if f == nil {
		return nil
	}

	_ = f.logger.Sync()

	return f.sink.Close()
}

// BackupPath returns the name of the n-th backup of path: "x.log" becomes "x-n.log".
func BackupPath(path string, n int) string {
	ext := filepath.Ext(path)

	return strings.TrimSuffix(path, ext) + "-" + strconv.Itoa(n) + ext
}

// rotateBackups drops the oldest backup, shifts the others up by one and
// moves the current log to backup number one.
func rotateBackups(path string, maxBackups int) error {
	if maxBackups <= 0 {
		return removeIfExists(path)
	}

	if err := removeIfExists(BackupPath(path, maxBackups)); err != nil {
		return err
	}

	for n := maxBackups - 1; n >= 1; n-- {
		if err := renameIfExists(BackupPath(path, n), BackupPath(path, n+1)); err != nil {
			return err
		}
	}

	return renameIfExists(path, BackupPath(path, 1))
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

func renameIfExists(from, to string) error {
	if err := os.Rename(from, to); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}
