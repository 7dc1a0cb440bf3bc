package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oshokin/update-service/internal/domain/update"
	"github.com/oshokin/update-service/internal/logger"
)

const (
	// DirName is the staging subdirectory beside the worker binary.
	DirName = "update"
	// UpdaterName is the leaf name of the staged updater.
	UpdaterName = "updater.exe"
	// SidecarName is the updater's configuration file, removed together with it.
	SidecarName = "updater.ini"

	// dirPermissions keeps the staging directory private to its owner.
	dirPermissions = 0o700
	// filePermissions is applied to the staged binary.
	filePermissions = 0o700
)

var errContentMismatch = errors.New("staged copy differs from its source")

// Stager owns the staging location.
type Stager struct {
	dir string
}

// NewStager creates a Stager for the worker binary at workerExecutable.
func NewStager(workerExecutable string) *Stager {
	return &Stager{dir: filepath.Join(filepath.Dir(workerExecutable), DirName)}
}

// Path returns the deterministic staged updater path.
func (s *Stager) Path() string {
	return filepath.Join(s.dir, UpdaterName)
}

// SidecarPath returns the staged configuration file path.
func (s *Stager) SidecarPath() string {
	return filepath.Join(s.dir, SidecarName)
}

// Stage copies candidatePath to Path and verifies the copy byte for byte.
// Any failure wraps update.ErrStaging; partial artifacts stay behind for
// the next Cleanup.
func (s *Stager) Stage(ctx context.Context, candidatePath string) (string, error) {
	return s.stage(ctx, candidatePath, nil)
}

// stage runs afterCopy, when set, between the copy and its verification.
func (s *Stager) stage(ctx context.Context, candidatePath string, afterCopy func(stagedPath string)) (string, error) {
	staged := s.Path()

	logger.InfoKV(ctx, "Staging updater", "source", candidatePath, "staged", staged)

	if err := os.MkdirAll(s.dir, dirPermissions); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", update.ErrStaging, s.dir, err)
	}

	s.Cleanup(ctx)

	if err := copyFile(candidatePath, staged); err != nil {
		return "", fmt.Errorf("%w: copy: %w", update.ErrStaging, err)
	}

	if afterCopy != nil {
		afterCopy(staged)
	}

	same, err := SameFiles(candidatePath, staged)
	if err != nil {
		return "", fmt.Errorf("%w: compare: %w", update.ErrStaging, err)
	}

	if !same {
		logger.ErrorKV(ctx, "Staged updater does not match its source", "source", candidatePath, "staged", staged)

		return "", fmt.Errorf("%w: %w", update.ErrStaging, errContentMismatch)
	}

	logger.Info(ctx, "Staged updater verified")

	return staged, nil
}

// Cleanup removes the staged updater and its sidecar. Failures are logged.
func (s *Stager) Cleanup(ctx context.Context) {
	for _, path := range []string{s.Path(), s.SidecarPath()} {
		err := os.Remove(path)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			continue
		}

		logger.WarnKV(ctx, "Unable to remove staged file", "path", path, "error", err)
	}
}

func copyFile(source, destination string) error {
	in, err := os.Open(filepath.Clean(source))
	if err != nil {
		return err
	}

	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(filepath.Clean(destination), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return err
	}

	if err = out.Sync(); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}
