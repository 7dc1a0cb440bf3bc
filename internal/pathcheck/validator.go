package pathcheck

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/oshokin/update-service/internal/domain/update"
	"github.com/oshokin/update-service/internal/logger"
)

// MaxPath is the Win32 path length ceiling including the terminator.
const MaxPath = 260

// FS is the filesystem surface the validator needs.
type FS interface {
	// IsReparsePoint reports whether path carries the reparse attribute.
	// A missing path returns an error wrapping fs.ErrNotExist.
	IsReparsePoint(path string) (bool, error)
	// ReadReparseData returns the raw REPARSE_DATA_BUFFER of path without
	// following the link.
	ReadReparseData(path string) ([]byte, error)
	// FullPath returns the operating system's absolute form of path.
	FullPath(path string) (string, error)
}

// ValidatedPath is a path proven free of traversal sequences and of
// unauthorized reparse redirection.
type ValidatedPath struct {
	// Path is the canonical form, equal to the input ignoring case.
	Path string
	// Root is the volume or share root.
	Root string
	// Kind classifies Root.
	Kind RootKind
}

// Validator checks paths before privileged filesystem operations.
type Validator struct {
	fs FS
}

var (
	errTooLong        = errors.New("path exceeds MAX_PATH")
	errNotCanonical   = errors.New("path differs from its canonical form")
	errFullPath       = errors.New("operating system canonical form differs")
	errLinkRead       = errors.New("reparse point could not be read")
	errLinkKind       = errors.New("reparse point is neither a symlink nor a mount point")
	errLinkTarget     = errors.New("reparse target is outside the device namespace")
	errComponentCheck = errors.New("path component could not be inspected")
)

// NewValidator creates a Validator over fsys.
func NewValidator(fsys FS) *Validator {
	return &Validator{fs: fsys}
}

// NewOSValidator creates a Validator over the host filesystem.
func NewOSValidator() *Validator {
	return NewValidator(osFS{})
}

// Validate returns the validated form of path or an error wrapping
// update.ErrPath.
func (v *Validator) Validate(ctx context.Context, path string) (ValidatedPath, error) {
	result, err := v.validate(path)
	if err != nil {
		logger.WarnKV(ctx, "Path rejected", "path", path, "reason", err)

		return ValidatedPath{}, fmt.Errorf("%w: %q: %w", update.ErrPath, path, err)
	}

	logger.DebugKV(ctx, "Path validated", "path", result.Path, "root", result.Kind.String())

	return result, nil
}

func (v *Validator) validate(path string) (ValidatedPath, error) {
	if len(path) > MaxPath-1 {
		return ValidatedPath{}, errTooLong
	}

	canonical, err := canonicalize(path)
	if err != nil {
		return ValidatedPath{}, err
	}

	full := canonical.String()
	if !strings.EqualFold(full, path) {
		return ValidatedPath{}, errNotCanonical
	}

	osFull, err := v.fs.FullPath(path)
	if err != nil {
		return ValidatedPath{}, fmt.Errorf("full path: %w", err)
	}

	if !strings.EqualFold(osFull, full) {
		return ValidatedPath{}, errFullPath
	}

	for _, ancestor := range canonical.prefixes() {
		if err = v.checkComponent(ancestor); err != nil {
			return ValidatedPath{}, fmt.Errorf("%q: %w", ancestor, err)
		}
	}

	return ValidatedPath{
		Path: full,
		Root: canonical.root,
		Kind: canonical.kind,
	}, nil
}

// checkComponent accepts a component that does not exist, is not a reparse
// point, or is a symlink or mount point into the device namespace.
func (v *Validator) checkComponent(path string) error {
	isLink, err := v.fs.IsReparsePoint(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("%w: %w", errComponentCheck, err)
	}

	if !isLink {
		return nil
	}

	raw, err := v.fs.ReadReparseData(path)
	if err != nil {
		return fmt.Errorf("%w: %w", errLinkRead, err)
	}

	link, err := DecodeReparse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", errLinkRead, err)
	}

	if link.Kind == KindOther {
		return fmt.Errorf("tag %#x: %w", link.Tag, errLinkKind)
	}

	if !strings.HasPrefix(link.Target, DevicePrefix) {
		return fmt.Errorf("%s %q: %w", link.Kind, link.Target, errLinkTarget)
	}

	return nil
}
