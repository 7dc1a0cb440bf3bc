package trust

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oshokin/update-service/internal/domain/update"
	"github.com/oshokin/update-service/internal/logger"
)

// Inspector reads what the gate needs from a candidate file without
// executing it.
type Inspector interface {
	// IsLocalFixed reports whether path lives on a local fixed volume.
	IsLocalFixed(path string) (bool, error)
	// OpenNoWrite opens path sharing read only, so nobody can write the
	// file while the returned handle is open.
	OpenNoWrite(path string) (io.Closer, error)
	// ReadIdentity returns the raw identity resource of path, loaded as data.
	ReadIdentity(path string) ([]byte, error)
}

// AllowList answers whether a binary's signer is registered for installDir.
type AllowList interface {
	IsAllowed(ctx context.Context, installDir, path string) bool
}

// Gate authenticates candidate updaters.
type Gate struct {
	inspector Inspector
	allowList AllowList
}

var (
	errNotLocal         = errors.New("updater is not on a local fixed volume")
	errIdentityMismatch = errors.New("updater identity does not match")
	errSignerRejected   = errors.New("updater signer is not allowed")
)

// NewGate creates a Gate.
func NewGate(inspector Inspector, allowList AllowList) *Gate {
	return &Gate{
		inspector: inspector,
		allowList: allowList,
	}
}

// IsValidUpdater reports whether candidatePath is a trusted updater for installDir.
func (g *Gate) IsValidUpdater(ctx context.Context, candidatePath, installDir string) bool {
	candidate := &update.Candidate{SourcePath: candidatePath}

	return g.Evaluate(ctx, candidate, installDir) == nil
}

// Evaluate runs every check in order and records what it learned on
// candidate. The first failure is logged and returned wrapping update.ErrTrust.
func (g *Gate) Evaluate(ctx context.Context, candidate *update.Candidate, installDir string) error {
	err := g.evaluate(ctx, candidate, installDir)
	if err != nil {
		logger.WarnKV(ctx, "Updater rejected", "path", candidate.SourcePath, "reason", err)

		return fmt.Errorf("%w: %w", update.ErrTrust, err)
	}

	logger.InfoKV(ctx, "Updater trusted", "path", candidate.SourcePath)

	return nil
}

func (g *Gate) evaluate(ctx context.Context, candidate *update.Candidate, installDir string) error {
	path := candidate.SourcePath

	local, err := g.inspector.IsLocalFixed(path)
	if err != nil {
		return fmt.Errorf("volume type: %w", err)
	}

	if !local {
		return errNotLocal
	}

	lock, err := g.inspector.OpenNoWrite(path)
	if err != nil {
		return fmt.Errorf("lock updater: %w", err)
	}
	defer lock.Close()

	raw, err := g.inspector.ReadIdentity(path)
	if err != nil {
		return fmt.Errorf("read identity: %w", err)
	}

	candidate.Identity = IdentityString(raw)
	if !candidate.HasValidIdentity() {
		return errIdentityMismatch
	}

	logger.DebugKV(ctx, "Updater identity matches", "path", path)

	candidate.AllowListed = g.allowList.IsAllowed(ctx, installDir, path)
	if !candidate.AllowListed {
		return errSignerRejected
	}

	return nil
}

// IdentityString converts raw resource bytes into a string, stopping at the
// first NUL.
func IdentityString(raw []byte) string {
	if index := bytes.IndexByte(raw, 0); index >= 0 {
		raw = raw[:index]
	}

	return string(raw)
}
