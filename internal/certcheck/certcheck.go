package certcheck

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/oshokin/update-service/internal/logger"
	"github.com/oshokin/update-service/internal/repository/registration"
)

// ErrUnsigned is returned by an Inspector when the file carries no valid signature.
var ErrUnsigned = errors.New("file is not validly signed")

// Inspector verifies a file's embedded signature and returns its signer.
type Inspector interface {
	// Signer returns the leaf signing certificate of path once the
	// operating system has accepted the signature and chain.
	Signer(path string) (*x509.Certificate, error)
}

// AllowListSource provides the registered signers for an install directory.
type AllowListSource interface {
	AllowList(ctx context.Context, installDir string) ([]registration.Signer, error)
}

// Checker matches a binary's signer against an allow-list.
type Checker struct {
	inspector Inspector
	source    AllowListSource
}

// NewChecker creates a Checker.
func NewChecker(inspector Inspector, source AllowListSource) *Checker {
	return &Checker{
		inspector: inspector,
		source:    source,
	}
}

// IsAllowed reports whether path is signed by a signer registered for
// installDir. Any error counts as not allowed.
func (c *Checker) IsAllowed(ctx context.Context, installDir, path string) bool {
	err := c.Check(ctx, installDir, path)
	if err != nil {
		logger.WarnKV(ctx, "Certificate allow-list check failed", "path", path, "error", err)

		return false
	}

	return true
}

var (
	errEmptyAllowList = errors.New("no signers are registered")
	errNotAllowed     = errors.New("signer is not on the allow-list")
)

// Check returns nil when path is signed by an allowed signer.
func (c *Checker) Check(ctx context.Context, installDir, path string) error {
	signers, err := c.source.AllowList(ctx, installDir)
	if err != nil {
		return fmt.Errorf("read allow-list: %w", err)
	}

	if len(signers) == 0 {
		return errEmptyAllowList
	}

	cert, err := c.inspector.Signer(path)
	if err != nil {
		return fmt.Errorf("inspect signature: %w", err)
	}

	for _, signer := range signers {
		if Matches(cert, signer) {
			logger.InfoKV(ctx, "Signer is allowed",
				"path", path,
				"subject", cert.Subject.CommonName,
				"issuer", cert.Issuer.CommonName,
			)

			return nil
		}
	}

	return fmt.Errorf("subject %q issuer %q: %w",
		cert.Subject.CommonName, cert.Issuer.CommonName, errNotAllowed)
}

// Matches reports whether cert carries the subject and issuer common names of signer.
func Matches(cert *x509.Certificate, signer registration.Signer) bool {
	if cert == nil || signer.Name == "" || signer.Issuer == "" {
		return false
	}

	return cert.Subject.CommonName == signer.Name &&
		cert.Issuer.CommonName == signer.Issuer
}
