//go:build !windows

package certcheck

import (
	"crypto/x509"
	"errors"
)

var errUnsupported = errors.New("authenticode verification requires windows")

// unsupportedInspector rejects every file.
type unsupportedInspector struct{}

// NewInspector returns an Inspector that never accepts a signature on this platform.
func NewInspector() Inspector {
	return unsupportedInspector{}
}

// Signer implements Inspector.
func (unsupportedInspector) Signer(string) (*x509.Certificate, error) {
	return nil, errors.Join(ErrUnsigned, errUnsupported)
}
