//go:build !windows

package scm

import "errors"

var errUnsupported = errors.New("the service control manager requires windows")

type unsupportedConnector struct{}

// NewConnector returns a Connector that always fails on this platform.
func NewConnector() Connector {
	return unsupportedConnector{}
}

// Connect implements Connector.
func (unsupportedConnector) Connect(Scope) (Manager, error) {
	return nil, &Error{Op: "OpenSCManager", Err: errUnsupported}
}
