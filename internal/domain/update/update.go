package update

import (
	"errors"
	"strings"
)

const (
	// CommandSoftwareUpdate is the only command the worker accepts.
	CommandSoftwareUpdate = "software-update"

	// UpdaterIdentity is the string an updater must embed in its resource
	// table. No other signed product carries this value.
	UpdaterIdentity = "aveo-installer-c206aa25-b890-4b6a-85c9-a915a6e1a561"

	// IdentityResourceID is both the resource type and the resource name of
	// the identity string.
	IdentityResourceID = 2836
)

// Error kinds shared across the pipeline. Packages wrap them with context,
// callers classify with errors.Is.
var (
	// ErrArgument reports a missing or unrecognized argument.
	ErrArgument = errors.New("invalid argument")
	// ErrPath reports a traversal, reparse, length or root violation.
	ErrPath = errors.New("invalid path")
	// ErrConfiguration reports a missing registration record or bad settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrTrust reports an identity mismatch, a signer outside the allow-list
	// or an unsupported filesystem.
	ErrTrust = errors.New("updater is not trusted")
	// ErrStaging reports a copy failure or a staged copy that differs from its source.
	ErrStaging = errors.New("staging failed")
	// ErrExecution reports a spawn failure, a timeout or a nonzero exit code.
	ErrExecution = errors.New("execution failed")
)

// Request is a single command delivered to the worker.
type Request struct {
	// Command is the command token, compared case-insensitively.
	Command string
	// UpdaterPath is the caller-supplied path to the candidate updater.
	UpdaterPath string
	// InstallDir is the installation directory being updated.
	InstallDir string
	// ExtraArgs are forwarded to the updater after the install switches.
	ExtraArgs []string
}

// ParseRequest converts the worker's start arguments (without the service
// name) into a Request. Missing positions stay empty and are rejected later
// by the executor.
func ParseRequest(args []string) *Request {
	req := new(Request)

	if len(args) > 0 {
		req.Command = args[0]
	}

	if len(args) > 1 {
		req.UpdaterPath = args[1]
	}

	if len(args) > 2 {
		req.InstallDir = args[2]
	}

	if len(args) > 3 {
		req.ExtraArgs = append([]string(nil), args[3:]...)
	}

	return req
}

// IsSoftwareUpdate reports whether the request carries the supported command.
func (r *Request) IsSoftwareUpdate() bool {
	return strings.EqualFold(r.Command, CommandSoftwareUpdate)
}

// Outcome is the result of running an updater.
type Outcome struct {
	// Success is true only when the updater exited with code zero.
	Success bool
	// ExitCode is the updater's exit code; 1 after a forced termination.
	ExitCode uint32
}

// Candidate tracks an updater as it moves through the pipeline.
type Candidate struct {
	// SourcePath is where the caller said the updater lives.
	SourcePath string
	// Identity is the identity string read from the updater's resources.
	Identity string
	// AllowListed is the certificate allow-list verdict.
	AllowListed bool
	// StagedPath is the verified private copy that gets executed.
	StagedPath string
}

// HasValidIdentity reports whether the embedded identity matches UpdaterIdentity.
func (c *Candidate) HasValidIdentity() bool {
	return c.Identity == UpdaterIdentity
}
