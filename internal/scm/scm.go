package scm

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/oshokin/update-service/internal/domain/service"
)

// Win32 status codes the lifecycle reacts to.
const (
	CodeAccessDenied           uint32 = 5
	CodeAlreadyRunning         uint32 = 1056
	CodeServiceDoesNotExist    uint32 = 1060
	CodeCannotAcceptControl    uint32 = 1061
	CodeServiceNotActive       uint32 = 1062
	CodeServiceMarkedForDelete uint32 = 1072
	CodeServiceExists          uint32 = 1073
)

// ErrServiceManager matches every *Error with errors.Is.
var ErrServiceManager = errors.New("service manager error")

// Error is a failed SCM call tagged with its Win32 status code.
type Error struct {
	// Op is the failed call, e.g. "OpenService".
	Op string
	// Code is the Win32 status code, zero when unknown.
	Code uint32
	// Err is the underlying error, if any.
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed (%d): %v", e.Op, e.Code, e.Err)
	}

	return fmt.Sprintf("%s failed (%d)", e.Op, e.Code)
}

// Is reports whether target is ErrServiceManager.
func (e *Error) Is(target error) bool {
	return target == ErrServiceManager
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err with op and the status code it carries.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Op: op, Code: CodeOf(err), Err: err}
}

// CodeOf extracts the Win32 status code from err, or zero.
func CodeOf(err error) uint32 {
	var scmErr *Error
	if errors.As(err, &scmErr) && scmErr.Code != 0 {
		return scmErr.Code
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}

	return 0
}

// IsNotExist reports whether err means the service is not installed.
func IsNotExist(err error) bool { return CodeOf(err) == CodeServiceDoesNotExist }

// IsNotActive reports whether err means the service was not running.
func IsNotActive(err error) bool { return CodeOf(err) == CodeServiceNotActive }

// IsMarkedForDelete reports whether err means deletion is already pending.
func IsMarkedForDelete(err error) bool { return CodeOf(err) == CodeServiceMarkedForDelete }

// IsAlreadyRunning reports whether err means the service is already started.
func IsAlreadyRunning(err error) bool { return CodeOf(err) == CodeAlreadyRunning }

// Scope selects the rights requested from the SCM.
type Scope int

// Scopes.
const (
	// ScopeFull opens the SCM and services with all access; only
	// administrators and the service itself use it.
	ScopeFull Scope = iota
	// ScopeTrigger opens the SCM with connect and enumerate rights and the
	// service with start, stop and read only, matching the hardened descriptor.
	ScopeTrigger
)

// Status is the part of SERVICE_STATUS_PROCESS the worker uses.
type Status struct {
	State     service.State
	WaitHint  time.Duration
	ProcessID uint32
}

// Config is the SCM record of a service. Start type is always on demand.
type Config struct {
	// BinaryPath is the unquoted executable path.
	BinaryPath  string
	DisplayName string
	Description string
}

// Connector opens the service control manager.
type Connector interface {
	Connect(scope Scope) (Manager, error)
}

// Manager is an open SCM handle.
type Manager interface {
	OpenService(name string) (Service, error)
	CreateService(name string, cfg Config) (Service, error)
	Close() error
}

// Service is an open service handle.
type Service interface {
	Query() (Status, error)
	Config() (Config, error)
	Start(args ...string) error
	// Stop sends the stop control and returns the status it reported.
	Stop() (Status, error)
	Delete() error
	// ResetAccess applies the hardened access descriptor.
	ResetAccess() error
	Close() error
}

// BinaryPathOf extracts the executable from a service command line, which
// may be quoted and may carry arguments.
func BinaryPathOf(commandLine string) string {
	commandLine = strings.TrimSpace(commandLine)

	if rest, found := strings.CutPrefix(commandLine, `"`); found {
		path, _, _ := strings.Cut(rest, `"`)

		return path
	}

	lower := strings.ToLower(commandLine)
	if index := strings.Index(lower, ".exe"); index >= 0 {
		return commandLine[:index+len(".exe")]
	}

	return commandLine
}
