// Package scm is the worker's port to the Windows service control manager.
//
// Manager and Service mirror the handful of SCM calls the worker and the
// trigger make. The Windows implementation wraps golang.org/x/sys/windows/svc/mgr;
// Memory is an in-process manager with the same error codes, used wherever
// the real SCM is unavailable.
package scm
