// Package scoped provides a single generic owner for resources that need an
// explicit release call. Windows code wraps service handles, process
// handles, loaded modules and files in a Resource and defers Close, so the
// release runs on every exit path including early error returns.
package scoped
