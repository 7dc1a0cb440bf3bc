// Package trigger is the unprivileged side of the update service. It
// resolves the installation directory from the registry, checks both paths
// and asks the SCM to start the worker with a software-update command.
//
// Exit codes: -1 not enough arguments, -2 invalid updater path, -3 registry
// key or value unreadable, -4 invalid install path, -5 worker already
// running. Any other failure returns the operating system status code.
package trigger
