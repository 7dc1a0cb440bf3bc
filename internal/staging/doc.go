// Package staging copies a trusted updater into a directory only the
// service account can write to and re-proves the copy matches its source
// before it runs.
//
// The staging directory sits beside the worker binary and inherits its
// ownership, so once a copy is verified a low-privilege user can no longer
// swap it.
package staging
