// Package config defines the worker settings and provides helpers to load,
// validate and save them in YAML format.
//
// The file is optional and lives beside the worker binary, inside the
// service's admin-only directory; missing fields take their defaults.
package config
