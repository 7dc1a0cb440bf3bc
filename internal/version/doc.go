// Package version exposes build metadata for both binaries.
//
// Version, Commit and BuildTime are injected at build time via ldflags.
// Version doubles as the file version the service manager compares during
// an upgrade, so it always has four numeric parts.
package version
