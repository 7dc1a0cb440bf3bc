package version

import (
	"fmt"

	"github.com/oshokin/update-service/internal/domain/service"
)

var (
	// Version is the four-part file version stamped into the binaries. It can
	// be overridden via ldflags and must match the version resource.
	Version = "1.0.0.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}

// FileVersion parses Version the way the service manager compares binaries.
func FileVersion() (service.FileVersion, error) {
	return service.ParseFileVersion(Version)
}
