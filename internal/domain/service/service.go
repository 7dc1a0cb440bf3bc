package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Name is the SCM name of the worker.
	Name = "AveoSystemsUpdate"
	// DisplayName is shown in the services console.
	DisplayName = "Aveo Systems Update Service"
	// Description is stored in the SCM record.
	Description = "This service supports automatic updates for Mira Connect."
	// ImageName is the file name of the installed worker binary.
	ImageName = "updateservice.exe"
	// UpgradeImageName is the sibling the self-upgrade copies the new worker to.
	UpgradeImageName = "updateservice_tmp.exe"
)

// State is the run state of the worker as reported by the SCM.
type State int

// Run states of the worker.
const (
	StateNotInstalled State = iota
	StateStopped
	StateStartPending
	StateRunning
	StateStopPending
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateNotInstalled:
		return "not-installed"
	case StateStopped:
		return "stopped"
	case StateStartPending:
		return "start-pending"
	case StateRunning:
		return "running"
	case StateStopPending:
		return "stop-pending"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// InstallAction selects how Install treats an existing record.
type InstallAction int

// Install actions.
const (
	// ActionInstall creates the record or upgrades it when the caller is newer.
	ActionInstall InstallAction = iota
	// ActionUpgrade only upgrades an existing record.
	ActionUpgrade
	// ActionForceInstall replaces the installed binary regardless of version.
	ActionForceInstall
)

// String implements fmt.Stringer.
func (a InstallAction) String() string {
	switch a {
	case ActionInstall:
		return "install"
	case ActionUpgrade:
		return "upgrade"
	case ActionForceInstall:
		return "forceinstall"
	default:
		return "action(" + strconv.Itoa(int(a)) + ")"
	}
}

// errBadVersion is returned when a version string cannot be parsed.
var errBadVersion = errors.New("version must have four numeric parts")

// FileVersion is a four-part PE file version: major.minor.build.revision.
type FileVersion [4]uint16

// ParseFileVersion parses "A.B.C.D".
func ParseFileVersion(s string) (FileVersion, error) {
	var v FileVersion

	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != len(v) {
		return v, fmt.Errorf("%q: %w", s, errBadVersion)
	}

	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return v, fmt.Errorf("%q: %w", s, errBadVersion)
		}

		v[i] = uint16(n)
	}

	return v, nil
}

// FileVersionFromMSLS builds a version from the two DWORDs of VS_FIXEDFILEINFO.
func FileVersionFromMSLS(ms, ls uint32) FileVersion {
	return FileVersion{
		uint16(ms >> 16),
		uint16(ms & 0xffff),
		uint16(ls >> 16),
		uint16(ls & 0xffff),
	}
}

// Compare returns -1, 0 or +1 comparing parts left to right.
func (v FileVersion) Compare(other FileVersion) int {
	for i := range v {
		switch {
		case v[i] < other[i]:
			return -1
		case v[i] > other[i]:
			return 1
		}
	}

	return 0
}

// Less reports whether v is strictly older than other.
func (v FileVersion) Less(other FileVersion) bool {
	return v.Compare(other) < 0
}

// String implements fmt.Stringer.
func (v FileVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}

// Right is a service access right granted by the hardened descriptor.
type Right string

// Rights granted to allowed principals.
const (
	RightStart      Right = "start"
	RightStop       Right = "stop"
	RightReadStatus Right = "read-status"
)

// Principal is a well-known account the descriptor refers to.
type Principal string

// Principals the hardened descriptor names.
const (
	PrincipalBuiltinUsers Principal = "BUILTIN\\Users"
	PrincipalInteractive  Principal = "NT AUTHORITY\\INTERACTIVE"
	PrincipalLocalService Principal = "NT AUTHORITY\\LOCAL SERVICE"
)

// AccessDescriptor maps principals to the rights they hold on the worker.
type AccessDescriptor map[Principal][]Right

// HardenedAccess returns the only descriptor the worker may carry: no grant
// to BUILTIN\Users, start/stop/read-status for INTERACTIVE and LOCAL SERVICE.
func HardenedAccess() AccessDescriptor {
	rights := []Right{RightStart, RightStop, RightReadStatus}

	return AccessDescriptor{
		PrincipalInteractive:  append([]Right(nil), rights...),
		PrincipalLocalService: append([]Right(nil), rights...),
	}
}

// IsHardened reports whether d grants exactly the hardened rights.
func (d AccessDescriptor) IsHardened() bool {
	want := HardenedAccess()
	if len(d) != len(want) {
		return false
	}

	if _, found := d[PrincipalBuiltinUsers]; found {
		return false
	}

	for principal, rights := range want {
		got, found := d[principal]
		if !found || len(got) != len(rights) {
			return false
		}

		for i := range rights {
			if got[i] != rights[i] {
				return false
			}
		}
	}

	return true
}

// Record is the SCM record of the worker.
type Record struct {
	// BinaryPath is the absolute, unquoted path of the installed binary.
	BinaryPath string
	// Version is the installed binary's file version.
	Version FileVersion
	// State is the current run state.
	State State
	// Access is the access descriptor applied to the record.
	Access AccessDescriptor
}
