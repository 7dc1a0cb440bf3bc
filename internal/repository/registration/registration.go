package registration

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/oshokin/update-service/internal/logger"
)

const (
	// FallbackKeyName is the marker subkey that replaces the per-install
	// record check.
	FallbackKeyName = "Fallback"

	// SignerNameValue holds the expected signer subject common name.
	SignerNameValue = "name"

	// SignerIssuerValue holds the expected issuer common name.
	SignerIssuerValue = "issuer"

	// hashedPrefixBytes is how much of the BLAKE3 digest names a record.
	hashedPrefixBytes = 8
)

// ErrKeyNotFound is returned by a Hive when a key or value does not exist.
var ErrKeyNotFound = errors.New("registry key not found")

// errEmptyValue is returned when a required string value is empty.
var errEmptyValue = errors.New("registry value is empty")

// Hive is a read-only view of HKEY_LOCAL_MACHINE.
type Hive interface {
	// KeyExists reports whether path can be opened for reading.
	KeyExists(path string) (bool, error)
	// StringValue returns the REG_SZ value name of path; name "" is the
	// default value.
	StringValue(path, name string) (string, error)
	// SubKeyNames lists the direct children of path.
	SubKeyNames(path string) ([]string, error)
}

// Signer is one allow-list entry.
type Signer struct {
	// Name is the expected subject common name of the signing certificate.
	Name string
	// Issuer is the expected issuer common name.
	Issuer string
}

// Store reads registration records from a Hive.
type Store struct {
	hive Hive
	root string
}

// NewStore creates a Store reading records under root.
func NewStore(hive Hive, root string) *Store {
	return &Store{
		hive: hive,
		root: strings.Trim(root, `\`),
	}
}

// HashPath derives the record name of installDir: upper-case hex of the
// leading bytes of BLAKE3 over the lower-cased path without a trailing
// separator.
func HashPath(installDir string) string {
	normalized := strings.ToLower(strings.TrimRight(installDir, `\`))
	sum := blake3.Sum256([]byte(normalized))

	return strings.ToUpper(hex.EncodeToString(sum[:hashedPrefixBytes]))
}

// KeyFor returns the record key of installDir relative to HKLM.
func (s *Store) KeyFor(installDir string) string {
	return s.root + `\` + HashPath(installDir)
}

// FallbackKey returns the fallback marker key relative to HKLM.
func (s *Store) FallbackKey() string {
	return s.root + `\` + FallbackKeyName
}

// RecordExists reports whether the installer registered installDir.
func (s *Store) RecordExists(ctx context.Context, installDir string) (bool, error) {
	key := s.KeyFor(installDir)

	exists, err := s.hive.KeyExists(key)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", key, err)
	}

	logger.DebugKV(ctx, "Checked registration record", "key", key, "exists", exists)

	return exists, nil
}

// FallbackExists reports whether the fallback marker is present.
func (s *Store) FallbackExists(ctx context.Context) (bool, error) {
	key := s.FallbackKey()

	exists, err := s.hive.KeyExists(key)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", key, err)
	}

	logger.DebugKV(ctx, "Checked fallback marker", "key", key, "exists", exists)

	return exists, nil
}

// AllowList returns the signers registered for installDir in subkey order
// 0, 1, 2 and so on. Entries missing either value are skipped with a warning.
func (s *Store) AllowList(ctx context.Context, installDir string) ([]Signer, error) {
	key := s.KeyFor(installDir)

	names, err := s.hive.SubKeyNames(key)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", key, err)
	}

	indexes := make([]int, 0, len(names))

	for _, name := range names {
		index, convErr := strconv.Atoi(name)
		if convErr != nil || index < 0 {
			continue
		}

		indexes = append(indexes, index)
	}

	sort.Ints(indexes)

	signers := make([]Signer, 0, len(indexes))

	for _, index := range indexes {
		entry := key + `\` + strconv.Itoa(index)

		signer, readErr := s.readSigner(entry)
		if readErr != nil {
			logger.WarnKV(ctx, "Skipping allow-list entry", "key", entry, "error", readErr)

			continue
		}

		signers = append(signers, signer)
	}

	return signers, nil
}

func (s *Store) readSigner(key string) (Signer, error) {
	name, err := s.requiredString(key, SignerNameValue)
	if err != nil {
		return Signer{}, err
	}

	issuer, err := s.requiredString(key, SignerIssuerValue)
	if err != nil {
		return Signer{}, err
	}

	return Signer{Name: name, Issuer: issuer}, nil
}

// ReadInstallPath returns the default value of an arbitrary HKLM key, the
// way the trigger resolves an installation directory.
func (s *Store) ReadInstallPath(ctx context.Context, key string) (string, error) {
	key = strings.Trim(key, `\`)

	value, err := s.requiredString(key, "")
	if err != nil {
		return "", err
	}

	logger.DebugKV(ctx, "Resolved install path", "key", key, "path", value)

	return value, nil
}

func (s *Store) requiredString(key, name string) (string, error) {
	value, err := s.hive.StringValue(key, name)
	if err != nil {
		return "", fmt.Errorf("read %s\\%s: %w", key, name, err)
	}

	if value == "" {
		return "", fmt.Errorf("read %s\\%s: %w", key, name, errEmptyValue)
	}

	return value, nil
}
