package lifecycle

import (
	"bytes"
	"crypto"
	"crypto/sha512"
	"fmt"
	"io"
	"os"

	goupdate "github.com/doitdistributed/go-update"
)

// binaryFileMode is applied to a replaced worker binary.
const binaryFileMode = 0o755

// copyFile overwrites dst in place with src.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, binaryFileMode)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}

// applyAside renames dst to aside and writes src in its place, checking the
// written bytes against src's SHA-512.
func applyAside(src, dst, aside string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	checksum := sha512.Sum512(data)

	options := goupdate.Options{
		TargetPath:  dst,
		TargetMode:  binaryFileMode,
		Checksum:    checksum[:],
		Hash:        crypto.SHA512,
		OldSavePath: aside,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("apply %s: %w", dst, err)
	}

	return nil
}
