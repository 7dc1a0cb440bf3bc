package staging

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// chunkSize bounds the memory used per comparison step.
const chunkSize = 32 * 1024

// SameFiles reports whether the files at a and b have identical contents.
// Sizes are compared first; contents are then read in fixed-size chunks.
func SameFiles(a, b string) (bool, error) {
	first, err := os.Open(filepath.Clean(a))
	if err != nil {
		return false, err
	}

	defer func() { _ = first.Close() }()

	second, err := os.Open(filepath.Clean(b))
	if err != nil {
		return false, err
	}

	defer func() { _ = second.Close() }()

	firstInfo, err := first.Stat()
	if err != nil {
		return false, err
	}

	secondInfo, err := second.Stat()
	if err != nil {
		return false, err
	}

	if firstInfo.Size() != secondInfo.Size() {
		return false, nil
	}

	return sameContents(first, second)
}

func sameContents(a, b io.Reader) (bool, error) {
	bufA := make([]byte, chunkSize)
	bufB := make([]byte, chunkSize)

	for {
		nA, errA := io.ReadFull(a, bufA)
		if errA != nil && !isShortRead(errA) {
			return false, errA
		}

		nB, errB := io.ReadFull(b, bufB)
		if errB != nil && !isShortRead(errB) {
			return false, errB
		}

		if nA != nB || !bytes.Equal(bufA[:nA], bufB[:nB]) {
			return false, nil
		}

		if errA != nil || errB != nil {
			return errA != nil && errB != nil, nil
		}
	}
}

func isShortRead(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
