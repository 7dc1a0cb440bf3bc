package pathcheck

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

// Reparse tags the validator recognizes.
const (
	TagMountPoint uint32 = 0xA0000003
	TagSymlink    uint32 = 0xA000000C
)

// DevicePrefix is the NT object-manager prefix every accepted link target
// must start with.
const DevicePrefix = `\??\`

const (
	// reparseHeaderSize covers ReparseTag, ReparseDataLength and Reserved.
	reparseHeaderSize = 8
	// mountPointHeaderSize covers the four name offset/length fields.
	mountPointHeaderSize = 8
	// symlinkHeaderSize adds the Flags field to the mount point header.
	symlinkHeaderSize = 12
)

// LinkKind is the decoded variant of a reparse buffer.
type LinkKind int

// Decoded variants.
const (
	KindOther LinkKind = iota
	KindSymlink
	KindMountPoint
)

// String implements fmt.Stringer.
func (k LinkKind) String() string {
	switch k {
	case KindSymlink:
		return "symlink"
	case KindMountPoint:
		return "mount-point"
	default:
		return "other"
	}
}

// Link is a decoded reparse point.
type Link struct {
	Kind LinkKind
	Tag  uint32
	// Target is the substitute name; empty for KindOther.
	Target string
	// Relative is set for symlinks flagged SYMLINK_FLAG_RELATIVE.
	Relative bool
}

var (
	errShortBuffer  = errors.New("reparse buffer is truncated")
	errNameBounds   = errors.New("reparse name is out of bounds")
	errOddNameField = errors.New("reparse name offset or length is odd")
)

// DecodeReparse parses a REPARSE_DATA_BUFFER. Every offset and length is
// checked against the buffer before it is read; unknown tags decode to
// KindOther without touching their payload.
func DecodeReparse(buf []byte) (Link, error) {
	if len(buf) < reparseHeaderSize {
		return Link{}, errShortBuffer
	}

	tag := binary.LittleEndian.Uint32(buf[0:4])
	dataLen := int(binary.LittleEndian.Uint16(buf[4:6]))

	if reparseHeaderSize+dataLen > len(buf) {
		return Link{}, fmt.Errorf("data length %d: %w", dataLen, errShortBuffer)
	}

	data := buf[reparseHeaderSize : reparseHeaderSize+dataLen]

	var (
		link   = Link{Tag: tag}
		header int
	)

	switch tag {
	case TagSymlink:
		link.Kind, header = KindSymlink, symlinkHeaderSize
	case TagMountPoint:
		link.Kind, header = KindMountPoint, mountPointHeaderSize
	default:
		return link, nil
	}

	if len(data) < header {
		return Link{}, fmt.Errorf("%s header: %w", link.Kind, errShortBuffer)
	}

	subOffset := int(binary.LittleEndian.Uint16(data[0:2]))
	subLength := int(binary.LittleEndian.Uint16(data[2:4]))

	if link.Kind == KindSymlink {
		link.Relative = binary.LittleEndian.Uint32(data[8:12])&1 != 0
	}

	target, err := decodeName(data[header:], subOffset, subLength)
	if err != nil {
		return Link{}, fmt.Errorf("substitute name: %w", err)
	}

	link.Target = target

	return link, nil
}

// decodeName reads a UTF-16LE name at byte offset off with byte length n.
func decodeName(pathBuffer []byte, off, n int) (string, error) {
	if off%2 != 0 || n%2 != 0 {
		return "", errOddNameField
	}

	if off+n > len(pathBuffer) {
		return "", errNameBounds
	}

	units := make([]uint16, n/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(pathBuffer[off+2*i:])
	}

	return string(utf16.Decode(units)), nil
}

// encodeReparse builds a REPARSE_DATA_BUFFER whose substitute and print
// names are both target.
func encodeReparse(kind LinkKind, target string) []byte {
	name := utf16.Encode([]rune(target))
	nameBytes := 2 * len(name)

	tag, header := TagMountPoint, mountPointHeaderSize
	if kind == KindSymlink {
		tag, header = TagSymlink, symlinkHeaderSize
	}

	// Substitute name, NUL, print name, NUL.
	pathBuffer := make([]byte, 2*nameBytes+4)
	for i, u := range name {
		binary.LittleEndian.PutUint16(pathBuffer[2*i:], u)
		binary.LittleEndian.PutUint16(pathBuffer[nameBytes+2+2*i:], u)
	}

	data := make([]byte, header, header+len(pathBuffer))
	binary.LittleEndian.PutUint16(data[0:2], 0)
	binary.LittleEndian.PutUint16(data[2:4], uint16(nameBytes))
	binary.LittleEndian.PutUint16(data[4:6], uint16(nameBytes+2))
	binary.LittleEndian.PutUint16(data[6:8], uint16(nameBytes))
	data = append(data, pathBuffer...)

	buf := make([]byte, reparseHeaderSize, reparseHeaderSize+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], tag)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(data)))

	return append(buf, data...)
}
