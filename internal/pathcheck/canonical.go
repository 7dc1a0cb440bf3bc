package pathcheck

import (
	"errors"
	"strings"
)

// RootKind classifies where a validated path is rooted.
type RootKind int

// Root kinds.
const (
	RootLocal RootKind = iota + 1
	RootUNC
)

// String implements fmt.Stringer.
func (r RootKind) String() string {
	switch r {
	case RootLocal:
		return "local"
	case RootUNC:
		return "unc"
	default:
		return "unknown"
	}
}

var (
	errDeviceNamespace = errors.New("device namespace paths are not accepted")
	errNotAbsolute     = errors.New("path is not absolute")
	errBadUNCRoot      = errors.New("network path must name a server and a share")
)

// canonicalPath is a parsed absolute Windows path.
type canonicalPath struct {
	root       string
	kind       RootKind
	components []string
	trailing   bool
}

// String renders the path the way GetFullPathNameW would.
func (c canonicalPath) String() string {
	if len(c.components) == 0 {
		return c.root
	}

	var b strings.Builder

	b.WriteString(c.root)

	for i, component := range c.components {
		if i > 0 || c.kind == RootUNC {
			b.WriteByte('\\')
		}

		b.WriteString(component)
	}

	if c.trailing {
		b.WriteByte('\\')
	}

	return b.String()
}

// prefixes returns every ancestor from the first component below the root
// down to the leaf.
func (c canonicalPath) prefixes() []string {
	out := make([]string, 0, len(c.components))
	prefix := canonicalPath{root: c.root, kind: c.kind}

	for _, component := range c.components {
		prefix.components = append(prefix.components, component)
		out = append(out, prefix.String())
	}

	return out
}

// canonicalize computes the absolute form of path using Windows rules. It
// needs no filesystem access and rejects anything that is not already
// absolute, since a relative path has no canonical form that could equal it.
func canonicalize(path string) (canonicalPath, error) {
	p := strings.ReplaceAll(path, "/", `\`)

	switch {
	case strings.HasPrefix(p, `\\?\`), strings.HasPrefix(p, `\\.\`):
		return canonicalPath{}, errDeviceNamespace
	case strings.HasPrefix(p, `\\`):
		return canonicalizeUNC(p[2:])
	case len(p) >= 3 && isDriveLetter(p[0]) && p[1] == ':' && p[2] == '\\':
		return canonicalizeRest(canonicalPath{
			root: p[:2] + `\`,
			kind: RootLocal,
		}, p[3:]), nil
	default:
		return canonicalPath{}, errNotAbsolute
	}
}

func canonicalizeUNC(p string) (canonicalPath, error) {
	server, rest, _ := strings.Cut(p, `\`)
	share, rest, _ := strings.Cut(rest, `\`)

	if server == "" || share == "" {
		return canonicalPath{}, errBadUNCRoot
	}

	return canonicalizeRest(canonicalPath{
		root: `\\` + server + `\` + share,
		kind: RootUNC,
	}, rest), nil
}

// canonicalizeRest resolves "." and ".." below the root, collapses repeated
// separators and drops trailing dots and spaces from each component.
func canonicalizeRest(c canonicalPath, rest string) canonicalPath {
	for _, component := range strings.Split(rest, `\`) {
		switch component {
		case "", ".":
			continue
		case "..":
			if len(c.components) > 0 {
				c.components = c.components[:len(c.components)-1]
			}

			continue
		}

		component = strings.TrimRight(component, ". ")
		if component == "" {
			continue
		}

		c.components = append(c.components, component)
	}

	c.trailing = strings.HasSuffix(rest, `\`) && len(c.components) > 0

	return c
}

func isDriveLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
