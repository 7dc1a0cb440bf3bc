// Package cmdline builds Windows command lines that the Microsoft C runtime
// parses back into the original argument vector.
package cmdline

import "strings"

// delimiters are the characters that force an argument to be quoted.
const delimiters = " \t"

// Quote returns arg in a form CommandLineToArgvW and the CRT split back
// into exactly arg. Quotes are added only when arg is empty or contains a
// space or a tab. Embedded double quotes are escaped together with the
// backslashes that precede them, and trailing backslashes are doubled when
// a closing quote follows.
func Quote(arg string) string {
	addQuotes := arg == "" || strings.ContainsAny(arg, delimiters)
	if !addQuotes && !strings.Contains(arg, `"`) {
		return arg
	}

	var b strings.Builder

	b.Grow(len(arg) + 2)

	if addQuotes {
		b.WriteByte('"')
	}

	backslashes := 0

	for i := 0; i < len(arg); i++ {
		c := arg[i]

		switch c {
		case '\\':
			backslashes++
		case '"':
			b.WriteString(strings.Repeat(`\`, backslashes+1))

			backslashes = 0
		default:
			backslashes = 0
		}

		b.WriteByte(c)
	}

	if addQuotes {
		b.WriteString(strings.Repeat(`\`, backslashes))
		b.WriteByte('"')
	}

	return b.String()
}

// Join quotes every argument and joins them with single spaces.
func Join(args ...string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = Quote(arg)
	}

	return strings.Join(quoted, " ")
}

// Split parses a command line the way CommandLineToArgvW does: arguments
// are separated by unquoted spaces or tabs, 2n backslashes before a quote
// become n backslashes and toggle quoting, 2n+1 backslashes before a quote
// become n backslashes and a literal quote, and "" inside a quoted span is
// a literal quote.
func Split(commandLine string) []string {
	var (
		args     []string
		current  strings.Builder
		inArg    bool
		inQuotes bool
	)

	for i := 0; i < len(commandLine); i++ {
		c := commandLine[i]

		switch {
		case c == '\\':
			backslashes := 1
			for i+backslashes < len(commandLine) && commandLine[i+backslashes] == '\\' {
				backslashes++
			}

			inArg = true

			if i+backslashes < len(commandLine) && commandLine[i+backslashes] == '"' {
				current.WriteString(strings.Repeat(`\`, backslashes/2))

				if backslashes%2 == 1 {
					current.WriteByte('"')
					i += backslashes

					continue
				}

				// The quote is handled by the next iteration.
				i += backslashes - 1

				continue
			}

			current.WriteString(strings.Repeat(`\`, backslashes))
			i += backslashes - 1
		case c == '"':
			inArg = true

			if inQuotes && i+1 < len(commandLine) && commandLine[i+1] == '"' {
				current.WriteByte('"')
				i++

				continue
			}

			inQuotes = !inQuotes
		case !inQuotes && strings.IndexByte(delimiters, c) >= 0:
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			inArg = true

			current.WriteByte(c)
		}
	}

	if inArg {
		args = append(args, current.String())
	}

	return args
}
