// Package pathcheck proves that a path is safe to use for a privileged
// filesystem operation.
//
// A path passes when it equals its own canonical absolute form (which rules
// out traversal sequences and alternate separators), is rooted at a drive
// or at exactly \\server\share, and no component between the root and the
// leaf is a reparse point redirecting outside the NT device namespace.
package pathcheck
