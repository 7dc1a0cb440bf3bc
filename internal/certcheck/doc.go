// Package certcheck decides whether a binary is signed by a certificate on
// the install directory's allow-list.
//
// Signature and chain validation is left to the operating system; this
// package only compares the leaf signer's subject and issuer common names
// against the registered entries.
package certcheck
