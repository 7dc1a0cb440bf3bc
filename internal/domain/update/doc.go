// Package update holds the request, outcome and candidate types of the
// update pipeline together with the error kinds every stage wraps.
package update
