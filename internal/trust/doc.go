// Package trust decides whether a candidate binary is a genuine updater
// before anything is copied or run.
package trust
