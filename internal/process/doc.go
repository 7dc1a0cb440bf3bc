// Package process starts child processes under bounded supervision and
// waits for named images to leave the process table.
package process
