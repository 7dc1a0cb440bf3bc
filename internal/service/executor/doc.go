// Package executor runs one software-update command inside the worker:
// it validates the install directory, checks registration, vets and stages
// the updater, runs the staged copy and, on success, lets the worker
// upgrade itself from the freshly installed product.
package executor
