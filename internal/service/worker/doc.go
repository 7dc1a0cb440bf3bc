// Package worker is the SCM entry point of the update service. It turns the
// service start arguments into one update request, hands it to the executor
// and reports the result as the service-specific exit code.
package worker
