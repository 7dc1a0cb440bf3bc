// Package logger provides a small wrapper around zap to offer:
//   - a sugared logger with a sane console encoder,
//   - a file-backed logger whose handle is owned by the caller,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and convenience functions (Infof, ErrorKV, etc.).
//
// Components never reach for a global: the logger travels in the context
// each operation receives, and FromContext falls back to a no-op logger.
package logger
