// Package logging provides a simple leveled logging interface for the
// media catalog tools.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the process
//
// The log level is configured via the LOG_LEVEL environment variable
// (or DEBUG=true as a shortcut) and can be overridden programmatically
// with SetLevel, which tests use to quiet noisy packages.
package logging
