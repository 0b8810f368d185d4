// Package logs provides file tailing with stable offsets for the CLI.
//
// It reads log files with bounded memory usage, supports negative offsets
// for "last N lines" requests, and polls for new lines in follow mode.
// Callers supply context deadlines so follow polling shuts down cleanly
// when the CLI exits.
package logs
