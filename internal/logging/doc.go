// Package logging provides the slog-based logging toolkit shared by the
// capnote daemon and CLI: console and JSON handlers, standardized field
// names, context-derived attributes, and log retention.
package logging
