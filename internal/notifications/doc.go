// Package notifications delivers sync events via ntfy push messages.
//
// The default implementation publishes to the topic configured in config.toml
// and gracefully degrades to a no-op when no topic is set. Per-category
// toggles let users silence captures, uploads, or transcripts while keeping
// error alerts.
package notifications
