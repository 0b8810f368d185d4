// Package records persists captured audio clips and their sync status in
// SQLite. The store is the single source of truth for what has and has not
// been uploaded or transcribed; mutations are atomic single-row updates, and
// every mutation publishes a fresh snapshot to subscribed observers.
package records
