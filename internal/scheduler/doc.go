// Package scheduler runs durable sync tasks against a SQLite-backed queue.
//
// Tasks are deduplicated by key: each record gets at most one sync task, and
// catch-up sweeps collapse into a single pending entry. A Runner worker pool
// claims due tasks, executes them through a Handler, and applies the reported
// Outcome: completed and permanently failed tasks are deleted, retryable
// failures are requeued with exponential backoff.
//
// The queue survives restarts. Claimed tasks heartbeat while running; tasks
// orphaned by a crash are requeued at startup and whenever a heartbeat goes
// stale. While the network is unreachable, workers defer execution without
// consuming retry attempts.
package scheduler
