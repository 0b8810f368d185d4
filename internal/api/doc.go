// Package api defines the transport-friendly record views shared by the
// daemon HTTP endpoints and the CLI, plus the QueueService that mediates
// between record storage and the durable task queue.
package api
