package scheduler

import (
	"context"
	"strconv"
	"time"
)

// TaskKind identifies what a queued task does when executed.
type TaskKind string

const (
	// TaskKindRecordSync uploads and transcribes a single record.
	TaskKindRecordSync TaskKind = "record_sync"
	// TaskKindSweep re-enqueues every record still pending upload.
	TaskKindSweep TaskKind = "sweep"
)

// TaskStatus tracks where a task sits in its lifecycle. Finished tasks are
// deleted rather than archived, so only two statuses exist.
type TaskStatus string

const (
	StatusQueued  TaskStatus = "queued"
	StatusRunning TaskStatus = "running"
)

// Task is a durable unit of sync work. Tasks survive restarts; a task claimed
// by a worker that dies is reclaimed once its heartbeat goes stale.
type Task struct {
	ID            int64
	Key           string
	Kind          TaskKind
	RecordID      int64
	Status        TaskStatus
	Attempts      int
	NextRunAt     time.Time
	CorrelationID string
	LastError     string
	HeartbeatAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RecordTaskKey builds the dedup key for a record sync task.
func RecordTaskKey(recordID int64) string {
	return "record:" + strconv.FormatInt(recordID, 10)
}

// SweepTaskKey is the dedup key shared by all sweep requests.
const SweepTaskKey = "sweep"

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeFailure
	outcomeRetry
)

// Outcome is the result a handler reports for one task attempt.
type Outcome struct {
	kind outcomeKind
	err  error
}

// Succeeded marks the attempt as finished; the task is removed.
func Succeeded() Outcome {
	return Outcome{kind: outcomeSuccess}
}

// Failed marks the attempt as permanently failed; the task is removed and the
// error stays on the record for operator review.
func Failed(err error) Outcome {
	return Outcome{kind: outcomeFailure, err: err}
}

// RetryLater requeues the task with exponential backoff.
func RetryLater(err error) Outcome {
	return Outcome{kind: outcomeRetry, err: err}
}

func (o Outcome) Success() bool   { return o.kind == outcomeSuccess }
func (o Outcome) Permanent() bool { return o.kind == outcomeFailure }
func (o Outcome) Retryable() bool { return o.kind == outcomeRetry }

// Err returns the error attached to a failure or retry outcome.
func (o Outcome) Err() error { return o.err }

// Handler executes one task attempt and reports how it went.
type Handler interface {
	Handle(ctx context.Context, task *Task) Outcome
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task *Task) Outcome

func (f HandlerFunc) Handle(ctx context.Context, task *Task) Outcome {
	return f(ctx, task)
}

// Connectivity answers whether the network is reachable. Workers defer task
// execution while offline instead of burning retry attempts.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// AlwaysOnline is a Connectivity that never defers. Used when no probe URL is
// configured and in tests.
type AlwaysOnline struct{}

func (AlwaysOnline) Online(context.Context) bool { return true }
