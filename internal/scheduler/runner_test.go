package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"capnote/internal/logging"
	"capnote/internal/scheduler"
	"capnote/internal/testsupport"
)

type recordingHandler struct {
	mu       sync.Mutex
	attempts []int
	outcomes []scheduler.Outcome
	done     chan struct{}
}

func newRecordingHandler(outcomes ...scheduler.Outcome) *recordingHandler {
	return &recordingHandler{outcomes: outcomes, done: make(chan struct{}, 16)}
}

func (h *recordingHandler) Handle(_ context.Context, task *scheduler.Task) scheduler.Outcome {
	h.mu.Lock()
	h.attempts = append(h.attempts, task.Attempts)
	index := len(h.attempts) - 1
	h.mu.Unlock()

	select {
	case h.done <- struct{}{}:
	default:
	}

	if index < len(h.outcomes) {
		return h.outcomes[index]
	}
	return scheduler.Succeeded()
}

func (h *recordingHandler) calls() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int, len(h.attempts))
	copy(out, h.attempts)
	return out
}

func waitForCalls(t *testing.T, h *recordingHandler, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if len(h.calls()) >= want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d handler calls, saw %d", want, len(h.calls()))
		}
		select {
		case <-h.done:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func waitForEmptyQueue(t *testing.T, store *scheduler.TaskStore, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		stats, err := store.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.Queued == 0 && stats.Running == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for empty queue, stats %#v", stats)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

type switchableConnectivity struct {
	online atomic.Bool
}

func (c *switchableConnectivity) Online(context.Context) bool {
	return c.online.Load()
}

func TestRunnerExecutesQueuedTask(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	cfg.Workflow.ErrorRetryInterval = 1
	store := testsupport.MustOpenTaskStore(t, cfg)

	handler := newRecordingHandler(scheduler.Succeeded())
	runner := scheduler.NewRunner(cfg, store, handler, nil, logging.NewNop())

	if _, _, err := store.EnqueueRecord(context.Background(), 11); err != nil {
		t.Fatalf("EnqueueRecord failed: %v", err)
	}
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runner.Stop()

	waitForCalls(t, handler, 1, 10*time.Second)
	waitForEmptyQueue(t, store, 10*time.Second)
}

func TestRunnerRetriesUntilSuccess(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	cfg.Workflow.ErrorRetryInterval = 1
	store := testsupport.MustOpenTaskStore(t, cfg)

	retryErr := errors.New("upload timed out")
	handler := newRecordingHandler(
		scheduler.RetryLater(retryErr),
		scheduler.RetryLater(retryErr),
		scheduler.Succeeded(),
	)
	runner := scheduler.NewRunner(cfg, store, handler, nil, logging.NewNop())

	if _, _, err := store.EnqueueRecord(context.Background(), 12); err != nil {
		t.Fatalf("EnqueueRecord failed: %v", err)
	}
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runner.Stop()

	waitForCalls(t, handler, 3, 30*time.Second)
	waitForEmptyQueue(t, store, 10*time.Second)

	calls := handler.calls()
	if calls[0] != 0 || calls[1] != 1 || calls[2] != 2 {
		t.Fatalf("expected attempts 0,1,2, got %v", calls)
	}
}

func TestRunnerRemovesPermanentFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	cfg.Workflow.ErrorRetryInterval = 1
	store := testsupport.MustOpenTaskStore(t, cfg)

	handler := newRecordingHandler(scheduler.Failed(errors.New("recording file missing")))
	runner := scheduler.NewRunner(cfg, store, handler, nil, logging.NewNop())

	if _, _, err := store.EnqueueRecord(context.Background(), 13); err != nil {
		t.Fatalf("EnqueueRecord failed: %v", err)
	}
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runner.Stop()

	waitForCalls(t, handler, 1, 10*time.Second)
	waitForEmptyQueue(t, store, 10*time.Second)

	if calls := handler.calls(); len(calls) != 1 {
		t.Fatalf("expected exactly one attempt, got %v", calls)
	}
}

func TestRunnerDefersWhileOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	cfg.Workflow.ErrorRetryInterval = 1
	store := testsupport.MustOpenTaskStore(t, cfg)

	connectivity := &switchableConnectivity{}
	handler := newRecordingHandler(scheduler.Succeeded())
	runner := scheduler.NewRunner(cfg, store, handler, connectivity, logging.NewNop())

	if _, _, err := store.EnqueueRecord(context.Background(), 14); err != nil {
		t.Fatalf("EnqueueRecord failed: %v", err)
	}
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runner.Stop()

	time.Sleep(2 * time.Second)
	if calls := handler.calls(); len(calls) != 0 {
		t.Fatalf("expected no attempts while offline, got %v", calls)
	}

	connectivity.online.Store(true)
	waitForCalls(t, handler, 1, 10*time.Second)

	// Deferral while offline must not consume attempts.
	if calls := handler.calls(); calls[0] != 0 {
		t.Fatalf("expected first attempt count 0, got %v", calls)
	}
}

func TestRunnerRequeuesOrphanedTasksOnStart(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	cfg.Workflow.ErrorRetryInterval = 1
	store := testsupport.MustOpenTaskStore(t, cfg)

	// Simulate a previous process dying mid-task.
	if _, _, err := store.EnqueueRecord(context.Background(), 15); err != nil {
		t.Fatalf("EnqueueRecord failed: %v", err)
	}
	if claimed, err := store.ClaimNext(context.Background(), time.Now()); err != nil || claimed == nil {
		t.Fatalf("ClaimNext failed: %v (%#v)", err, claimed)
	}

	handler := newRecordingHandler(scheduler.Succeeded())
	runner := scheduler.NewRunner(cfg, store, handler, nil, logging.NewNop())
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runner.Stop()

	waitForCalls(t, handler, 1, 10*time.Second)
	waitForEmptyQueue(t, store, 10*time.Second)
}
