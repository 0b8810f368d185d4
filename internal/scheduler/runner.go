package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"capnote/internal/config"
	"capnote/internal/logging"
	"capnote/internal/services"
)

// Runner drives durable task execution: a pool of workers claims due tasks,
// runs them through the registered handler, and applies the reported outcome.
type Runner struct {
	cfg          *config.Config
	store        *TaskStore
	handler      Handler
	connectivity Connectivity
	logger       *slog.Logger

	pollInterval time.Duration
	errorRetry   time.Duration
	offlineRetry time.Duration
	backoffBase  time.Duration
	backoffCap   time.Duration
	heartbeat    *HeartbeatMonitor

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner constructs a task runner. The handler executes each claimed task;
// connectivity gates execution while offline.
func NewRunner(cfg *config.Config, store *TaskStore, handler Handler, connectivity Connectivity, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if connectivity == nil {
		connectivity = AlwaysOnline{}
	}
	return &Runner{
		cfg:          cfg,
		store:        store,
		handler:      handler,
		connectivity: connectivity,
		logger:       logger.With(logging.String(logging.FieldComponent, "scheduler")),
		pollInterval: time.Duration(cfg.Workflow.TaskPollInterval) * time.Second,
		errorRetry:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		offlineRetry: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		backoffBase:  time.Duration(cfg.Workflow.RetryBackoffBase) * time.Second,
		backoffCap:   time.Duration(cfg.Workflow.RetryBackoffCap) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}

// Start requeues tasks orphaned by a previous process and begins background
// processing.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("scheduler already running")
	}
	if r.handler == nil {
		r.mu.Unlock()
		return errors.New("scheduler handler not configured")
	}

	workers := r.cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(workers + 1)
	r.mu.Unlock()

	if reset, err := r.store.ResetRunning(runCtx); err != nil {
		r.logger.Warn("failed to requeue orphaned tasks",
			logging.Error(err),
			logging.String(logging.FieldEventType, "task_reset_failed"),
			logging.String(logging.FieldErrorHint, "check task database access"),
		)
	} else if reset > 0 {
		r.logger.Info("requeued orphaned tasks", logging.Int64("count", reset))
	}

	for i := 0; i < workers; i++ {
		go r.runWorker(runCtx, i)
	}
	go r.runReclaimer(runCtx)

	return nil
}

// Stop terminates background processing and waits for workers to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

func (r *Runner) runWorker(ctx context.Context, index int) {
	defer r.wg.Done()
	logger := r.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !r.connectivity.Online(ctx) {
			logger.Debug("network unreachable, deferring task processing")
			r.wait(ctx, r.offlineRetry)
			continue
		}

		task, err := r.store.ClaimNext(ctx, time.Now())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("failed to claim next task",
				logging.Error(err),
				logging.String(logging.FieldEventType, "task_claim_failed"),
				logging.String(logging.FieldErrorHint, "check task database access"),
			)
			r.wait(ctx, r.errorRetry)
			continue
		}
		if task == nil {
			r.wait(ctx, r.pollInterval)
			continue
		}

		if err := r.executeTask(ctx, logger, task); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (r *Runner) runReclaimer(ctx context.Context) {
	defer r.wg.Done()
	interval := r.heartbeat.interval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.heartbeat.ReclaimStaleTasks(ctx, r.logger); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				r.logger.Warn("reclaim stale tasks failed, stuck tasks may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check task database access"),
				)
			}
		}
	}
}

func (r *Runner) executeTask(ctx context.Context, workerLogger *slog.Logger, task *Task) error {
	requestID := uuid.NewString()
	taskCtx := services.WithRequestID(ctx, requestID)
	taskCtx = services.WithTaskKind(taskCtx, string(task.Kind))
	if task.RecordID > 0 {
		taskCtx = services.WithRecordID(taskCtx, task.RecordID)
	}

	attempt := task.Attempts + 1
	taskLogger := workerLogger.With(
		logging.String(logging.FieldTaskKind, string(task.Kind)),
		logging.String(logging.FieldCorrelationID, task.CorrelationID),
		logging.Int(logging.FieldAttempt, attempt),
	)
	if task.RecordID > 0 {
		taskLogger = taskLogger.With(logging.Int64(logging.FieldRecordID, task.RecordID))
	}

	start := time.Now()
	taskLogger.Info("task started", logging.String(logging.FieldEventType, "task_start"))

	outcome := r.executeWithHeartbeat(taskCtx, task)

	switch {
	case outcome.Success():
		if err := r.store.Complete(taskCtx, task.ID); err != nil {
			taskLogger.Error("failed to remove completed task", logging.Error(err))
			return err
		}
		taskLogger.Info("task completed",
			logging.String(logging.FieldEventType, "task_complete"),
			logging.Duration("task_duration", time.Since(start)),
		)
		return nil

	case outcome.Permanent():
		if err := r.store.Complete(taskCtx, task.ID); err != nil {
			taskLogger.Error("failed to remove failed task", logging.Error(err))
			return err
		}
		taskLogger.Error("task failed permanently",
			logging.Error(outcome.Err()),
			logging.String(logging.FieldEventType, "task_failed"),
			logging.String(logging.FieldErrorHint, "inspect the record error and retry manually"),
			logging.Duration("task_duration", time.Since(start)),
		)
		return nil

	default:
		if outcome.Err() != nil && errors.Is(outcome.Err(), context.Canceled) {
			// Shutdown interrupted the attempt; requeue without penalty.
			if err := r.store.Defer(context.WithoutCancel(taskCtx), task.ID, time.Now()); err != nil {
				taskLogger.Warn("failed to requeue interrupted task", logging.Error(err))
			}
			return context.Canceled
		}
		delay := r.retryDelay(attempt)
		message := ""
		if outcome.Err() != nil {
			message = outcome.Err().Error()
		}
		if err := r.store.Reschedule(taskCtx, task.ID, attempt, time.Now().Add(delay), message); err != nil {
			taskLogger.Error("failed to reschedule task", logging.Error(err))
			return err
		}
		taskLogger.Warn("task attempt failed, retrying",
			logging.Error(outcome.Err()),
			logging.String(logging.FieldEventType, "task_retry"),
			logging.Duration("retry_in", delay),
			logging.Duration("task_duration", time.Since(start)),
		)
		return nil
	}
}

func (r *Runner) executeWithHeartbeat(ctx context.Context, task *Task) Outcome {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	if r.heartbeat.interval > 0 {
		hbWG.Add(1)
		go r.heartbeat.StartLoop(hbCtx, &hbWG, task.ID)
	}

	outcome := r.handler.Handle(ctx, task)
	hbCancel()
	hbWG.Wait()
	return outcome
}

// retryDelay computes exponential backoff for the given completed attempt
// count: base, 2*base, 4*base and so on, capped.
func (r *Runner) retryDelay(attempts int) time.Duration {
	base := r.backoffBase
	if base <= 0 {
		base = time.Second
	}
	limit := r.backoffCap
	if limit <= 0 {
		limit = base
	}
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts - 1
	if shift > 30 {
		return limit
	}
	delay := base << shift
	if delay <= 0 || delay > limit {
		return limit
	}
	return delay
}

func (r *Runner) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Health reports task table occupancy for status endpoints.
func (r *Runner) Health(ctx context.Context) (TaskStats, error) {
	stats, err := r.store.Stats(ctx)
	if err != nil {
		return stats, fmt.Errorf("scheduler health: %w", err)
	}
	return stats, nil
}
