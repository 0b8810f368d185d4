package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"capnote/internal/logging"
	"capnote/internal/notifications"
	"capnote/internal/records"
	"capnote/internal/scheduler"
	"capnote/internal/services"
	"capnote/internal/textutil"
)

// QueueService coordinates record persistence with the durable task queue. It
// is the single entry point for registering finished recordings and for the
// manual retry, sweep, and delete operations exposed by the daemon API and
// the CLI.
type QueueService struct {
	store    *records.Store
	tasks    *scheduler.TaskStore
	notifier notifications.Service
	logger   *slog.Logger
}

// NewQueueService constructs a QueueService. The notifier may be nil when
// notifications are disabled.
func NewQueueService(store *records.Store, tasks *scheduler.TaskStore, notifier notifications.Service, logger *slog.Logger) *QueueService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QueueService{
		store:    store,
		tasks:    tasks,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "api"),
	}
}

// OnCaptureComplete registers a finished recording and enqueues its sync
// task. The file must already exist and be non-empty; callers hand off a path
// the recorder has finished writing.
func (s *QueueService) OnCaptureComplete(ctx context.Context, filePath string, durationSeconds float64) (*RecordView, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "capture", "file path is required", nil)
	}
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrValidation, "api", "capture", fmt.Sprintf("recording %s does not exist", filePath), nil)
		}
		return nil, services.Wrap(services.ErrTransient, "api", "capture", "stat recording", err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "api", "capture", fmt.Sprintf("%s is a directory", filePath), nil)
	}
	if info.Size() == 0 {
		return nil, services.Wrap(services.ErrValidation, "api", "capture", fmt.Sprintf("recording %s is empty", filePath), nil)
	}

	capturedAt := info.ModTime()
	record, err := s.store.Insert(ctx, filePath, capturedAt, durationSeconds)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.tasks.EnqueueRecord(ctx, record.ID); err != nil {
		return nil, err
	}
	s.logger.Info("capture registered",
		logging.Args(
			logging.Int64(logging.FieldRecordID, record.ID),
			logging.String("file_path", record.FilePath),
			logging.Float64("duration_seconds", durationSeconds),
		)...)
	title := textutil.DisplayTitle(record.FilePath)
	if s.notifier != nil {
		if err := s.notifier.NotifyCaptureQueued(ctx, title, durationSeconds); err != nil {
			s.logger.Warn("capture notification failed", logging.Args(logging.Error(err))...)
		}
	}
	view := FromRecord(record)
	return &view, nil
}

// Retry re-enqueues the sync task for a record regardless of its error state.
// The stored error message is left alone; a successful upload or
// transcription clears it through the normal completion path.
func (s *QueueService) Retry(ctx context.Context, id int64) (*RecordView, error) {
	record, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "retry", fmt.Sprintf("record %d not found", id), nil)
	}
	if _, _, err := s.tasks.EnqueueRecord(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("record retry requested", logging.Args(logging.Int64(logging.FieldRecordID, id))...)
	view := FromRecord(record)
	return &view, nil
}

// SyncAll enqueues the sweep task that re-queues every record still pending
// upload. Returns the number of records currently awaiting upload.
func (s *QueueService) SyncAll(ctx context.Context) (int, error) {
	pending, err := s.store.PendingUploadCount(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := s.tasks.EnqueueSweep(ctx); err != nil {
		return 0, err
	}
	s.logger.Info("sync sweep requested", logging.Args(logging.Int("pending_upload", pending))...)
	return pending, nil
}

// Delete removes a record, its queued task, and the local recording file. The
// remote copy is left untouched. Deleting an unknown record is an error;
// a missing local file is not.
func (s *QueueService) Delete(ctx context.Context, id int64) error {
	record, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return services.Wrap(services.ErrNotFound, "api", "delete", fmt.Sprintf("record %d not found", id), nil)
	}
	task, err := s.tasks.GetByKey(ctx, scheduler.RecordTaskKey(id))
	if err != nil {
		return err
	}
	// A running task belongs to its worker; the worker finds the record gone
	// and completes it. Only a queued task is removed here.
	if task != nil && task.Status == scheduler.StatusQueued {
		if err := s.tasks.Complete(ctx, task.ID); err != nil {
			return err
		}
	}
	if _, err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	if err := os.Remove(record.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("recording file removal failed",
			logging.Args(
				logging.Int64(logging.FieldRecordID, id),
				logging.String("file_path", record.FilePath),
				logging.Error(err),
			)...)
	}
	s.logger.Info("record deleted",
		logging.Args(
			logging.Int64(logging.FieldRecordID, id),
			logging.String("file_path", filepath.Base(record.FilePath)),
		)...)
	return nil
}

// List returns every record newest first.
func (s *QueueService) List(ctx context.Context) ([]RecordView, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return FromRecords(list), nil
}

// Describe fetches a single record. Returns nil when the record is unknown.
func (s *QueueService) Describe(ctx context.Context, id int64) (*RecordView, error) {
	record, err := s.store.GetByID(ctx, id)
	if err != nil || record == nil {
		return nil, err
	}
	view := FromRecord(record)
	return &view, nil
}

// Status assembles the combined record and task counters shown by the CLI
// status command and the daemon status endpoint.
func (s *QueueService) Status(ctx context.Context) (StatusSummary, error) {
	summary := StatusSummary{RecordCounts: map[string]int{}}
	health, err := s.store.Health(ctx)
	if err != nil {
		return summary, err
	}
	stats, err := s.tasks.Stats(ctx)
	if err != nil {
		return summary, err
	}
	summary.DatabasePath = s.store.Path()
	summary.RecordCounts[StatusPending] = health.PendingUpload
	summary.RecordCounts[StatusUploaded] = health.Uploaded
	summary.RecordCounts[StatusDone] = health.Done
	summary.RecordCounts[StatusError] = health.Errored
	summary.PendingUpload = health.PendingUpload
	summary.TasksQueued = stats.Queued
	summary.TasksRunning = stats.Running
	return summary, nil
}
