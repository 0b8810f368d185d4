package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"capnote/internal/logging"
	"capnote/internal/notifications"
	"capnote/internal/records"
	"capnote/internal/scheduler"
	"capnote/internal/services"
	"capnote/internal/services/drive"
	"capnote/internal/textutil"
)

// Storage uploads recordings and maintains the remote transcript log.
type Storage interface {
	Upload(ctx context.Context, localPath string) (drive.FileInfo, error)
	AppendDailyLog(ctx context.Context, dateKey, entry string) error
}

// Transcriber converts a local audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, localPath string) (string, error)
}

// Credentials reports whether cloud storage can be used right now.
type Credentials interface {
	Ready(ctx context.Context) bool
}

// Syncer executes sync tasks: it drives each record through upload and
// transcription, and expands sweep tasks into per-record tasks.
type Syncer struct {
	store       *records.Store
	tasks       *scheduler.TaskStore
	storage     Storage
	transcriber Transcriber
	credentials Credentials
	notifier    notifications.Service
	logger      *slog.Logger
}

// New constructs a Syncer.
func New(store *records.Store, tasks *scheduler.TaskStore, storage Storage, transcriber Transcriber, credentials Credentials, notifier notifications.Service, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Syncer{
		store:       store,
		tasks:       tasks,
		storage:     storage,
		transcriber: transcriber,
		credentials: credentials,
		notifier:    notifier,
		logger:      logger.With(logging.String(logging.FieldComponent, "syncer")),
	}
}

// Handle implements scheduler.Handler.
func (s *Syncer) Handle(ctx context.Context, task *scheduler.Task) scheduler.Outcome {
	switch task.Kind {
	case scheduler.TaskKindSweep:
		return s.runSweep(ctx)
	case scheduler.TaskKindRecordSync:
		return s.syncRecord(ctx, task.RecordID)
	default:
		return scheduler.Failed(fmt.Errorf("unknown task kind %q", task.Kind))
	}
}

// runSweep enqueues a sync task for every record still pending upload.
// Enqueueing is dedup-protected, so sweeps are safe to run repeatedly.
func (s *Syncer) runSweep(ctx context.Context) scheduler.Outcome {
	pending, err := s.store.ListPendingUpload(ctx)
	if err != nil {
		return scheduler.RetryLater(fmt.Errorf("list pending uploads: %w", err))
	}

	enqueued := 0
	for _, record := range pending {
		if _, created, err := s.tasks.EnqueueRecord(ctx, record.ID); err != nil {
			return scheduler.RetryLater(fmt.Errorf("enqueue record %d: %w", record.ID, err))
		} else if created {
			enqueued++
		}
	}

	logger := logging.WithContext(ctx, s.logger)
	logger.Info("sweep completed",
		logging.Int("pending", len(pending)),
		logging.Int("enqueued", enqueued),
	)
	if s.notifier != nil {
		if err := s.notifier.NotifySweepCompleted(ctx, enqueued); err != nil {
			logger.Debug("sweep notification failed", logging.Error(err))
		}
	}
	return scheduler.Succeeded()
}

// syncRecord runs one record through the sync pipeline. Upload durability is
// the core guarantee and retries on failure; transcription degrades
// gracefully and never consumes retry budget.
func (s *Syncer) syncRecord(ctx context.Context, recordID int64) scheduler.Outcome {
	logger := logging.WithContext(ctx, s.logger)

	record, err := s.store.GetByID(ctx, recordID)
	if err != nil {
		return scheduler.RetryLater(fmt.Errorf("load record %d: %w", recordID, err))
	}
	if record == nil {
		return scheduler.Failed(fmt.Errorf("record %d no longer exists", recordID))
	}
	title := textutil.DisplayTitle(record.FilePath)

	if record.Done() {
		logger.Debug("record already fully processed", logging.String("title", title))
		return scheduler.Succeeded()
	}

	if !s.credentials.Ready(ctx) {
		logger.Info("cloud credentials unavailable, deferring sync",
			logging.String("title", title),
			logging.String(logging.FieldEventType, "sync_deferred"),
		)
		return scheduler.RetryLater(services.Wrap(services.ErrAuth, "syncer", "sync", "cloud credentials unavailable", nil))
	}

	if _, err := os.Stat(record.FilePath); err != nil {
		if os.IsNotExist(err) {
			if serr := s.store.SetError(ctx, record.ID, "file not found"); serr != nil {
				logger.Warn("failed to persist missing-file error", logging.Error(serr))
			}
			s.notifyError(ctx, logger, title, fmt.Errorf("local file missing: %s", record.FilePath))
			return scheduler.Failed(services.Wrap(services.ErrNotFound, "syncer", "sync", "local file missing", err))
		}
		return scheduler.RetryLater(fmt.Errorf("stat local file: %w", err))
	}

	if !record.Uploaded {
		info, err := s.storage.Upload(ctx, record.FilePath)
		if err != nil {
			if serr := s.store.SetError(ctx, record.ID, uploadErrorMessage(err)); serr != nil {
				logger.Warn("failed to persist upload error", logging.Error(serr))
			}
			if services.IsPermanent(err) {
				s.notifyError(ctx, logger, title, err)
				return scheduler.Failed(err)
			}
			logging.WarnWithContext(logger, "upload failed, will retry", "upload_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check network and cloud credentials"),
			)
			return scheduler.RetryLater(err)
		}

		if err := s.store.MarkUploaded(ctx, record.ID, info.ID, info.URL); err != nil {
			return scheduler.RetryLater(fmt.Errorf("persist upload result: %w", err))
		}
		logger.Info("upload completed",
			logging.String("title", title),
			logging.String("remote_file_id", info.ID),
			logging.String(logging.FieldEventType, "upload_complete"),
		)
		if s.notifier != nil {
			if err := s.notifier.NotifyUploadCompleted(ctx, title); err != nil {
				logger.Debug("upload notification failed", logging.Error(err))
			}
		}
	}

	record, err = s.store.GetByID(ctx, record.ID)
	if err != nil {
		return scheduler.RetryLater(fmt.Errorf("reload record %d: %w", recordID, err))
	}
	if record == nil {
		return scheduler.Failed(fmt.Errorf("record %d removed mid-sync", recordID))
	}

	if !record.Transcribed {
		s.transcribeRecord(ctx, logger, record, title)
	}

	return scheduler.Succeeded()
}

// transcribeRecord is best-effort enrichment: any failure is recorded on the
// record and logged, never surfaced as a task failure.
func (s *Syncer) transcribeRecord(ctx context.Context, logger *slog.Logger, record *records.Record, title string) {
	text, err := s.transcriber.Transcribe(ctx, record.FilePath)
	if err != nil {
		if serr := s.store.SetError(ctx, record.ID, fmt.Sprintf("transcription failed: %v", err)); serr != nil {
			logger.Warn("failed to persist transcription error", logging.Error(serr))
		}
		logging.WarnWithContext(logger, "transcription failed, record stays uploaded", "transcription_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check transcription api key and retry the record"),
		)
		return
	}

	if err := s.store.MarkTranscribed(ctx, record.ID, text); err != nil {
		logger.Warn("failed to persist transcript", logging.Error(err))
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		logger.Info("no speech detected",
			logging.String("title", title),
			logging.String(logging.FieldEventType, "transcript_empty"),
		)
		return
	}

	logger.Info("transcript ready",
		logging.String("title", title),
		logging.Int("transcript_chars", len(text)),
		logging.String(logging.FieldEventType, "transcript_ready"),
	)

	dateKey := record.CapturedAt.Format("2006-01-02")
	entry := fmt.Sprintf("%s %s: %s", record.CapturedAt.Format("15:04"), title, text)
	if err := s.storage.AppendDailyLog(ctx, dateKey, entry); err != nil {
		logger.Warn("daily log append failed", logging.Error(err))
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyTranscriptReady(ctx, title, text); err != nil {
			logger.Debug("transcript notification failed", logging.Error(err))
		}
	}
}

func (s *Syncer) notifyError(ctx context.Context, logger *slog.Logger, title string, err error) {
	if s.notifier == nil {
		return
	}
	if nerr := s.notifier.NotifySyncError(ctx, err, title); nerr != nil {
		logger.Debug("error notification failed", logging.Error(nerr))
	}
}

func uploadErrorMessage(err error) string {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = "upload failed"
	}
	return message
}
