package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"capnote/internal/api"
	"capnote/internal/config"
	"capnote/internal/fileutil"
	"capnote/internal/logging"
)

// inboxMonitor polls the inbox directory for finished recordings. Recorders
// and sync tools drop audio files there; once a file's size has held steady
// across two polls it is moved into the recordings directory and registered.
type inboxMonitor struct {
	cfg          *config.Config
	logger       *slog.Logger
	queueSvc     *api.QueueService
	pollInterval time.Duration

	mu        sync.Mutex
	running   bool
	lastSizes map[string]int64
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func newInboxMonitor(cfg *config.Config, queueSvc *api.QueueService, logger *slog.Logger) *inboxMonitor {
	if cfg == nil || queueSvc == nil {
		return nil
	}
	if strings.TrimSpace(cfg.Paths.InboxDir) == "" {
		return nil
	}
	poll := time.Duration(cfg.Workflow.InboxPollInterval) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &inboxMonitor{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "inbox-monitor"),
		queueSvc:     queueSvc,
		pollInterval: poll,
		lastSizes:    make(map[string]int64),
	}
}

func (m *inboxMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("inbox monitor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go m.loop(runCtx)

	m.logger.Info("inbox monitor started",
		logging.Args(
			logging.String("inbox_dir", m.cfg.Paths.InboxDir),
			logging.Duration("poll_interval", m.pollInterval),
		)...)
	return nil
}

func (m *inboxMonitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.logger.Info("inbox monitor stopped")
}

func (m *inboxMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *inboxMonitor) loop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan(ctx)
		}
	}
}

// scan admits inbox files whose size is unchanged since the previous poll.
// First sightings only record the size so half-written files are never moved.
func (m *inboxMonitor) scan(ctx context.Context) {
	entries, err := os.ReadDir(m.cfg.Paths.InboxDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("inbox scan failed", logging.Args(logging.Error(err))...)
		}
		return
	}

	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !m.cfg.AcceptsExtension(filepath.Ext(name)) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(m.cfg.Paths.InboxDir, name)
		seen[path] = struct{}{}

		m.mu.Lock()
		previous, known := m.lastSizes[path]
		m.lastSizes[path] = info.Size()
		m.mu.Unlock()

		if !known || previous != info.Size() || info.Size() == 0 {
			continue
		}
		m.admit(ctx, path, name)
	}

	m.mu.Lock()
	for path := range m.lastSizes {
		if _, ok := seen[path]; !ok {
			delete(m.lastSizes, path)
		}
	}
	m.mu.Unlock()
}

func (m *inboxMonitor) admit(ctx context.Context, inboxPath, name string) {
	destDir := m.cfg.RecordingsDir()
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		m.logger.Warn("create recordings dir failed", logging.Args(logging.Error(err))...)
		return
	}
	destPath := uniqueDestination(destDir, name)
	if err := moveFile(inboxPath, destPath); err != nil {
		m.logger.Warn("move recording failed",
			logging.Args(
				logging.String("source", inboxPath),
				logging.String("destination", destPath),
				logging.Error(err),
			)...)
		return
	}

	view, err := m.queueSvc.OnCaptureComplete(ctx, destPath, 0)
	if err != nil {
		m.logger.Warn("register recording failed",
			logging.Args(logging.String("file_path", destPath), logging.Error(err))...)
		return
	}
	m.logger.Info("recording admitted from inbox",
		logging.Args(
			logging.Int64(logging.FieldRecordID, view.ID),
			logging.String("file_path", destPath),
		)...)

	m.mu.Lock()
	delete(m.lastSizes, inboxPath)
	m.mu.Unlock()
}

// uniqueDestination suffixes the filename when a same-named recording already
// exists in the recordings directory.
func uniqueDestination(dir, name string) string {
	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
		return candidate
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	stamp := time.Now().UTC().Format("20060102T150405")
	return filepath.Join(dir, base+"-"+stamp+ext)
}

// moveFile renames when possible and falls back to a verified copy for
// cross-device inboxes (the recorder mount is usually a separate filesystem).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
