package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"capnote/internal/api"
	"capnote/internal/config"
	"capnote/internal/logging"
	"capnote/internal/notifications"
	"capnote/internal/records"
	"capnote/internal/scheduler"
)

// Daemon coordinates the background services and enforces single-instance
// execution: the task runner, the HTTP API, the inbox poller, and the
// recorder device monitor.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *records.Store
	tasks        *scheduler.TaskStore
	runner       *scheduler.Runner
	queueSvc     *api.QueueService
	connectivity scheduler.Connectivity
	logPath      string

	lockPath string
	lock     *flock.Flock

	apiSrv  *apiServer
	inbox   *inboxMonitor
	devices *deviceMonitor

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewConnectivity builds the scheduler's network gate from configuration.
// Without a probe URL the gate reports always-online.
func NewConnectivity(cfg *config.Config, logger *slog.Logger) scheduler.Connectivity {
	if checker := newConnectivityChecker(cfg, logger); checker != nil {
		return checker
	}
	return scheduler.AlwaysOnline{}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *records.Store, tasks *scheduler.TaskStore, runner *scheduler.Runner, connectivity scheduler.Connectivity, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || tasks == nil || runner == nil || logger == nil {
		return nil, errors.New("daemon requires config, stores, runner, and logger")
	}
	if connectivity == nil {
		connectivity = scheduler.AlwaysOnline{}
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "capnoted.lock")
	d := &Daemon{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		tasks:        tasks,
		runner:       runner,
		queueSvc:     api.NewQueueService(store, tasks, notifications.NewService(cfg), logger),
		connectivity: connectivity,
		logPath:      filepath.Join(cfg.Paths.LogDir, "capnote.log"),
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}

	apiSrv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiSrv = apiSrv
	d.inbox = newInboxMonitor(cfg, d.queueSvc, logger)
	d.devices = newDeviceMonitor(cfg, logger, d.onRecorderAttached)
	return d, nil
}

// Start acquires the daemon lock and launches the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another capnote daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.runner.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start task runner: %w", err)
	}
	if d.apiSrv != nil {
		if err := d.apiSrv.start(d.ctx); err != nil {
			d.runner.Stop()
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return err
		}
	}
	if d.inbox != nil {
		if err := d.inbox.Start(d.ctx); err != nil {
			d.logger.Warn("inbox monitor start failed", logging.Args(logging.Error(err))...)
		}
	}
	if d.devices != nil {
		if err := d.devices.Start(d.ctx); err != nil {
			d.logger.Warn("device monitor start failed", logging.Args(logging.Error(err))...)
		}
	}

	// Sweep at startup so recordings captured while the daemon was down
	// are queued without waiting for a manual sync.
	if _, err := d.tasks.EnqueueSweep(d.ctx); err != nil {
		d.logger.Warn("startup sweep enqueue failed", logging.Args(logging.Error(err))...)
	}

	d.running.Store(true)
	d.logger.Info("capnote daemon started", logging.Args(logging.String("lock", d.lockPath))...)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.devices != nil {
		d.devices.Stop()
	}
	if d.inbox != nil {
		d.inbox.Stop()
	}
	if d.apiSrv != nil {
		d.apiSrv.stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.runner.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Args(logging.Error(err))...)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("capnote daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.tasks != nil {
		errs = append(errs, d.tasks.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// QueueService exposes the record/queue facade for embedding callers.
func (d *Daemon) QueueService() *api.QueueService {
	return d.queueSvc
}

// APIAddr returns the bound API listen address, empty when the API is
// disabled or not yet started.
func (d *Daemon) APIAddr() string {
	return d.apiSrv.addr()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (api.StatusSummary, error) {
	summary, err := d.queueSvc.Status(ctx)
	if err != nil {
		return summary, err
	}
	summary.Running = d.running.Load()
	summary.PID = os.Getpid()
	summary.LockFilePath = d.lockPath
	summary.Online = d.connectivity.Online(ctx)
	return summary, nil
}

// onRecorderAttached reacts to the configured recorder appearing on the bus
// by scheduling a sweep. The inbox poller picks up the files themselves once
// the mount lands in the inbox directory.
func (d *Daemon) onRecorderAttached(ctx context.Context, device string) {
	pending, err := d.queueSvc.SyncAll(ctx)
	if err != nil {
		d.logger.Warn("recorder-attach sweep failed",
			logging.Args(logging.String("device", device), logging.Error(err))...)
		return
	}
	d.logger.Info("recorder-attach sweep scheduled",
		logging.Args(
			logging.String("device", device),
			logging.Int("pending_upload", pending),
		)...)
}
