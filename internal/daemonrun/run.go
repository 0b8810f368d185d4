// Package daemonrun assembles and runs the capnote daemon process: logger,
// pid file, stores, service clients, scheduler, and the daemon shell.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"capnote/internal/config"
	"capnote/internal/daemon"
	"capnote/internal/logging"
	"capnote/internal/notifications"
	"capnote/internal/records"
	"capnote/internal/scheduler"
	"capnote/internal/services/drive"
	"capnote/internal/services/transcribe"
	"capnote/internal/syncer"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the capnote daemon runtime loop and blocks until the context is
// cancelled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("capnote-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update capnote.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "capnote-*.log", Exclude: []string{logPath}},
	)

	pidPath := filepath.Join(cfg.Paths.LogDir, "capnote.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := records.Open(cfg)
	if err != nil {
		logger.Error("open record store", logging.Args(logging.Error(err))...)
		return err
	}
	defer store.Close()

	tasks, err := scheduler.OpenTaskStore(cfg)
	if err != nil {
		logger.Error("open task store", logging.Args(logging.Error(err))...)
		return err
	}
	defer tasks.Close()

	logConfigSnapshot(logger, cfg)

	notifier := notifications.NewService(cfg)
	storage := drive.NewClient(cfg)
	transcriber := transcribe.NewClient(cfg)
	orchestrator := syncer.New(store, tasks, storage, transcriber, storage, notifier, logger)
	connectivity := daemon.NewConnectivity(cfg, logger)
	runner := scheduler.NewRunner(cfg, tasks, orchestrator, connectivity, logger)

	d, err := daemon.New(cfg, store, tasks, runner, connectivity, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Args(
				logging.Error(err),
				logging.String(logging.FieldEventType, "daemon_start_failed"),
				logging.String(logging.FieldErrorHint, "check configuration and database access"),
			)...)
		return err
	}

	<-signalCtx.Done()
	logger.Info("capnote daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "capnote.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.Args(
			logging.String(logging.FieldEventType, "config_snapshot"),
			logging.String("data_dir", cfg.Paths.DataDir),
			logging.String("inbox_dir", cfg.Paths.InboxDir),
			logging.String("api_bind", cfg.Paths.APIBind),
			logging.Bool("storage_token_present", tokenPresent(cfg.Storage.TokenPath)),
			logging.Bool("transcription_key_present", strings.TrimSpace(cfg.Transcription.APIKey) != ""),
			logging.Bool("notifications_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
			logging.Bool("device_monitor_enabled", strings.TrimSpace(cfg.Recorder.DeviceGlob) != ""),
			logging.Int("workers", cfg.Workflow.Workers),
		)...)
}

func tokenPresent(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	data, err := os.ReadFile(path)
	return err == nil && len(strings.TrimSpace(string(data))) > 0
}
