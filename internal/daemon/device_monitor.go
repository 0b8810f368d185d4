package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"capnote/internal/config"
	"capnote/internal/logging"
)

// deviceMonitor listens for udev netlink events and triggers a sync sweep
// when the configured recorder attaches. Recorders expose their storage as a
// block device, so a matching add event means fresh recordings may be
// waiting in the inbox mount.
type deviceMonitor struct {
	cfg        *config.Config
	logger     *slog.Logger
	onAttach   func(ctx context.Context, device string)
	deviceGlob string

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newDeviceMonitor(cfg *config.Config, logger *slog.Logger, onAttach func(ctx context.Context, device string)) *deviceMonitor {
	if cfg == nil {
		return nil
	}
	glob := strings.TrimSpace(cfg.Recorder.DeviceGlob)
	if glob == "" {
		return nil
	}
	return &deviceMonitor{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "device-monitor"),
		onAttach:   onAttach,
		deviceGlob: glob,
	}
}

// Start begins listening for udev netlink events.
func (m *deviceMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; recorder detection will rely on inbox polling",
			logging.Args(
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_connect_failed"),
				logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			)...)
		return nil // Non-fatal, the inbox poller still admits recordings
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("device monitor started",
		logging.Args(
			logging.String(logging.FieldEventType, "device_monitor_started"),
			logging.String("device_glob", m.deviceGlob),
		)...)
	return nil
}

// Stop shuts down the device monitor.
func (m *deviceMonitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("device monitor stopped",
		logging.Args(logging.String(logging.FieldEventType, "device_monitor_stopped"))...)
}

// Running reports whether the device monitor is active.
func (m *deviceMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *deviceMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	matcher := m.buildMatcher()

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, matcher)
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			m.logger.Warn("device monitor error",
				logging.Args(
					logging.Error(err),
					logging.String(logging.FieldEventType, "device_monitor_error"),
					logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				)...)
		}
	}
}

// buildMatcher matches block device attach events. The DEVNAME glob filter
// runs in handleEvent since udev rules cannot express filepath globs.
func (m *deviceMonitor) buildMatcher() netlink.Matcher {
	action := "add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
		},
	})
	return rules
}

func (m *deviceMonitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	devname := m.extractDeviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.Args(
				logging.String("action", string(uevent.Action)),
				logging.String("kobj", uevent.KObj),
			)...)
		return
	}
	if !m.matchesDevice(devname) {
		m.logger.Debug("ignoring event for non-matching device",
			logging.Args(
				logging.String("device", devname),
				logging.String("device_glob", m.deviceGlob),
			)...)
		return
	}

	m.logger.Info("recorder attached",
		logging.Args(
			logging.String(logging.FieldEventType, "recorder_attached"),
			logging.String("device", devname),
			logging.String("action", string(uevent.Action)),
		)...)

	if m.onAttach != nil {
		m.onAttach(ctx, devname)
	}
}

func (m *deviceMonitor) matchesDevice(devname string) bool {
	ok, err := filepath.Match(m.deviceGlob, devname)
	return err == nil && ok
}

// extractDeviceName gets the device path from a uevent.
func (m *deviceMonitor) extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			return "/dev/" + devname
		}
		return devname
	}

	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	if len(parts) == 0 {
		return ""
	}
	return "/dev/" + parts[len(parts)-1]
}
