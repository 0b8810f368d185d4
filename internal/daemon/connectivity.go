package daemon

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"capnote/internal/config"
	"capnote/internal/logging"
)

// connectivityChecker probes an HTTP endpoint to decide whether the network
// path to cloud storage is usable. Results are cached so scheduler workers
// polling every few seconds do not hammer the probe endpoint.
type connectivityChecker struct {
	probeURL string
	client   *http.Client
	ttl      time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	checkedAt time.Time
	online    bool
}

func newConnectivityChecker(cfg *config.Config, logger *slog.Logger) *connectivityChecker {
	if cfg == nil {
		return nil
	}
	probeURL := strings.TrimSpace(cfg.Storage.ProbeURL)
	if probeURL == "" {
		return nil
	}
	ttl := time.Duration(cfg.Workflow.ConnectivityTTL) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &connectivityChecker{
		probeURL: probeURL,
		client:   &http.Client{Timeout: 5 * time.Second},
		ttl:      ttl,
		logger:   logging.NewComponentLogger(logger, "connectivity"),
	}
}

// Online reports whether the last probe within the cache window succeeded,
// probing again when the cached result has expired.
func (c *connectivityChecker) Online(ctx context.Context) bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !c.checkedAt.IsZero() && now.Sub(c.checkedAt) < c.ttl {
		return c.online
	}

	online := c.probe(ctx)
	if online != c.online || c.checkedAt.IsZero() {
		if online {
			c.logger.Info("network reachable", logging.Args(logging.String("probe_url", c.probeURL))...)
		} else {
			c.logger.Info("network unreachable", logging.Args(logging.String("probe_url", c.probeURL))...)
		}
	}
	c.checkedAt = now
	c.online = online
	return online
}

func (c *connectivityChecker) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	// Any response proves the network path works; captive portals and
	// probe endpoints answer with a variety of statuses.
	return resp.StatusCode < http.StatusInternalServerError
}
