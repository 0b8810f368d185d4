package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"capnote/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.InboxDir = filepath.Join(base, "inbox")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Storage.TokenPath = filepath.Join(base, "storage_token")
	cfgVal.Workflow.TaskPollInterval = 1
	cfgVal.Workflow.RetryBackoffBase = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStorageToken writes a storage token file so credential checks pass.
func WithStorageToken(token string) ConfigOption {
	return func(b *configBuilder) {
		if err := os.WriteFile(b.cfg.Storage.TokenPath, []byte(token), 0o600); err != nil {
			b.t.Fatalf("write storage token: %v", err)
		}
	}
}

// WithWorkers overrides the scheduler worker count on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = workers
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
