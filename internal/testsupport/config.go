package testsupport

import (
	"path/filepath"
	"testing"

	"slipstream/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Device.Backend = "plain"

	builder := &configBuilder{cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithTarget overrides the default device target.
func WithTarget(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Device.DefaultTarget = path
	}
}

// WithBlockSectors overrides the per-read sector count.
func WithBlockSectors(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Device.BlockSectors = n
	}
}

// WithoutHistory disables history recording.
func WithoutHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backup.RecordHistory = false
	}
}
