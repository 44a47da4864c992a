package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vlbical/internal/config"
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
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.LockDir = filepath.Join(base, "locks")
	cfgVal.Groups = []config.Group{{
		Name:        "x-band",
		Dataset:     "BL229AE_X",
		Targets:     []string{"J0102+5824"},
		Calibrators: []string{"0059+581"},
	}}

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

// WithGroups replaces the configured frequency groups.
func WithGroups(groups ...config.Group) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Groups = groups
	}
}

// WithOverride sets the manual reference antenna override.
func WithOverride(code string, forced bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ReferenceAntenna.Override = code
		b.cfg.ReferenceAntenna.Forced = forced
	}
}

// WithStubbedSolver writes a stub solver executable that runs script and
// points the config at it.
func WithStubbedSolver(script string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "fringe-solver")
		if err := os.WriteFile(target, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
			b.t.Fatalf("write stub solver: %v", err)
		}
		b.cfg.Solver.Command = target
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
