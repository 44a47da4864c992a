package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSolver()
	c.normalizeReferenceAntenna()
	c.normalizeSolint()
	c.normalizeTables()
	c.normalizeLogging()
	c.normalizeGroups()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockDir) == "" {
		c.Paths.LockDir = defaultLockDir
	}
	if c.Paths.LockDir, err = expandPath(c.Paths.LockDir); err != nil {
		return fmt.Errorf("paths.lock_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSolver() {
	c.Solver.Command = strings.TrimSpace(c.Solver.Command)
	if c.Solver.Command == "" {
		if value, ok := os.LookupEnv("VLBICAL_SOLVER"); ok {
			c.Solver.Command = strings.TrimSpace(value)
		}
	}
	if c.Solver.Command == "" {
		c.Solver.Command = defaultSolverCommand
	}
}

func (c *Config) normalizeReferenceAntenna() {
	c.ReferenceAntenna.Override = strings.ToUpper(strings.TrimSpace(c.ReferenceAntenna.Override))
	priority := make([]string, 0, len(c.ReferenceAntenna.Priority))
	seen := make(map[string]struct{}, len(c.ReferenceAntenna.Priority))
	for _, code := range c.ReferenceAntenna.Priority {
		normalized := strings.ToUpper(strings.TrimSpace(code))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		priority = append(priority, normalized)
	}
	c.ReferenceAntenna.Priority = priority
	if c.ReferenceAntenna.MaxSearchAntennas <= 0 {
		c.ReferenceAntenna.MaxSearchAntennas = defaultMaxSearchAntennas
	}
}

func (c *Config) normalizeSolint() {
	if c.Solint.SampleScans <= 0 {
		c.Solint.SampleScans = defaultSolintSampleScans
	}
}

func (c *Config) normalizeTables() {
	required := make([]string, 0, len(c.Tables.Required))
	for _, kind := range c.Tables.Required {
		if normalized := strings.ToUpper(strings.TrimSpace(kind)); normalized != "" {
			required = append(required, normalized)
		}
	}
	c.Tables.Required = required
	c.Tables.Interpolation = strings.ToUpper(strings.TrimSpace(c.Tables.Interpolation))
	if c.Tables.Interpolation == "" {
		c.Tables.Interpolation = defaultInterpolation
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeGroups() {
	for i := range c.Groups {
		g := &c.Groups[i]
		g.Name = strings.TrimSpace(g.Name)
		g.Dataset = strings.TrimSpace(g.Dataset)
		if g.Dataset == "" {
			g.Dataset = g.Name
		}
		g.Targets = trimUpper(g.Targets)
		g.Calibrators = trimUpper(g.Calibrators)
	}
}

func trimUpper(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
