package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for state, logs, and dataset locks.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	LockDir  string `toml:"lock_dir"`
}

// Solver describes how the external fringe solver is invoked.
type Solver struct {
	Command       string   `toml:"command"`
	Args          []string `toml:"args"`
	DelayWindowNS float64  `toml:"delay_window_ns"`
	RateWindowMHz float64  `toml:"rate_window_mhz"`
}

// ReferenceAntenna controls reference antenna ranking and its manual fallbacks.
type ReferenceAntenna struct {
	// Override is an explicit antenna code tried first when ranking finds no
	// antenna present in every target scan.
	Override string `toml:"override"`
	// Forced skips ranking entirely and uses Override.
	Forced bool `toml:"forced"`
	// Priority lists centrally located antennas tried after Override.
	Priority []string `toml:"priority"`
	// MaxSearchAntennas caps the alternate search anchors offered to the solver.
	MaxSearchAntennas int `toml:"max_search_antennas"`
}

// Solint bounds the solution interval search for science targets.
type Solint struct {
	MinMinutes  float64 `toml:"min_minutes"`
	MaxMinutes  float64 `toml:"max_minutes"`
	SampleScans int     `toml:"sample_scans"`
	Seed        uint64  `toml:"seed"`
}

// Quality holds detection and acceptance thresholds.
type Quality struct {
	DetectionSNR float64 `toml:"detection_snr"`
	AcceptRatio  float64 `toml:"accept_ratio"`
}

// Tables configures ancillary table checks and solution application.
type Tables struct {
	Required      []string `toml:"required"`
	Interpolation string   `toml:"interpolation"`
	CutoffMinutes float64  `toml:"cutoff_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Group is one frequency group of one dataset. Every group is processed in
// its own table-version namespace.
type Group struct {
	Name        string   `toml:"name"`
	Dataset     string   `toml:"dataset"`
	Targets     []string `toml:"targets"`
	Calibrators []string `toml:"calibrators"`
}

// Config encapsulates all configuration values for vlbical.
//
// Configuration sections by subsystem:
//   - Paths: state database, logs, and dataset lock files
//   - Solver: external fringe solver command and search windows
//   - ReferenceAntenna: manual overrides and ranking limits
//   - Solint: solution interval bounds and sampling seed
//   - Quality: detection SNR and fringe-fit acceptance ratio
//   - Tables: required ancillary tables and interpolation settings
//   - Logging: log format, level, and retention
//   - Groups: frequency groups to calibrate
type Config struct {
	Paths            Paths            `toml:"paths"`
	Solver           Solver           `toml:"solver"`
	ReferenceAntenna ReferenceAntenna `toml:"reference_antenna"`
	Solint           Solint           `toml:"solint"`
	Quality          Quality          `toml:"quality"`
	Tables           Tables           `toml:"tables"`
	Logging          Logging          `toml:"logging"`
	Groups           []Group          `toml:"groups"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vlbical/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vlbical.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state, log, and lock directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.LockDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StorePath returns the SQLite database holding solution tables and the decision ledger.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.StateDir, "vlbical.db")
}

// Group returns the named frequency group.
func (c *Config) Group(name string) (Group, bool) {
	name = strings.TrimSpace(name)
	for _, g := range c.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
