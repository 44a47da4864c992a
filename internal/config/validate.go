package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSolver(); err != nil {
		return err
	}
	if err := c.validateReferenceAntenna(); err != nil {
		return err
	}
	if err := c.validateSolint(); err != nil {
		return err
	}
	if err := c.validateQuality(); err != nil {
		return err
	}
	if err := c.validateGroups(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSolver() error {
	if strings.TrimSpace(c.Solver.Command) == "" {
		return errors.New("solver.command must be set (or export VLBICAL_SOLVER)")
	}
	if c.Solver.DelayWindowNS < 0 {
		return errors.New("solver.delay_window_ns must be >= 0")
	}
	if c.Solver.RateWindowMHz < 0 {
		return errors.New("solver.rate_window_mhz must be >= 0")
	}
	return nil
}

func (c *Config) validateReferenceAntenna() error {
	if c.ReferenceAntenna.Forced && c.ReferenceAntenna.Override == "" {
		return errors.New("reference_antenna.override must be set when reference_antenna.forced is true")
	}
	return nil
}

func (c *Config) validateSolint() error {
	if c.Solint.MinMinutes < 0 {
		return errors.New("solint.min_minutes must be >= 0")
	}
	if c.Solint.MaxMinutes <= 0 {
		return errors.New("solint.max_minutes must be positive")
	}
	if c.Solint.MinMinutes > c.Solint.MaxMinutes {
		return fmt.Errorf("solint.min_minutes (%.2f) must not exceed solint.max_minutes (%.2f)", c.Solint.MinMinutes, c.Solint.MaxMinutes)
	}
	return nil
}

func (c *Config) validateQuality() error {
	if c.Quality.DetectionSNR <= 0 {
		return errors.New("quality.detection_snr must be positive")
	}
	if c.Quality.AcceptRatio <= 0 || c.Quality.AcceptRatio > 1 {
		return errors.New("quality.accept_ratio must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateGroups() error {
	seen := make(map[string]struct{}, len(c.Groups))
	for i, g := range c.Groups {
		if g.Name == "" {
			return fmt.Errorf("groups[%d].name must be set", i)
		}
		if _, dup := seen[g.Name]; dup {
			return fmt.Errorf("groups[%d].name %q is duplicated", i, g.Name)
		}
		seen[g.Name] = struct{}{}
		if len(g.Targets) == 0 {
			return fmt.Errorf("groups[%d] (%s) must list at least one target", i, g.Name)
		}
	}
	return nil
}
