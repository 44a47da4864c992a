// Package config loads, normalizes, and validates vlbical configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the VLBICAL_SOLVER environment
// fallback. The Config type centralizes every knob the calibration pipeline
// needs: solver invocation, reference antenna overrides, solution interval
// bounds, quality thresholds, and the frequency groups to process.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, upper-cased antenna and source codes, and clear validation
// errors.
package config
