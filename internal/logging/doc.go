// Package logging assembles structured slog loggers and formatting helpers used
// across the calibration pipeline.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with run IDs, frequency groups, targets, and stages. Decision
// helpers give every reference antenna, calibrator scan, solution interval and
// fringe-fit verdict the same decision_type/result/reason shape so runs can be
// audited from the logs alone.
package logging
