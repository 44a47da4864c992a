// Package main hosts the vlbical CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, opens the SQLite store
// and hands control to internal/pipeline for calibration runs. The remaining
// commands inspect what a run decided (`show`, `logs`), manage calibration
// tables (`tables`) and scaffold or check configuration (`config`).
//
// Keep this package thin: calibration behaviour belongs in the internal
// packages and is only surfaced here.
package main
