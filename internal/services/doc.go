// Package services defines shared utilities consumed by the calibration stages
// and the external solver integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, frequency groups, targets, and stage
//     names for logging.
//   - Structured error markers plus the Wrap helper, so failures can be
//     classified as group-fatal, target-fatal, or retryable without string
//     matching.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
