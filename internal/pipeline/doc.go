// Package pipeline runs the calibration decision engine over frequency groups.
//
// Groups run strictly one after another. Each group takes its dataset's write
// lock, runs preflight, surveys scan SNRs with a provisional reference,
// ranks the reference antenna, selects calibrator scans, solves and applies
// the instrumental calibration, and then works through its science targets:
// interval search, fringe-fit assessment, application and export.
//
// Errors are scoped. A group-fatal error (see services.IsGroupFatal) stops
// only its group; a target that cannot be salvaged joins the exclusion set and
// its siblings continue. Every decision is logged and mirrored into the
// ledger so `vlbical show` can explain a run after the fact.
package pipeline
