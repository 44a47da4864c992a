// Package preflight provides readiness checks for the filesystem, the solver
// binary, and the ancillary tables a frequency group depends on.
//
// The pipeline calls RunAll before a group's first solver invocation. If any
// check fails the group stops with services.ErrNoTables or
// services.ErrConfiguration rather than failing hours into a run. The CLI
// "vlbical config validate" command prints the same results.
package preflight
