// Package solverexec drives the external fringe solver binary.
//
// Every call runs the configured command with the action name appended to
// its arguments, writes one JSON request to stdin and reads one JSON
// response from stdout. A non-zero exit, an "error" field, or an empty
// solution table maps to services.ErrSolverInvocation. Fringe-fit rows are
// persisted through the session's table store so the returned table and the
// stored version always agree.
package solverexec
