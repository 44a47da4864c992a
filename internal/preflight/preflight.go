package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vlbical/internal/config"
	"vlbical/internal/services"
	"vlbical/internal/tables"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Marker classifies a failure; see services sentinels.
	Marker error
}

// RunAll executes every check a group needs before its first solver call.
// A nil session skips the dataset table check.
func RunAll(ctx context.Context, cfg *config.Config, sess *tables.Session) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Lock directory", cfg.Paths.LockDir),
		CheckSolver(cfg.Solver.Command),
	}
	if sess != nil {
		results = append(results, CheckTables(ctx, sess, cfg.Tables.Required))
	}
	return results
}

// Err folds failed results into one error. Table failures carry
// services.ErrNoTables; everything else is a configuration problem.
func Err(results []Result) error {
	var (
		failed []string
		marker error
	)
	for _, r := range results {
		if r.Passed {
			continue
		}
		failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		if marker == nil || errors.Is(r.Marker, services.ErrNoTables) {
			marker = r.Marker
		}
	}
	if len(failed) == 0 {
		return nil
	}
	if marker == nil {
		marker = services.ErrConfiguration
	}
	return services.Wrap(marker, "preflight", "check", strings.Join(failed, "; "), nil)
}
