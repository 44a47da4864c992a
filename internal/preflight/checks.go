package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"vlbical/internal/services"
	"vlbical/internal/tables"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	fail := func(detail string) Result {
		return Result{Name: name, Detail: detail, Marker: services.ErrConfiguration}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fail(fmt.Sprintf("%s (error: does not exist)", path))
		}
		return fail(fmt.Sprintf("%s (error: stat: %v)", path, err))
	}
	if !info.IsDir() {
		return fail(fmt.Sprintf("%s (error: is not a directory)", path))
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fail(fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err))
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSolver verifies that the solver command resolves to an executable.
func CheckSolver(command string) Result {
	const name = "Fringe solver"

	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return Result{Name: name, Detail: "command not configured", Marker: services.ErrConfiguration}
	}
	path, err := exec.LookPath(cmd)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", cmd), Marker: services.ErrConfiguration}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckTables verifies that every required ancillary table kind has at least
// one version in the session's dataset.
func CheckTables(ctx context.Context, sess *tables.Session, required []string) Result {
	const name = "Ancillary tables"

	var missing, present []string
	for _, raw := range required {
		kind := tables.Kind(strings.ToUpper(strings.TrimSpace(raw)))
		if kind == "" {
			continue
		}
		highest, err := sess.Store.HighestVersion(ctx, sess.Dataset, kind)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("lookup %s: %v", kind, err), Marker: services.ErrNoTables}
		}
		if highest == 0 {
			missing = append(missing, string(kind))
			continue
		}
		present = append(present, fmt.Sprintf("%s %d", kind, highest))
	}
	if len(missing) > 0 {
		return Result{
			Name:   name,
			Detail: fmt.Sprintf("%s missing in %s", strings.Join(missing, ", "), sess.Dataset),
			Marker: services.ErrNoTables,
		}
	}
	if len(present) == 0 {
		return Result{Name: name, Passed: true, Detail: "none required"}
	}
	return Result{Name: name, Passed: true, Detail: strings.Join(present, ", ")}
}
