package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vlbical/internal/config"
	"vlbical/internal/logging"
	"vlbical/internal/services"
	"vlbical/internal/store"
	"vlbical/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedSolver("exit 0"))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	g := cfg.Groups[0]
	content := fmt.Sprintf(`[paths]
state_dir = %q
log_dir = %q
lock_dir = %q

[solver]
command = %q

[[groups]]
name = %q
dataset = %q
targets = [%q]
calibrators = [%q]
`,
		cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.LockDir,
		cfg.Solver.Command,
		g.Name, g.Dataset, g.Targets[0], g.Calibrators[0],
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func writeTableFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write table file: %v", err)
	}
	return path
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "vlbical", "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateReportsMissingTables(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if !errors.Is(err, services.ErrNoTables) {
		t.Fatalf("expected ErrNoTables, got %v", err)
	}
	requireContains(t, out, "TY, GC missing in BL229AE_X")

	file := filepath.Join(t.TempDir(), "ancillary.json")
	testsupport.WriteJSON(t, file, map[string]any{
		"rows": []map[string]any{{"antenna": 1, "weights": []float64{1}}},
	})
	for _, kind := range []string{"ty", "gc"} {
		if _, _, err := runCLI(t, []string{"tables", "import", "BL229AE_X", kind, file}, env.configPath); err != nil {
			t.Fatalf("tables import %s: %v", kind, err)
		}
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v\n%s", err, out)
	}
	requireContains(t, out, "Configuration valid")
}

func TestTablesImportListAndCopy(t *testing.T) {
	env := setupCLITestEnv(t)
	file := writeTableFile(t, `{"rows": [
		{"antenna": 1, "time": 0.5, "time_interval": 0.01, "source_id": 1, "weights": [7.5, null]},
		{"antenna": 2, "time": 0.5, "time_interval": 0.01, "source_id": 1, "weights": [0], "reference": true}
	]}`)

	out, _, err := runCLI(t, []string{"tables", "import", "BL229AE_X", "SN", file}, env.configPath)
	if err != nil {
		t.Fatalf("tables import: %v", err)
	}
	requireContains(t, out, "Imported SN 1 into BL229AE_X (2 rows)")

	if _, _, err := runCLI(t, []string{"tables", "copy", "BL229AE_X", "sn", "1", "4"}, env.configPath); err != nil {
		t.Fatalf("tables copy: %v", err)
	}
	if _, _, err := runCLI(t, []string{"tables", "copy", "BL229AE_X", "sn", "1", "4"}, env.configPath); err == nil {
		t.Fatal("expected copy onto an existing version to fail")
	}

	out, _, err = runCLI(t, []string{"tables", "list", "BL229AE_X"}, env.configPath)
	if err != nil {
		t.Fatalf("tables list: %v", err)
	}
	if got := strings.Count(out, "│ SN "); got != 2 {
		t.Fatalf("expected two SN versions listed, got %d:\n%s", got, out)
	}

	st, err := store.Open(env.cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	tbl, err := st.Table(context.Background(), "BL229AE_X", "SN", 4)
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if len(tbl.Rows) != 2 || !tbl.Rows[1].Reference || tbl.Rows[0].Weights[0] != 7.5 {
		t.Fatalf("unexpected copied rows %+v", tbl.Rows)
	}
}

func TestTablesImportRejectsUnknownKind(t *testing.T) {
	env := setupCLITestEnv(t)
	file := writeTableFile(t, `{"rows": []}`)
	_, _, err := runCLI(t, []string{"tables", "import", "BL229AE_X", "XX", file}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unknown table kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestShowRendersLatestRun(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"show"}, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "No runs recorded")

	st, err := store.Open(env.cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	ctx := context.Background()
	if err := st.RecordRun(ctx, "run-1", env.configPath); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := st.RecordDecision(ctx, store.Decision{
		RunID: "run-1", Group: "x-band", Stage: "refant", Type: "reference_antenna",
		Result: "LA", Reason: "ranked", Detail: map[string]any{"scores": map[string]any{"LA": 12.5}},
	}); err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}
	if err := st.RecordExclusion(ctx, store.Exclusion{
		RunID: "run-1", Group: "x-band", Target: "J0102+5824", ErrorKind: "fringe_unsalvageable", Reason: "no good solutions",
	}); err != nil {
		t.Fatalf("RecordExclusion: %v", err)
	}
	if err := st.FinishRun(ctx, "run-1", store.RunPartial, "1 target(s) excluded"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	st.Close()

	out, _, err = runCLI(t, []string{"show", "--detail"}, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "run-1 partial")
	requireContains(t, out, "reference_antenna")
	requireContains(t, out, `{"scores":{"LA":12.5}}`)
	requireContains(t, out, "fringe_unsalvageable")

	if _, _, err := runCLI(t, []string{"show", "--run", "missing"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestRunRejectsUnknownGroup(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"run", "--group", "q-band"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), `unknown frequency group "q-band"`) {
		t.Fatalf("expected unknown group error, got %v", err)
	}
}

func TestSelectGroupsDefaultsToAll(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithGroups(
		config.Group{Name: "x-band", Dataset: "X"},
		config.Group{Name: "k-band", Dataset: "K"},
	))
	groups, err := selectGroups(cfg, nil)
	if err != nil || len(groups) != 2 {
		t.Fatalf("expected both groups, got %v, %v", groups, err)
	}
	groups, err = selectGroups(cfg, []string{" k-band "})
	if err != nil || len(groups) != 1 || groups[0].Dataset != "K" {
		t.Fatalf("expected k-band only, got %v, %v", groups, err)
	}
}

func TestLogsPrintsGroupLogTail(t *testing.T) {
	env := setupCLITestEnv(t)
	path := logging.GroupLogPath(env.cfg, "run-1", "x-band")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write group log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--group", "x-band", "--run", "run-1", "-n", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "second\nthird\n" {
		t.Fatalf("unexpected log output %q", out)
	}

	_, stderr, err := runCLI(t, []string{"logs"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, stderr, "No log output")
}
