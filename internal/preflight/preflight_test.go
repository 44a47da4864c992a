package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"vlbical/internal/services"
	"vlbical/internal/tables"
	"vlbical/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" || !errors.Is(result.Marker, services.ErrConfiguration) {
		t.Fatalf("unexpected failure result %+v", result)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckSolver(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedSolver("exit 0"))
	if result := CheckSolver(cfg.Solver.Command); !result.Passed {
		t.Fatalf("expected stub solver to resolve: %s", result.Detail)
	}
	if result := CheckSolver("clearly-not-present-solver"); result.Passed {
		t.Fatal("expected failure for missing binary")
	}
	if result := CheckSolver("  "); result.Passed || result.Detail != "command not configured" {
		t.Fatalf("unexpected result for empty command: %+v", result)
	}
}

func TestCheckTables(t *testing.T) {
	store := testsupport.NewMemoryStore()
	sess := testsupport.NewSession(t, store)
	ctx := context.Background()

	result := CheckTables(ctx, sess, []string{"ty", "GC"})
	if result.Passed || !errors.Is(result.Marker, services.ErrNoTables) {
		t.Fatalf("expected missing tables failure, got %+v", result)
	}
	if result.Detail != "TY, GC missing in TEST" {
		t.Fatalf("unexpected detail %q", result.Detail)
	}

	store.Seed(t, "TEST", tables.Table{Kind: tables.KindTY, Version: 1})
	store.Seed(t, "TEST", tables.Table{Kind: tables.KindGC, Version: 2})
	result = CheckTables(ctx, sess, []string{"ty", "GC"})
	if !result.Passed || result.Detail != "TY 1, GC 2" {
		t.Fatalf("expected pass, got %+v", result)
	}
}

func TestRunAllAndErr(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedSolver("exit 0"))
	cfg.Tables.Required = []string{"TY"}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	sess := testsupport.NewSession(t, testsupport.NewMemoryStore())

	results := RunAll(context.Background(), cfg, sess)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	err := Err(results)
	if !errors.Is(err, services.ErrNoTables) {
		t.Fatalf("expected ErrNoTables, got %v", err)
	}
	if !services.IsGroupFatal(err) {
		t.Fatal("missing tables must stop the group")
	}

	if err := Err(RunAll(context.Background(), cfg, nil)); err != nil {
		t.Fatalf("expected pass without dataset check, got %v", err)
	}
	if RunAll(context.Background(), nil, nil) != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestErrDefaultsToConfiguration(t *testing.T) {
	err := Err([]Result{{Name: "x", Detail: "broken"}})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
