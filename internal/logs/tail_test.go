package logs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vlbical/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vlbical.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestLastKeepsTrailingLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\nd\ne\n")

	lines, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if diff := cmp.Diff([]string{"d", "e"}, lines); diff != "" {
		t.Fatalf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLastShortFileAndUnlimited(t *testing.T) {
	path := writeLog(t, "a\nb\n")

	lines, err := logs.Last(path, 5)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, lines); diff != "" {
		t.Fatalf("limited mismatch (-want +got):\n%s", diff)
	}

	lines, err = logs.Last(path, 0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, lines); diff != "" {
		t.Fatalf("unlimited mismatch (-want +got):\n%s", diff)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 10)
	if err != nil || lines != nil {
		t.Fatalf("expected no lines and no error, got %v, %v", lines, err)
	}
}

func TestLastRejectsDirectory(t *testing.T) {
	if _, err := logs.Last(t.TempDir(), 10); err == nil {
		t.Fatal("expected error for directory path")
	}
}
