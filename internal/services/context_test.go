package services_test

import (
	"context"
	"testing"

	"vlbical/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithGroup(ctx, "x-band")
	ctx = services.WithTarget(ctx, "J0102+5824")
	ctx = services.WithStage(ctx, "solint")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if group, ok := services.GroupFromContext(ctx); !ok || group != "x-band" {
		t.Fatalf("unexpected group: %v %v", group, ok)
	}
	if target, ok := services.TargetFromContext(ctx); !ok || target != "J0102+5824" {
		t.Fatalf("unexpected target: %v %v", target, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "solint" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
