package services

import "context"

type contextKey string

const (
	runIDKey  contextKey = "run_id"
	groupKey  contextKey = "group"
	targetKey contextKey = "target"
	stageKey  contextKey = "stage"
)

// WithRunID annotates context with the pipeline run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	return withString(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, runIDKey)
}

// WithGroup annotates context with the frequency group (dataset namespace) name.
func WithGroup(ctx context.Context, group string) context.Context {
	return withString(ctx, groupKey, group)
}

// GroupFromContext returns the frequency group name if present.
func GroupFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, groupKey)
}

// WithTarget annotates context with the science target being calibrated.
func WithTarget(ctx context.Context, target string) context.Context {
	return withString(ctx, targetKey, target)
}

// TargetFromContext returns the science target if present.
func TargetFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, targetKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
