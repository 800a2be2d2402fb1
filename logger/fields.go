package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID   = "run_id"
	FieldProject = "project"
	FieldPhase   = "phase"

	// Components
	FieldComponent = "component"

	// Pipeline outcomes
	FieldStatus      = "status"
	FieldDisposition = "disposition"
	FieldRevision    = "revision"
	FieldCandidate   = "candidate"
	FieldAttempt     = "attempt"
	FieldExitCode    = "exit_code"
	FieldTimedOut    = "timed_out"

	// Commands and tools
	FieldCommand = "command"
	FieldDir     = "dir"
	FieldTool    = "tool"
	FieldURL     = "url"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldTimeout    = "timeout"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount   = "count"
	FieldWorkers = "workers"

	// Files and paths
	FieldPath   = "path"
	FieldLayout = "layout"
)

// Context keys for propagating logging context
type contextKey string

const (
	runIDKey   contextKey = "logger_run_id"
	projectKey contextKey = "logger_project"
)

// WithRunID adds a batch run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithProject adds a project name to the context for logging
func WithProject(ctx context.Context, project string) context.Context {
	return context.WithValue(ctx, projectKey, project)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if project, ok := ctx.Value(projectKey).(string); ok && project != "" {
		fields = append(fields, FieldProject, project)
	}

	return fields
}

// FromContext returns base with the fields carried by ctx attached.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	executor := phase.NewExecutor(store, policy, logger.ComponentLogger("executor"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// OrNop returns l, or a no-op logger when l is nil. Constructors use it so
// tests can pass nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}
