package services

import "context"

type contextKey string

const (
	recordIDKey  contextKey = "record_id"
	taskKindKey  contextKey = "task_kind"
	requestIDKey contextKey = "request_id"
)

// WithRecordID annotates context with the record identifier.
func WithRecordID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, recordIDKey, id)
}

// RecordIDFromContext extracts the record identifier if present.
func RecordIDFromContext(ctx context.Context) (int64, bool) {
	switch val := ctx.Value(recordIDKey).(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithTaskKind annotates context with the scheduler task kind.
func WithTaskKind(ctx context.Context, kind string) context.Context {
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKindKey, kind)
}

// TaskKindFromContext returns the task kind if present.
func TaskKindFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(taskKindKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
