package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment so that task and client
// identifiers show up on every log line inside the engine without each call
// site threading them through.
type LogFields struct {
	TaskID    *int64  // Queued task ID
	TaskType  *string // Task type (e.g. "session-note-analysis")
	ClientID  *int64  // Therapy client the task concerns
	Provider  *string // AI provider currently in use
	Attempt   *int    // Task attempt number
	Component string  // Component name (e.g. "insight.engine.processor")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, updated LogFields) LogFields {
	result := existing

	if updated.TaskID != nil {
		result.TaskID = updated.TaskID
	}
	if updated.TaskType != nil {
		result.TaskType = updated.TaskType
	}
	if updated.ClientID != nil {
		result.ClientID = updated.ClientID
	}
	if updated.Provider != nil {
		result.Provider = updated.Provider
	}
	if updated.Attempt != nil {
		result.Attempt = updated.Attempt
	}
	if updated.Component != "" {
		result.Component = updated.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if
// truncated. Useful for logging potentially long strings like prompts.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
