package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Context key types
type sessionCtxKey struct{}
type bookCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		fields = append(fields, zap.String("session.id", sessionID))
	}
	if bookID := BookIDFromContext(ctx); bookID != "" {
		fields = append(fields, zap.String("book.id", bookID))
	}

	return fields
}

// WithSessionID adds an analysis session ID to context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, sessionID)
}

// SessionIDFromContext extracts the session ID from context.
func SessionIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sessionCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithBookID adds the book under analysis to context.
func WithBookID(ctx context.Context, bookID string) context.Context {
	return context.WithValue(ctx, bookCtxKey{}, bookID)
}

// BookIDFromContext extracts the book ID from context.
func BookIDFromContext(ctx context.Context) string {
	if b, ok := ctx.Value(bookCtxKey{}).(string); ok {
		return b
	}
	return ""
}
