package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	// Trace correlation from OpenTelemetry.
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}
	if entityID := EntityIDFromContext(ctx); entityID != "" {
		fields = append(fields, zap.String("entity.id", entityID))
	}
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		fields = append(fields, zap.String("correlation.id", correlationID))
	}

	return fields
}

type requestCtxKey struct{}
type entityCtxKey struct{}
type correlationCtxKey struct{}
type loggerCtxKey struct{}

// WithRequestID adds the HTTP or CLI request id to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts the request id from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithEntityID adds the work item, task, or idea id an operation is
// acting on.
func WithEntityID(ctx context.Context, entityID string) context.Context {
	if entityID == "" {
		return ctx
	}
	return context.WithValue(ctx, entityCtxKey{}, entityID)
}

// EntityIDFromContext extracts the entity id from context.
func EntityIDFromContext(ctx context.Context) string {
	if e, ok := ctx.Value(entityCtxKey{}).(string); ok {
		return e
	}
	return ""
}

// WithCorrelationID adds the advancement correlation id shared by every
// executor invocation of one request.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationCtxKey{}, correlationID)
}

// CorrelationIDFromContext extracts the correlation id from context.
func CorrelationIDFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(correlationCtxKey{}).(string); ok {
		return c
	}
	return ""
}

// WithLogger stores the logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger from context, or a nop logger when
// absent.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
