package log

import (
	"context"
	"log/slog"
	"net/http"

	"crowdfund/internal/core"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// Middleware creates HTTP middleware that adds a logger to the request context
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := NewContext(r.Context(), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewContext returns a copy of ctx carrying logger
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// RequestIDMiddleware adds request ID to logger context
func RequestIDMiddleware(extractRequestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := extractRequestID(r)
			logger := FromContext(r.Context()).With(FieldRequestID, requestID)
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// StructuredLogger provides ledger-specific structured logging helpers
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogCommitted logs a successful state-changing ledger operation
func (sl *StructuredLogger) LogCommitted(ctx context.Context, op string, fields LogFields) {
	fields = fields.WithOperation(op)
	sl.logger.InfoContext(ctx, "Ledger operation committed", fields.ToSlice()...)
}

// LogRejected logs an operation refused by a precondition. Transfer
// failures are logged at Error since they abort after bookkeeping started.
func (sl *StructuredLogger) LogRejected(ctx context.Context, op string, err error, fields LogFields) {
	fields = fields.WithOperation(op).WithError(err)
	level := slog.LevelWarn
	if fields[FieldErrorKind] == core.KindTransferFailed || fields[FieldErrorKind] == core.KindUnknown {
		level = slog.LevelError
	}
	sl.logger.Logger.Log(ctx, level, "Ledger operation rejected",
		append([]any{FieldComponent, sl.logger.component}, fields.ToSlice()...)...)
}
