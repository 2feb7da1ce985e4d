// Package requestctx carries request-scoped values shared by middleware, handlers and services.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	traceKey
	actionKey
)

var noopLogger = zap.NewNop()

// WithLogger stores the request logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the request logger or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// HasLogger reports whether a request logger was installed.
func HasLogger(ctx context.Context) bool {
	return Logger(ctx) != noopLogger
}

// WithTraceID records the active trace identifier.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey, traceID)
}

// TraceID returns the active trace identifier, if any.
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceKey).(string)
	return id
}

// WithAction records the dispatched action name (submitOrder, getOrders, ...).
func WithAction(ctx context.Context, action string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actionKey, action)
}

// Action returns the dispatched action name.
func Action(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	action, _ := ctx.Value(actionKey).(string)
	return action
}
