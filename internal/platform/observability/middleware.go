package observability

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/loomhouse/api/internal/platform/auth"
	"github.com/loomhouse/api/internal/platform/httpx"
	"github.com/loomhouse/api/internal/platform/requestctx"
)

// InjectLogger installs logger as the base request logger.
func InjectLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLogger logs one line per request with its status, latency and action, and marks the
// server span failed on 5xx.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := requestctx.Logger(ctx).With(
			zap.String("request_id", middleware.GetReqID(ctx)),
			zap.String("method", clip(r.Method, 10)),
			zap.String("trace_id", requestctx.TraceID(ctx)),
		)
		r = r.WithContext(requestctx.WithLogger(ctx, logger))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			span := trace.SpanFromContext(r.Context())
			span.SetAttributes(semconv.HTTPResponseStatusCode(status), semconv.HTTPRoute(SanitizeRoute(route)))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}

			fields := []zap.Field{
				zap.String("route", SanitizeRoute(route)),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.Int("bytes", ww.BytesWritten()),
			}
			if action := ww.Header().Get(httpx.ActionHeader); action != "" {
				fields = append(fields, zap.String("action", SanitizeAction(action)))
			}
			if identity, ok := auth.IdentityFromContext(r.Context()); ok {
				fields = append(fields, zap.String("user_id", SanitizeUserID(identity.UID)))
			}
			log := requestctx.Logger(r.Context())
			switch {
			case status >= http.StatusInternalServerError:
				log.Error("request completed", fields...)
			case status >= http.StatusBadRequest:
				log.Warn("request completed", fields...)
			default:
				log.Info("request completed", fields...)
			}
		}()
		next.ServeHTTP(ww, r)
	})
}

// Recoverer turns a panic into a 500 envelope and logs the stack.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			requestctx.Logger(r.Context()).Error("panic recovered",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			httpx.WriteError(r.Context(), w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
		}()
		next.ServeHTTP(w, r)
	})
}
