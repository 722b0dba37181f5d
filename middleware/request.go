package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/internal/observability"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// maximum accepted length of a client supplied request ID
const maxRequestIDLength = 128

// RequestID wraps chi's RequestID: over-long client IDs are discarded before
// chi sees them, and the resulting ID is echoed on the response.
func RequestID(next http.Handler) http.Handler {
	echo := chimiddleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RequestIDHeader, chimiddleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.Header.Get(RequestIDHeader)) > maxRequestIDLength {
			r.Header.Del(RequestIDHeader)
		}
		echo.ServeHTTP(w, r)
	})
}

// RequestLogger attaches a request scoped logger to the context, then logs
// and measures every request once it completes. Must run after RequestID.
func RequestLogger(logger *zap.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With(zap.String("request_id", GetRequestIDFromContext(r.Context())))
			ctx := observability.ContextWithLogger(r.Context(), reqLogger)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			elapsed := time.Since(start)
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			metrics.RecordHTTPRequest(r.Method, route, status, elapsed)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
			}
			if status >= http.StatusInternalServerError {
				reqLogger.Warn("request completed", fields...)
				return
			}
			reqLogger.Info("request completed", fields...)
		})
	}
}
