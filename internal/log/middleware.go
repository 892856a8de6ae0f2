package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type loggerKey struct{}

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the request logger, or a default one tagged
// "unknown" outside a request.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	return bind(slog.Default(), "unknown")
}

// Middleware puts logger into every request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// RequestIDMiddleware tags the request logger with the id returned by
// extractRequestID. It must run after Middleware.
func RequestIDMiddleware(extractRequestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := FromContext(r.Context()).With(FieldRequestID, extractRequestID(r))
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// AccessLogger writes the HTTP layer's access and security records through
// the request logger, keeping its component and request id.
type AccessLogger struct {
	logger *Logger
}

func NewAccessLogger(logger *Logger) *AccessLogger {
	return &AccessLogger{logger: logger}
}

func (a *AccessLogger) Started(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithClientIP(clientIP)

	a.logger.Logger.DebugContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// Completed logs at Info, Warn for 4xx and Error for 5xx. route is the
// matched pattern, empty when nothing matched.
func (a *AccessLogger) Completed(ctx context.Context, r *http.Request, route string, statusCode int, d time.Duration, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "").
		WithHTTPResponse(statusCode, d.Milliseconds(), statusCode < 400).
		WithClientIP(clientIP)
	if route != "" {
		fields[FieldRoute] = route
	}

	a.logger.Logger.Log(ctx, levelForStatus(statusCode), "HTTP request completed", fields.ToSlice()...)
}

// Failed records why a handler answered with an error status.
func (a *AccessLogger) Failed(ctx context.Context, operation string, err error, statusCode int) {
	fields := NewFields().
		WithError(err).
		WithOperation(operation)
	fields[FieldStatusCode] = statusCode

	a.logger.Logger.Log(ctx, levelForStatus(statusCode), "Request failed", fields.ToSlice()...)
}

func (a *AccessLogger) Suspicious(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithClientIP(clientIP)
	fields[FieldEvent] = "suspicious"

	a.logger.Logger.WarnContext(ctx, "Suspicious request", fields.ToSlice()...)
}

func (a *AccessLogger) RateLimited(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, "", "").
		WithClientIP(clientIP)
	fields[FieldEvent] = "rate_limited"

	a.logger.Logger.WarnContext(ctx, "Rate limit exceeded", fields.ToSlice()...)
}

func levelForStatus(code int) slog.Level {
	switch {
	case code >= 500:
		return slog.LevelError
	case code >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
