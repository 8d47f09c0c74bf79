package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	RoleKey      contextKey = "role"
	TicketIDKey  contextKey = "ticket_id"
)

// contextKeys lists the request-scoped values copied onto every record, in
// output order.
var contextKeys = []contextKey{RequestIDKey, UserIDKey, RoleKey, TicketIDKey}

// Config holds logger configuration
type Config struct {
	Level       string // debug, info, warn, error
	Format      string // json, text
	Output      io.Writer
	AddSource   bool
	ServiceName string
	Environment string
}

// NewLogger builds the service logger. Records carry the service name, the
// environment and whatever request-scoped values the context holds.
func NewLogger(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
			level = slog.LevelInfo
		}
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(a.Key, a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var inner slog.Handler
	if cfg.Format == "text" {
		inner = slog.NewTextHandler(output, opts)
	} else {
		inner = slog.NewJSONHandler(output, opts)
	}

	return slog.New(&contextHandler{
		Handler: inner.WithAttrs([]slog.Attr{
			slog.String("service", cfg.ServiceName),
			slog.String("environment", cfg.Environment),
		}),
	})
}

// contextHandler copies request-scoped context values onto each record.
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(contextAttrs(ctx)...)
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds a user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithRole adds the caller's role to the context
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

// WithTicketID tags everything logged for the request with the ticket it targets.
func WithTicketID(ctx context.Context, ticketID string) context.Context {
	return context.WithValue(ctx, TicketIDKey, ticketID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

// LoggerFromContext binds the context's request-scoped values to logger, for
// code that logs without passing the context along.
func LoggerFromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := contextAttrs(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

// LogPanic logs a recovered panic with the current goroutine's stack.
func LogPanic(logger *slog.Logger, panicValue any) {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	logger.Error("panic recovered", "panic", panicValue, "stack_trace", string(buf[:n]))
}

// RequestRecord describes one served HTTP request.
type RequestRecord struct {
	Method       string
	Path         string
	StatusCode   int
	Duration     time.Duration
	BytesWritten int64
	ClientIP     string
	UserAgent    string
}

// HTTPRequestLogger writes one access log line per request. Server errors log
// at error level and client errors at warn.
type HTTPRequestLogger struct {
	Logger *slog.Logger
}

// LogRequest logs rec with the request-scoped values of ctx.
func (l *HTTPRequestLogger) LogRequest(ctx context.Context, rec RequestRecord) {
	level := slog.LevelInfo
	switch {
	case rec.StatusCode >= 500:
		level = slog.LevelError
	case rec.StatusCode >= 400:
		level = slog.LevelWarn
	}

	l.Logger.Log(ctx, level, "http request",
		"method", rec.Method,
		"path", rec.Path,
		"status_code", rec.StatusCode,
		"duration_ms", rec.Duration.Milliseconds(),
		"bytes_written", rec.BytesWritten,
		"client_ip", rec.ClientIP,
		"user_agent", rec.UserAgent,
	)
}
