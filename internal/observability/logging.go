// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// LogSettings selects level and output format of the global logger.
type LogSettings struct {
	Level  string
	Format string
	Output io.Writer
}

// Configure replaces the global logger according to settings.
func Configure(s LogSettings) *Logger {
	var level slog.Level
	switch strings.ToLower(s.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := s.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(s.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	GlobalLogger = &Logger{Logger: slog.New(handler)}
	return GlobalLogger
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys for logging
const (
	CorrelationID LogContextKey = "correlation_id"
)

// LoggingConfig defines which types of automated logging are enabled.
type LoggingConfig struct {
	EnableCorrelationID bool
	EnableAPILogging    bool
	EnableWSLogging     bool
	EnableSyncLogging   bool
}

var (
	// Config holds the current logging configuration.
	Config = LoggingConfig{
		EnableCorrelationID: true,
		EnableAPILogging:    true,
		EnableWSLogging:     true,
		EnableSyncLogging:   true,
	}
)

// GenerateCorrelationID creates a new unique correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// EnsureCorrelationID returns ctx carrying a correlation ID, generating one if absent.
func EnsureCorrelationID(ctx context.Context) context.Context {
	if !Config.EnableCorrelationID || ExtractCorrelationID(ctx) != "" {
		return ctx
	}
	return WithCorrelationID(ctx, GenerateCorrelationID())
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(CorrelationID).(string); ok {
		return id
	}
	return ""
}

// APILogger provides structured logging for REST calls to one service.
type APILogger struct {
	service string
}

// NewAPILogger creates a new APILogger for the given service.
func NewAPILogger(service string) *APILogger {
	return &APILogger{service: service}
}

// LogRequest logs a completed API call.
func (l *APILogger) LogRequest(ctx context.Context, method, path string, status int, durationMS int64) {
	if !Config.EnableAPILogging {
		return
	}
	GlobalLogger.DebugContext(ctx, "api request",
		slog.String("service", l.service),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Int64("duration_ms", durationMS),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}

// LogError logs a failed API call.
func (l *APILogger) LogError(ctx context.Context, method, path string, err error) {
	if !Config.EnableAPILogging {
		return
	}
	GlobalLogger.WarnContext(ctx, "api error",
		slog.String("service", l.service),
		slog.String("method", method),
		slog.String("path", path),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}

// WSLogger provides structured logging for the realtime channel.
type WSLogger struct {
	channel string
}

// NewWSLogger creates a new WSLogger for the given channel name.
func NewWSLogger(channel string) *WSLogger {
	return &WSLogger{channel: channel}
}

// LogConnect logs a WebSocket connection event.
func (l *WSLogger) LogConnect(ctx context.Context, url string, attempt int) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.InfoContext(ctx, "websocket connected",
		slog.String("channel", l.channel),
		slog.String("url", url),
		slog.Int("attempt", attempt),
	)
}

// LogDisconnect logs a WebSocket disconnection event.
func (l *WSLogger) LogDisconnect(ctx context.Context, reason string) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.InfoContext(ctx, "websocket disconnected",
		slog.String("channel", l.channel),
		slog.String("reason", reason),
	)
}

// LogError logs a WebSocket error event.
func (l *WSLogger) LogError(ctx context.Context, err error, eventType string) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.ErrorContext(ctx, "websocket error",
		slog.String("channel", l.channel),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogMessage logs an incoming WebSocket frame.
func (l *WSLogger) LogMessage(ctx context.Context, eventType string) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.DebugContext(ctx, "websocket message",
		slog.String("channel", l.channel),
		slog.String("event_type", eventType),
	)
}

// LogLifecycle logs a state transition of the channel.
func (l *WSLogger) LogLifecycle(ctx context.Context, event string, fields map[string]interface{}) {
	if !Config.EnableWSLogging {
		return
	}
	attrs := []any{
		slog.String("channel", l.channel),
		slog.String("event", event),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.InfoContext(ctx, "websocket lifecycle", attrs...)
}

// SyncLogger logs merge, rollback and polling decisions of an engine.
type SyncLogger struct {
	engine string
}

// NewSyncLogger creates a SyncLogger for the named engine.
func NewSyncLogger(engine string) *SyncLogger {
	return &SyncLogger{engine: engine}
}

// LogEvent logs a notable engine event at debug level.
func (l *SyncLogger) LogEvent(ctx context.Context, event string, fields map[string]interface{}) {
	if !Config.EnableSyncLogging {
		return
	}
	attrs := []any{
		slog.String("engine", l.engine),
		slog.String("event", event),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.DebugContext(ctx, "sync event", attrs...)
}

// LogRollback logs an optimistic mutation that was reverted.
func (l *SyncLogger) LogRollback(ctx context.Context, operation string, err error) {
	if !Config.EnableSyncLogging {
		return
	}
	GlobalLogger.WarnContext(ctx, "optimistic update rolled back",
		slog.String("engine", l.engine),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}

// LogError logs an engine failure that was handled without surfacing.
func (l *SyncLogger) LogError(ctx context.Context, operation string, err error) {
	if !Config.EnableSyncLogging {
		return
	}
	GlobalLogger.ErrorContext(ctx, "sync error",
		slog.String("engine", l.engine),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}
