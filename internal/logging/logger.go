package logging

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"
)

var (
	// Logger is the global structured logger instance
	Logger *slog.Logger
)

// Init initializes the global structured logger
func Init(level slog.Level) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Format time as ISO8601
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel converts a string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "info", "INFO":
		return slog.LevelInfo
	case "warn", "WARN":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedactURL removes secrets from URL logs while retaining debugging value.
// It strips userinfo and masks query parameter values.
func RedactURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed == nil {
		return rawURL
	}

	parsed.User = nil

	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			query.Set(key, "***")
		}
		parsed.RawQuery = query.Encode()
	}

	return parsed.String()
}

// Helper functions for common logging patterns

// LogAnalyze logs a metadata analysis attempt
func LogAnalyze(url string, formats int, err error) {
	if Logger == nil {
		return
	}
	if err != nil {
		Logger.Error("analyze failed",
			"event", "analyze_error",
			"url", RedactURL(url),
			"error", err)
		return
	}
	Logger.Info("analyze complete",
		"event", "analyze",
		"url", RedactURL(url),
		"formats", formats)
}

// LogTaskStart logs the launch of an async download task
func LogTaskStart(taskID, url, format string) {
	if Logger == nil {
		return
	}
	Logger.Info("download task started",
		"event", "task_start",
		"task_id", taskID,
		"url", RedactURL(url),
		"format", format)
}

// LogTaskComplete logs successful completion of an async download task
func LogTaskComplete(taskID, filename string) {
	if Logger == nil {
		return
	}
	Logger.Info("download task complete",
		"event", "task_complete",
		"task_id", taskID,
		"filename", filename)
}

// LogTaskError logs a terminal async task failure
func LogTaskError(taskID string, err error) {
	if Logger == nil {
		return
	}
	Logger.Error("download task failed",
		"event", "task_error",
		"task_id", taskID,
		"error", err)
}

// LogStreamStart logs the start of a direct streaming delivery
func LogStreamStart(url, format, filename string) {
	if Logger == nil {
		return
	}
	Logger.Info("stream started",
		"event", "stream_start",
		"url", RedactURL(url),
		"format", format,
		"filename", filename)
}

// LogStreamError logs a mid-transport streaming fault. By the time this
// fires the response status is already committed, so the error is log-only.
func LogStreamError(url string, err error) {
	if Logger == nil {
		return
	}
	Logger.Error("stream failed mid-transport",
		"event", "stream_error",
		"url", RedactURL(url),
		"error", err)
}

// LogProgressScanError logs yt-dlp progress scanning errors
func LogProgressScanError(taskID string, err error) {
	if Logger == nil {
		return
	}
	Logger.Warn("progress scan error",
		"event", "progress_scan_error",
		"task_id", taskID,
		"error", err)
}

// LogDBOperation logs history store operations
func LogDBOperation(operation, taskID string, err error) {
	if Logger == nil {
		return
	}
	if err != nil {
		Logger.Error("history store operation failed",
			"event", "db_operation_error",
			"operation", operation,
			"task_id", taskID,
			"error", err)
		return
	}
	Logger.Debug("history store operation",
		"event", "db_operation",
		"operation", operation,
		"task_id", taskID)
}

// LogHTTPRequest logs HTTP request handling
func LogHTTPRequest(method, path, remoteAddr string, duration time.Duration) {
	if Logger == nil {
		return
	}
	Logger.Info("http request",
		"event", "http_request",
		"method", method,
		"path", path,
		"remote_addr", remoteAddr,
		"duration_ms", duration.Milliseconds())
}

// LogPanic logs a recovered handler panic
func LogPanic(path string, v any) {
	if Logger == nil {
		return
	}
	Logger.Error("handler panic",
		"event", "panic",
		"path", path,
		"value", fmt.Sprintf("%v", v))
}

// LogServerStart logs server startup
func LogServerStart(addr string, config map[string]any) {
	if Logger == nil {
		return
	}
	attrs := []any{
		"event", "server_start",
		"addr", addr,
	}
	for k, v := range config {
		attrs = append(attrs, k, v)
	}
	Logger.Info("server started", attrs...)
}

// LogServerShutdown logs server shutdown events
func LogServerShutdown(msg string, err error) {
	if Logger == nil {
		return
	}
	if err != nil {
		Logger.Error(msg,
			"event", "server_shutdown_error",
			"error", err)
		return
	}
	Logger.Info(msg,
		"event", "server_shutdown")
}
