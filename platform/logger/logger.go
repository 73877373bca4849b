// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// WebhookReceived logs an authenticated inbound webhook delivery
func (l *Logger) WebhookReceived(source, eventType, webhookID, clientIP string) {
	l.Info("webhook_received",
		slog.String("source", source),
		slog.String("event", eventType),
		slog.String("webhook_id", webhookID),
		slog.String("client_ip", clientIP),
	)
}

// WebhookRejected logs a delivery that failed authentication
func (l *Logger) WebhookRejected(source, reason, clientIP string) {
	l.Warn("webhook_rejected",
		slog.String("source", source),
		slog.String("reason", reason),
		slog.String("client_ip", clientIP),
	)
}

// WebhookProcessed logs the outcome of a processed delivery
func (l *Logger) WebhookProcessed(source, eventType, status string, elapsedMs int64) {
	l.Info("webhook_processed",
		slog.String("source", source),
		slog.String("event", eventType),
		slog.String("status", status),
		slog.Int64("elapsed_ms", elapsedMs),
	)
}

// CRMError logs a failed CRM REST call
func (l *Logger) CRMError(method string, status int, code string) {
	l.Error("crm_call_failed",
		slog.String("method", method),
		slog.Int("status", status),
		slog.String("code", code),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
