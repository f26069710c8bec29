// Package logging provides component-scoped structured loggers and request
// context helpers built on zerolog.
package logging

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	// UserIDKey carries the authenticated user id through a request context.
	UserIDKey contextKey = "user_id"
	// RoleKey carries the authenticated role through a request context.
	RoleKey contextKey = "role"
	// RequestIDKey carries a per-request correlation id.
	RequestIDKey contextKey = "request_id"
)

// Logger wraps a zerolog.Logger scoped to one component.
type Logger struct {
	zl zerolog.Logger
}

// New returns a logger for the named component. Level is taken from LOG_LEVEL
// (debug, info, warn, error), defaulting to info.
func New(component string) *Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zl := zerolog.New(os.Stderr).Level(level).With().
		Timestamp().
		Str("component", component).
		Logger()
	return &Logger{zl: zl}
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// WithContext returns a logger enriched with request-scoped fields present in
// ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	zl := l.zl
	if v, ok := ctx.Value(UserIDKey).(string); ok && v != "" {
		zl = zl.With().Str("user_id", v).Logger()
	}
	if v, ok := ctx.Value(RoleKey).(string); ok && v != "" {
		zl = zl.With().Str("role", v).Logger()
	}
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		zl = zl.With().Str("request_id", v).Logger()
	}
	return &Logger{zl: zl}
}

// WithField returns a logger with one extra field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().AnErr("error", err).Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

// GetUserID extracts the authenticated user id from ctx.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

// GetRole extracts the authenticated role from ctx.
func GetRole(ctx context.Context) string {
	if v, ok := ctx.Value(RoleKey).(string); ok {
		return v
	}
	return ""
}

// WithUser returns ctx annotated with the authenticated principal.
func WithUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, RoleKey, role)
}

// WithRequestID returns ctx annotated with a correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
