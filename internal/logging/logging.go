// Package logging builds the zap logger and carries request correlation
// through context.
package logging

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/khanglvm/flowlearn/internal/config"
)

// New creates a logger from cfg writing to stderr. Stdout is reserved for
// the stdio tool server.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	return NewWithSink(cfg, zapcore.Lock(os.Stderr))
}

// NewWithSink creates a logger writing to sink.
func NewWithSink(cfg config.LoggingConfig, sink zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), sink, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// newEncoder creates JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

type sessionCtxKey struct{}
type userCtxKey struct{}

// WithSession returns ctx carrying the session and user ids.
func WithSession(ctx context.Context, sessionID, userID string) context.Context {
	if sessionID != "" {
		ctx = context.WithValue(ctx, sessionCtxKey{}, sessionID)
	}
	if userID != "" {
		ctx = context.WithValue(ctx, userCtxKey{}, userID)
	}
	return ctx
}

// SessionIDFromContext returns the session id, or "".
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionCtxKey{}).(string)
	return id
}

// UserIDFromContext returns the user id, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userCtxKey{}).(string)
	return id
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if id := SessionIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("session_id", id))
	}
	if id := UserIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("user_id", id))
	}
	return fields
}

// For returns logger annotated with the correlation fields of ctx.
func For(ctx context.Context, logger *zap.Logger) *zap.Logger {
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
