package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/khanglvm/flowlearn/internal/config"
)

func TestNewWithSink_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithSink(config.LoggingConfig{Level: "info", Format: "json"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("pattern created", zap.String("pattern_id", "p1"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "pattern created", entry["msg"])
	assert.Equal(t, "p1", entry["pattern_id"])
	assert.Contains(t, entry, "ts")
}

func TestNewWithSink_InvalidLevel(t *testing.T) {
	_, err := NewWithSink(config.LoggingConfig{Level: "loud", Format: "json"}, zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestContextFields(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))

	ctx := WithSession(context.Background(), "s1", "alice")
	assert.Equal(t, "s1", SessionIDFromContext(ctx))
	assert.Equal(t, "alice", UserIDFromContext(ctx))

	core, logs := observer.New(zapcore.InfoLevel)
	For(ctx, zap.New(core)).Info("tracked")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "s1", fields["session_id"])
	assert.Equal(t, "alice", fields["user_id"])
}
