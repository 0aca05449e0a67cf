package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log := Logger("test")
	log.Info("test message", "key", "value")

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "key=value")
	assert.Contains(t, output, "subsystem=test")
}

func TestSetOutput_ExistingLogger(t *testing.T) {
	log := Logger("test2")

	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log.Info("after switch", "key", "value")
	assert.Contains(t, buf.String(), "after switch")
}

func TestLogger_Cached(t *testing.T) {
	assert.Same(t, Logger("cached"), Logger("cached"))
}

func TestSetLevel_AppliesToDerivedLoggers(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	derived := Logger("levels").With("rank", 3)
	SetLevel("levels", slog.LevelError)
	derived.Info("hidden")
	assert.Empty(t, buf.String())

	SetLevel("levels", slog.LevelDebug)
	derived.Debug("shown")
	assert.Contains(t, buf.String(), "rank=3")
}

func TestParseLevelConfig(t *testing.T) {
	cfg := &Config{DefaultLevel: slog.LevelInfo, SubsystemLevels: map[string]slog.Level{}}
	parseLevelConfig(cfg, "comm=debug, transport/tcp=warn ,error,bogus=nope")

	assert.Equal(t, slog.LevelError, cfg.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("comm"))
	assert.Equal(t, slog.LevelWarn, cfg.LevelForSubsystem("transport/tcp"))
	assert.Equal(t, slog.LevelError, cfg.LevelForSubsystem("registry"))
	_, ok := cfg.SubsystemLevels["bogus"]
	assert.False(t, ok)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("COMMSTACK_LOG_LEVEL", "registry=debug,warn")
	t.Setenv("COMMSTACK_LOG_FORMAT", "json")
	ResetConfig()
	defer ResetConfig()

	cfg := ConfigFromEnv()
	require.NotNil(t, cfg)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.Equal(t, slog.LevelWarn, cfg.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("registry"))
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}
