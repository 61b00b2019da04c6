package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.StatsPollInterval)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.AutoAdvance)
	assert.Equal(t, 640, cfg.CaptureMaxWidth)
	assert.Equal(t, "file", cfg.TokenStore)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BASE_URL", "https://yoklama.example.edu")
	t.Setenv("POLL_INTERVAL_MS", "2500")
	t.Setenv("REQUEST_TIMEOUT_MS", "not-a-number")
	t.Setenv("CAPTURE_MAX_WIDTH", "320")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "https://yoklama.example.edu", cfg.BaseURL)
	assert.Equal(t, 2500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 320, cfg.CaptureMaxWidth)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TOKEN_STORE=memory\nSTATS_POLL_INTERVAL_MS=20000\n"), 0o600))
	t.Setenv("TOKEN_STORE", "")
	os.Unsetenv("TOKEN_STORE")
	t.Setenv("STATS_POLL_INTERVAL_MS", "3000")

	cfg := Load(path)

	assert.Equal(t, "memory", cfg.TokenStore)
	// the environment wins over the file
	assert.Equal(t, 3*time.Second, cfg.StatsPollInterval)
}

func TestValidate(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	cfg.PollInterval = 0
	assert.EqualError(t, cfg.Validate(), "POLL_INTERVAL_MS must be positive")
}

func TestBindFlags(t *testing.T) {
	t.Setenv("BASE_URL", "http://from-env:5001")
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(flagSet)
	require.NoError(t, flagSet.Parse([]string{"--poll-interval=2s", "--token-store", "memory"}))

	assert.Equal(t, "http://from-env:5001", cfg.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, "memory", cfg.TokenStore)
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := App{LogLevel: "warn"}
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
}
