package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"GEMINI_API_KEY", "SENTINEL_MODEL", "GEMINI_MODEL",
		"SENTINEL_FALLBACK_MODEL", "GEMINI_FALLBACK_MODEL",
		"SENTINEL_MAX_RETRIES", "SENTINEL_BASE_DELAY_SECONDS",
		"SENTINEL_PACE_SECONDS", "PORT", "SENTINEL_EXTENSIONS",
		"ARTIFACT_S3_ENDPOINT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPrimaryModel, cfg.PrimaryModel)
	assert.Equal(t, DefaultFallbackModel, cfg.FallbackModel)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.BaseDelay)
	assert.Equal(t, time.Second, cfg.Pace)
	assert.Equal(t, ":8089", cfg.Port)
	assert.Equal(t, []string{".py", ".js", ".go"}, cfg.Extensions)
	assert.False(t, cfg.Artifact.Enabled)
	assert.Error(t, cfg.ValidateForInference())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("SENTINEL_MODEL", "gemini-3-pro-preview")
	t.Setenv("SENTINEL_MAX_RETRIES", "5")
	t.Setenv("SENTINEL_BASE_DELAY_SECONDS", "0.5")
	t.Setenv("PORT", ":9000")
	t.Setenv("SENTINEL_EXTENSIONS", ".py, .rb")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "localhost:9000")
	t.Setenv("ARTIFACT_S3_USE_SSL", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini-3-pro-preview", cfg.PrimaryModel)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, ":9000", cfg.Port)
	assert.Equal(t, []string{".py", ".rb"}, cfg.Extensions)
	assert.True(t, cfg.Artifact.Enabled)
	assert.False(t, cfg.Artifact.UseSSL)
	assert.NoError(t, cfg.ValidateForInference())
}

func TestNormalizePort(t *testing.T) {
	assert.Equal(t, ":8089", normalizePort("8089"))
	assert.Equal(t, ":8089", normalizePort(":8089"))
}
