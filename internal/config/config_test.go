package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"port": 9090,
		"review_strategy": "bundled",
		"readiness_threshold": 0.75,
		"auto_approve_supporting": true
	}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "bundled", cfg.ReviewStrategy)
	assert.Equal(t, 0.75, cfg.ReadinessThreshold)
	assert.True(t, cfg.AutoApproveSupporting)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig("")
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestFromEnvOverridesFile(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("REVIEW_STRATEGY", "bundled")
	t.Setenv("READINESS_THRESHOLD", "0.5")
	t.Setenv("AUTO_APPROVE_SUPPORTING", "true")

	cfg := Config{Port: 8080, ReviewStrategy: "guided", ReadinessThreshold: 0.6}
	cfg.FromEnv()
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "bundled", cfg.ReviewStrategy)
	assert.Equal(t, 0.5, cfg.ReadinessThreshold)
	assert.True(t, cfg.AutoApproveSupporting)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())

	cfg.ReadinessThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.ReviewStrategy = "chaotic"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := Config{Port: 9000}
	merged := cfg.MergeWithDefaults(Defaults())
	assert.Equal(t, 9000, merged.Port)
	assert.Equal(t, 0.6, merged.ReadinessThreshold)
	assert.Equal(t, "guided", merged.ReviewStrategy)
}

func TestNewJWTConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := NewJWTConfig()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_EXPIRATION_HOURS", "")
	cfg, err := NewJWTConfig()
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.ExpirationHours)

	t.Setenv("JWT_EXPIRATION_HOURS", "0")
	_, err = NewJWTConfig()
	assert.Error(t, err)

	t.Setenv("JWT_EXPIRATION_HOURS", "abc")
	_, err = NewJWTConfig()
	assert.Error(t, err)
}
