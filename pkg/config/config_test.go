package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("KAI_CONFIG_FILE", "")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "kai-encoder", cfg.EncoderBin)
	assert.NotEmpty(t, cfg.CacheDir)
}

func TestNew_WithEnvVar(t *testing.T) {
	t.Setenv("KAI_ENCODER_BIN", "/usr/local/bin/kai-encoder")
	t.Setenv("KAI_CACHE_DIR", "/tmp/kai-cache")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/kai-encoder", cfg.EncoderBin)
	assert.Equal(t, "/tmp/kai-cache", cfg.CacheDir)
}

func TestNew_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "kai.yaml")

	configContent := `
cache_dir: /data/kai-cache
encoder_bin: /opt/kai/bin/kai-encoder
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	t.Setenv("KAI_CONFIG_FILE", configPath)

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "/data/kai-cache", cfg.CacheDir)
	assert.Equal(t, "/opt/kai/bin/kai-encoder", cfg.EncoderBin)
}

func TestNew_EnvVarOverridesConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "kai.yaml")

	configContent := `
cache_dir: /data/from-file
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	t.Setenv("KAI_CONFIG_FILE", configPath)
	t.Setenv("KAI_CACHE_DIR", "/data/from-env")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "/data/from-env", cfg.CacheDir)
}

func TestNewForTest(t *testing.T) {
	cfg := NewForTest("/tmp/kai-test-cache")
	assert.Equal(t, "/tmp/kai-test-cache", cfg.CacheDir)
	assert.Equal(t, "kai-encoder", cfg.EncoderBin)
}

func TestResolveEncoderBin_Unresolved(t *testing.T) {
	cfg := &Config{EncoderBin: "definitely-not-a-real-binary-xyz"}
	assert.Equal(t, "definitely-not-a-real-binary-xyz", ResolveEncoderBin(cfg))
}
