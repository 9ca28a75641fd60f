// Package config loads this engine's small runtime configuration surface:
// where to stage scratch files during a mux, and which external encoder
// binary to invoke (§6).
package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// Config holds the engine's runtime configuration. Configure via a YAML
// file (KAI_CONFIG_FILE, default none) or environment variables prefixed
// KAI_.
type Config struct {
	// CacheDir is the root under which pkg/muxer stages per-run scratch
	// directories.
	CacheDir string `koanf:"cache_dir" json:"cache_dir"`

	// EncoderBin is the external encoder binary pkg/muxer invokes.
	EncoderBin string `koanf:"encoder_bin" json:"encoder_bin"`
}

// defaults returns a Config with default values; CacheDir falls back to
// os.TempDir()/kai if the user cache directory can't be determined.
func defaults() *Config {
	cacheDir := filepath.Join(os.TempDir(), "kai")
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "kai")
	}
	return &Config{
		CacheDir:   cacheDir,
		EncoderBin: "kai-encoder",
	}
}

// New loads Config from defaults, an optional YAML file, then environment
// variables, each layer overriding the last (§6).
//
// Load order (later sources override earlier):
//  1. Defaults
//  2. Config file (path from KAI_CONFIG_FILE, if set)
//  3. Environment variables (prefixed KAI_)
func New() (*Config, error) {
	k := koanf.New(".")

	cfg := defaults()

	if configPath := os.Getenv("KAI_CONFIG_FILE"); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Wrapf(err, "failed to load config file %s", configPath)
			}
		}
	}

	err := k.Load(env.Provider("KAI_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "KAI_"))
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load environment variables")
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	return cfg, nil
}

// NewForTest returns a Config pointed at a temp directory, for tests that
// need a real (but disposable) CacheDir.
func NewForTest(cacheDir string) *Config {
	cfg := defaults()
	cfg.CacheDir = cacheDir
	return cfg
}

// ResolveEncoderBin resolves cfg.EncoderBin via exec.LookPath, returning the
// configured value unresolved if lookup fails — pkg/muxer surfaces the
// eventual exec failure with more context than a config-time error would.
func ResolveEncoderBin(cfg *Config) string {
	if resolved, err := exec.LookPath(cfg.EncoderBin); err == nil {
		return resolved
	}
	return cfg.EncoderBin
}
