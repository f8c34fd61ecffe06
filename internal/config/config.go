// Package config resolves engine and mount settings from three layers,
// each overriding the last: built-in defaults, an optional YAML file, and
// environment variables. Command-line flags (parsed by cmd/s3bd) take
// final precedence over all three and are applied by the caller after
// Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jamesmcclain/s3bd-go/internal/engine"
)

// Config holds every setting the engine and mount need that isn't a
// command-line flag by nature (bucket, mountpoint, and backend selection
// stay as flags in cmd/s3bd; these are the ones worth overlaying from a
// file or the environment across deployments).
type Config struct {
	CacheMegabytes  int           `yaml:"cache_megabytes"`
	ScratchDir      string        `yaml:"scratch_dir"`
	KeepScratchFile bool          `yaml:"keep_scratch_file"`
	SyncInterval    time.Duration `yaml:"sync_interval"`
}

// Default returns the built-in baseline, matching the engine package's own
// defaults so a caller that skips config entirely still gets a working
// Engine.
func Default() Config {
	return Config{
		CacheMegabytes:  engine.DefaultCacheMegabytes,
		ScratchDir:      "",
		KeepScratchFile: false,
		SyncInterval:    engine.DefaultSyncInterval,
	}
}

// Load resolves a Config starting from Default, overlaid by path (if
// non-empty) and then by environment variables. An empty path skips the
// file layer; a path that cannot be read or parsed is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnvironment(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnvironment(cfg *Config) error {
	if v, ok := os.LookupEnv("CACHE_MEGABYTES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: CACHE_MEGABYTES: %w", err)
		}
		cfg.CacheMegabytes = n
	}

	if v, ok := os.LookupEnv("SCRATCH_DIR"); ok {
		cfg.ScratchDir = v
	}

	// KEEP_SCRATCH_FILE is presence-only, matching the original's
	// getenv(...) == nullptr check: any value, including "false" or the
	// empty string, means true. Only its absence means false.
	if _, ok := os.LookupEnv("KEEP_SCRATCH_FILE"); ok {
		cfg.KeepScratchFile = true
	}

	if v, ok := os.LookupEnv("SYNC_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: SYNC_INTERVAL: %w", err)
		}
		cfg.SyncInterval = d
	}

	return nil
}

// EngineConfig adapts cfg into the subset of engine.Config it covers. The
// caller fills in Backend and ScratchDescriptors/Debug separately.
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		ScratchDir:      c.ScratchDir,
		KeepScratchFile: c.KeepScratchFile,
		CacheMegabytes:  c.CacheMegabytes,
		SyncInterval:    c.SyncInterval,
	}
}
