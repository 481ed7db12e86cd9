package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/tabellenwerk/standings/internal/standings/cache"
	"github.com/tabellenwerk/standings/internal/standings/snapshot"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Snapshots.Backend == "" {
		cfg.Snapshots.Backend = "fs"
	}
	if cfg.Snapshots.Dir == "" {
		cfg.Snapshots.Dir = "data/snapshots"
	}
	if cfg.Snapshots.RetentionPerTarget == 0 {
		cfg.Snapshots.RetentionPerTarget = snapshot.DefaultConfig.RetentionPerTarget
	}
	if cfg.Snapshots.MaxAge == 0 {
		cfg.Snapshots.MaxAge = snapshot.DefaultConfig.MaxAge
	}
	if cfg.Cache.TableTTL == 0 {
		cfg.Cache.TableTTL = cache.DefaultConfig.TableTTL
	}
	if cfg.Cache.TeamStatsTTL == 0 {
		cfg.Cache.TeamStatsTTL = cache.DefaultConfig.TeamStatsTTL
	}
}

func validate(cfg *AppConfig) error {
	switch cfg.Snapshots.Backend {
	case "fs", "s3":
	default:
		return fmt.Errorf("unknown snapshot backend %q (expected fs or s3)", cfg.Snapshots.Backend)
	}
	if cfg.Snapshots.Backend == "s3" && cfg.Snapshots.S3.Bucket == "" {
		return fmt.Errorf("snapshot backend s3 requires a bucket")
	}
	return nil
}
