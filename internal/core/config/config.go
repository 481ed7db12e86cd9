package config

import (
	"github.com/tabellenwerk/standings/internal/infra/blob"
	redisclient "github.com/tabellenwerk/standings/internal/infra/redis"
	"github.com/tabellenwerk/standings/internal/infra/storage/postgres"
	"github.com/tabellenwerk/standings/internal/standings/cache"
	"github.com/tabellenwerk/standings/internal/standings/queue"
	"github.com/tabellenwerk/standings/internal/standings/snapshot"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	Queue     queue.Config       `yaml:"queue"`
	Snapshots SnapshotConfig     `yaml:"snapshots"`
	Cache     CacheConfig        `yaml:"cache"`
	Logging   LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SnapshotConfig selects the blob backend and retention policy.
type SnapshotConfig struct {
	snapshot.Config `yaml:",inline"`

	Backend string        `yaml:"backend"` // fs, s3
	Dir     string        `yaml:"dir"`     // fs backend root
	S3      blob.S3Config `yaml:"s3"`
}

// CacheConfig holds TTLs and the targets warmed at startup.
type CacheConfig struct {
	cache.Config `yaml:",inline"`

	WarmTargets []cache.WarmTarget `yaml:"warm_targets"`
}
