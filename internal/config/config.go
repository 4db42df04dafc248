// Package config defines the configuration structures for the fragment miner.
// No I/O or parsing logic lives here, only plain data types, validation and
// the mapping onto the miner's own configuration.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// MinerConfig fixes fragment type, feature selection and filter parameters.
type MinerConfig struct {
	FragmentType     string `mapstructure:"fragment_type"`
	FeatureSelection string `mapstructure:"feature_selection"` // "none" | "fold" | "filt"
	FoldSize         int    `mapstructure:"fold_size"`
	TargetFeatures   int    `mapstructure:"target_features"` // 0 means fold_size
	AbsMinFreq       int    `mapstructure:"abs_min_freq"`
	CheckDuplicates  bool   `mapstructure:"check_duplicates"`
}

// FileStorageConfig configures the local-directory snapshot store.
type FileStorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	TTL          time.Duration `mapstructure:"ttl"` // 0 keeps snapshots forever
}

// BadgerConfig configures the embedded key-value store.
type BadgerConfig struct {
	Dir      string `mapstructure:"dir"`
	InMemory bool   `mapstructure:"in_memory"`
}

// StorageConfig selects the snapshot backend.
type StorageConfig struct {
	Backend string            `mapstructure:"backend"` // "file" | "minio" | "redis" | "badger"
	File    FileStorageConfig `mapstructure:"file"`
	MinIO   MinIOConfig       `mapstructure:"minio"`
	Redis   RedisConfig       `mapstructure:"redis"`
	Badger  BadgerConfig      `mapstructure:"badger"`
}

// KafkaConfig holds mining-event producer parameters.
type KafkaConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Brokers       []string      `mapstructure:"brokers"`
	TopicMined    string        `mapstructure:"topic_mined"`
	TopicFiltered string        `mapstructure:"topic_filtered"`
	BatchSize     int           `mapstructure:"batch_size"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	GroupID       string        `mapstructure:"group_id"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
	Path      string `mapstructure:"path"`
}

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Miner   MinerConfig       `mapstructure:"miner"`
	Log     logging.LogConfig `mapstructure:"log"`
	Storage StorageConfig     `mapstructure:"storage"`
	Kafka   KafkaConfig       `mapstructure:"kafka"`
	Metrics MetricsConfig     `mapstructure:"metrics"`
	Server  ServerConfig      `mapstructure:"server"`
}

// MinerSettings converts the miner section into the domain configuration.
func (c *Config) MinerSettings() (fragment.Config, error) {
	t, err := cfp.ParseFragmentType(c.Miner.FragmentType)
	if err != nil {
		return fragment.Config{}, err
	}
	sel, err := cfp.ParseFeatureSelection(c.Miner.FeatureSelection)
	if err != nil {
		return fragment.Config{}, err
	}
	return fragment.Config{
		Type:            t,
		Selection:       sel,
		FoldSize:        c.Miner.FoldSize,
		TargetFeatures:  c.Miner.TargetFeatures,
		AbsMinFreq:      c.Miner.AbsMinFreq,
		CheckDuplicates: c.Miner.CheckDuplicates,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered.
func (c *Config) Validate() error {
	// Miner
	if _, err := cfp.ParseFragmentType(c.Miner.FragmentType); err != nil {
		return fmt.Errorf("config: miner.fragment_type %q is invalid", c.Miner.FragmentType)
	}
	if _, err := cfp.ParseFeatureSelection(c.Miner.FeatureSelection); err != nil {
		return fmt.Errorf("config: miner.feature_selection %q is invalid; expected none|fold|filt", c.Miner.FeatureSelection)
	}
	if c.Miner.FoldSize < 1 {
		return fmt.Errorf("config: miner.fold_size must be >= 1, got %d", c.Miner.FoldSize)
	}
	if c.Miner.TargetFeatures < 0 {
		return fmt.Errorf("config: miner.target_features must be >= 0, got %d", c.Miner.TargetFeatures)
	}
	if c.Miner.AbsMinFreq < 0 {
		return fmt.Errorf("config: miner.abs_min_freq must be >= 0, got %d", c.Miner.AbsMinFreq)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	// Storage
	switch c.Storage.Backend {
	case "file":
		if c.Storage.File.Dir == "" {
			return fmt.Errorf("config: storage.file.dir is required")
		}
	case "minio":
		if c.Storage.MinIO.Endpoint == "" {
			return fmt.Errorf("config: storage.minio.endpoint is required")
		}
		if c.Storage.MinIO.Bucket == "" {
			return fmt.Errorf("config: storage.minio.bucket is required")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("config: storage.redis.addr is required")
		}
	case "badger":
		if !c.Storage.Badger.InMemory && c.Storage.Badger.Dir == "" {
			return fmt.Errorf("config: storage.badger.dir is required unless in_memory is set")
		}
	default:
		return fmt.Errorf("config: storage.backend %q is invalid; expected file|minio|redis|badger", c.Storage.Backend)
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must not be empty when kafka is enabled")
		}
		if c.Kafka.TopicMined == "" || c.Kafka.TopicFiltered == "" {
			return fmt.Errorf("config: kafka.topic_mined and kafka.topic_filtered are required")
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("config: metrics.namespace is required when metrics are enabled")
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}
	return nil
}
