package config

import (
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultFragmentType     = "ecfp4"
	DefaultFeatureSelection = "filt"
	DefaultFoldSize         = 1024
	DefaultAbsMinFreq       = 2
	DefaultCheckDuplicates  = true

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	DefaultStorageBackend = "file"
	DefaultStorageDir     = "./snapshots"
	DefaultMinIOBucket    = "cfp-snapshots"
	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "cfp:snapshot:"
	DefaultRedisPoolSize  = 10
	DefaultBadgerDir      = "./snapshots.badger"

	DefaultKafkaBroker        = "localhost:9092"
	DefaultKafkaTopicMined    = "cfp.index.mined"
	DefaultKafkaTopicFiltered = "cfp.index.filtered"
	DefaultKafkaBatchSize     = 100
	DefaultKafkaWriteTimeout  = 10 * time.Second
	DefaultKafkaMaxRetries    = 3
	DefaultKafkaGroupID       = "cfpminer-events"

	DefaultMetricsNamespace = "cfpminer"
	DefaultMetricsPath      = "/metrics"

	DefaultServerHost            = "0.0.0.0"
	DefaultServerPort            = 8080
	DefaultServerMode            = "release"
	DefaultServerReadTimeout     = 30 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerShutdownTimeout = 10 * time.Second
)

// ─────────────────────────────────────────────────────────────────────────────
// ApplyDefaults fills zero-value fields in cfg with well-known defaults.
// It must be called after unmarshalling raw config data and before Validate()
// so that optional-but-defaulted fields are never seen as missing.
// ─────────────────────────────────────────────────────────────────────────────

// ApplyDefaults fills every zero-value field in cfg with its default.  Fields
// already set are left unchanged so explicit configuration always wins.
// Booleans cannot be told apart from an explicit false here; their defaults
// are registered with viper instead.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Miner ─────────────────────────────────────────────────────────────────
	if cfg.Miner.FragmentType == "" {
		cfg.Miner.FragmentType = DefaultFragmentType
	}
	if cfg.Miner.FeatureSelection == "" {
		cfg.Miner.FeatureSelection = DefaultFeatureSelection
	}
	if cfg.Miner.FoldSize == 0 {
		cfg.Miner.FoldSize = DefaultFoldSize
	}
	if cfg.Miner.AbsMinFreq == 0 {
		cfg.Miner.AbsMinFreq = DefaultAbsMinFreq
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.File.Dir == "" {
		cfg.Storage.File.Dir = DefaultStorageDir
	}
	if cfg.Storage.MinIO.Bucket == "" {
		cfg.Storage.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Storage.Redis.KeyPrefix == "" {
		cfg.Storage.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Storage.Redis.PoolSize == 0 {
		cfg.Storage.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Storage.Badger.Dir == "" {
		cfg.Storage.Badger.Dir = DefaultBadgerDir
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.TopicMined == "" {
		cfg.Kafka.TopicMined = DefaultKafkaTopicMined
	}
	if cfg.Kafka.TopicFiltered == "" {
		cfg.Kafka.TopicFiltered = DefaultKafkaTopicFiltered
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = DefaultKafkaBatchSize
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = DefaultKafkaMaxRetries
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Miner.CheckDuplicates = DefaultCheckDuplicates
	cfg.Metrics.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}

// registerDefaults seeds v with every key so that CFPMINER_* variables bind
// even when no file mentions the key, and so that boolean defaults apply.
func registerDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("miner.fragment_type", d.Miner.FragmentType)
	v.SetDefault("miner.feature_selection", d.Miner.FeatureSelection)
	v.SetDefault("miner.fold_size", d.Miner.FoldSize)
	v.SetDefault("miner.target_features", 0)
	v.SetDefault("miner.abs_min_freq", d.Miner.AbsMinFreq)
	v.SetDefault("miner.check_duplicates", d.Miner.CheckDuplicates)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.file.dir", d.Storage.File.Dir)
	v.SetDefault("storage.minio.endpoint", "")
	v.SetDefault("storage.minio.access_key", "")
	v.SetDefault("storage.minio.secret_key", "")
	v.SetDefault("storage.minio.bucket", d.Storage.MinIO.Bucket)
	v.SetDefault("storage.minio.prefix", "")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.redis.addr", d.Storage.Redis.Addr)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", d.Storage.Redis.KeyPrefix)
	v.SetDefault("storage.redis.pool_size", d.Storage.Redis.PoolSize)
	v.SetDefault("storage.redis.ttl", time.Duration(0))
	v.SetDefault("storage.badger.dir", d.Storage.Badger.Dir)
	v.SetDefault("storage.badger.in_memory", false)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic_mined", d.Kafka.TopicMined)
	v.SetDefault("kafka.topic_filtered", d.Kafka.TopicFiltered)
	v.SetDefault("kafka.batch_size", d.Kafka.BatchSize)
	v.SetDefault("kafka.write_timeout", d.Kafka.WriteTimeout)
	v.SetDefault("kafka.max_retries", d.Kafka.MaxRetries)
	v.SetDefault("kafka.group_id", d.Kafka.GroupID)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.subsystem", "")
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
}
