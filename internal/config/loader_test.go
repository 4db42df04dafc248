package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
miner:
  fragment_type: ecfp6
  feature_selection: filt
  fold_size: 2048
  target_features: 512
  abs_min_freq: 3
  check_duplicates: false
log:
  level: debug
  format: json
storage:
  backend: redis
  redis:
    addr: "redis:6379"
    ttl: 24h
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
server:
  port: 8081
  mode: test
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	cfg, err := Load(WithConfigPath(createTempConfigFile(t, validConfigYAML)))
	require.NoError(t, err)

	assert.Equal(t, "ecfp6", cfg.Miner.FragmentType)
	assert.Equal(t, 2048, cfg.Miner.FoldSize)
	assert.Equal(t, 512, cfg.Miner.TargetFeatures)
	assert.Equal(t, 3, cfg.Miner.AbsMinFreq)
	assert.False(t, cfg.Miner.CheckDuplicates)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "redis:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, "24h0m0s", cfg.Storage.Redis.TTL.String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 8081, cfg.Server.Port)

	// untouched keys keep their defaults
	assert.Equal(t, DefaultKafkaTopicFiltered, cfg.Kafka.TopicFiltered)
	assert.Equal(t, DefaultRedisKeyPrefix, cfg.Storage.Redis.KeyPrefix)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_FromFile_FileNotFound(t *testing.T) {
	_, err := Load(WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_FromFile_InvalidYAML(t *testing.T) {
	_, err := Load(WithConfigPath(createTempConfigFile(t, "miner: [")))
	assert.ErrorIs(t, err, ErrConfigParseError)
}

func TestLoad_FromFile_ValidationFailure(t *testing.T) {
	_, err := Load(WithConfigPath(createTempConfigFile(t, "miner:\n  feature_selection: shrink\n")))
	assert.ErrorIs(t, err, ErrConfigValidation)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CFPMINER_MINER_FOLD_SIZE", "4096")
	t.Setenv("CFPMINER_STORAGE_REDIS_ADDR", "cache:6380")

	cfg, err := Load(WithConfigPath(createTempConfigFile(t, validConfigYAML)))
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Miner.FoldSize)
	assert.Equal(t, "cache:6380", cfg.Storage.Redis.Addr)
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	t.Setenv("CFPMINER_MINER_FEATURE_SELECTION", "fold")
	t.Setenv("CFPMINER_MINER_CHECK_DUPLICATES", "false")
	t.Setenv("CFPMINER_STORAGE_BACKEND", "badger")
	t.Setenv("CFPMINER_STORAGE_BADGER_IN_MEMORY", "true")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "fold", cfg.Miner.FeatureSelection)
	assert.False(t, cfg.Miner.CheckDuplicates)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.True(t, cfg.Storage.Badger.InMemory)
	assert.Equal(t, DefaultFragmentType, cfg.Miner.FragmentType)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultFragmentType, cfg.Miner.FragmentType)
	assert.True(t, cfg.Miner.CheckDuplicates)
	assert.Equal(t, DefaultStorageDir, cfg.Storage.File.Dir)
}

func TestLoad_WithSearchPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(validConfigYAML), 0644))

	cfg, err := Load(WithSearchPaths(filepath.Join(dir, "nothing-here"), dir))
	require.NoError(t, err)
	assert.Equal(t, "ecfp6", cfg.Miner.FragmentType)

	_, err = Load(WithSearchPaths(t.TempDir()))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_WithOverrides(t *testing.T) {
	cfg, err := Load(WithConfigPath(createTempConfigFile(t, validConfigYAML)), WithOverrides(map[string]interface{}{
		"server.port":         7777,
		"miner.fragment_type": "fcfp0",
	}))
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "fcfp0", cfg.Miner.FragmentType)
}

func TestLoadFromFile_Convenience(t *testing.T) {
	cfg, err := LoadFromFile(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestMustLoad(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	assert.NotPanics(t, func() { MustLoad(WithConfigPath(path)) })
	assert.Panics(t, func() { MustLoad(WithConfigPath(filepath.Join(t.TempDir(), "x.yaml"))) })
}

func TestLoad_SetsGlobalConfig(t *testing.T) {
	cfg, err := Load(WithConfigPath(createTempConfigFile(t, validConfigYAML)))
	require.NoError(t, err)
	assert.Same(t, cfg, Get())
}
