package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultFragmentType, cfg.Miner.FragmentType)
	assert.Equal(t, DefaultFeatureSelection, cfg.Miner.FeatureSelection)
	assert.Equal(t, DefaultFoldSize, cfg.Miner.FoldSize)
	assert.Equal(t, DefaultAbsMinFreq, cfg.Miner.AbsMinFreq)
	assert.Zero(t, cfg.Miner.TargetFeatures)
	assert.Equal(t, DefaultStorageBackend, cfg.Storage.Backend)
	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, DefaultKafkaTopicMined, cfg.Kafka.TopicMined)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.False(t, cfg.Miner.CheckDuplicates)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Miner.FoldSize = 4096
	cfg.Server.Port = 9999
	cfg.Kafka.Brokers = []string{"k1:9092", "k2:9092"}
	ApplyDefaults(cfg)

	assert.Equal(t, 4096, cfg.Miner.FoldSize)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestDefault_SetsBooleans(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Miner.CheckDuplicates)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
}
