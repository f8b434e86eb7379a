package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig("", logrus.New())
	require.NoError(t, err)
	require.Equal(t, "ssw-trace-core", cfg.App.Name)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "continue", cfg.Live.ZeroSessionsPolicy)
	require.EqualValues(t, 100000, cfg.Graph.RetryDurationUs)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: demo\nlive:\n  zero_sessions_policy: fail\n"), 0o644))

	cfg, err := LoadConfig(path, logrus.New())
	require.NoError(t, err)
	require.Equal(t, "demo", cfg.App.Name)
	require.Equal(t, "fail", cfg.Live.ZeroSessionsPolicy)
}

func TestValidateConfigRejectsKafkaMissingBrokers(t *testing.T) {
	cfg, err := LoadConfig("", logrus.New())
	require.NoError(t, err)
	cfg.Kafka.Enabled = true
	cfg.Kafka.Topic = "traces"
	require.Error(t, ValidateConfig(cfg))
}

func TestEnvironmentOverridesTakePrecedence(t *testing.T) {
	t.Setenv("BT_LOG_LEVEL", "debug")
	t.Setenv("BT_KAFKA_ENABLED", "true")
	t.Setenv("BT_KAFKA_BROKERS", "b1:9092,b2:9092")
	t.Setenv("BT_KAFKA_TOPIC", "traces")

	cfg, err := LoadConfig("", logrus.New())
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Kafka.Enabled)
	require.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
}
